package buildinterface

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"buildtrack/internal/buildtool"
)

// rawTargetAttributes is the per-target attribute bag the tool returns
// for a changed-targets query. "srcs" maps artifact names to source
// paths relative to the target's base path; sources whose value starts
// with "//" reference other targets' outputs and are ignored.
type rawTargetAttributes struct {
	BuckBasePath   string            `json:"buck.base_path"`
	BuckBaseModule *string           `json:"buck.base_module"`
	BaseModule     *string           `json:"base_module"`
	Srcs           map[string]string `json:"srcs"`
}

// artifactBasePath is where the target's sources land in the artifact
// tree: the declared base module (dots to slashes) when one is set,
// falling back to the target's own base path.
func (a rawTargetAttributes) artifactBasePath() string {
	module := a.BuckBaseModule
	if a.BaseModule != nil {
		module = a.BaseModule
	}
	if module == nil {
		return a.BuckBasePath
	}
	return strings.ReplaceAll(*module, ".", "/")
}

// QueryChangedTargets returns, for each target among targets that owns one
// of changedSourcePaths, enough information to build a partial build map
// for it without a full re-normalize/re-query.
func (b *BuildInterface) QueryChangedTargets(ctx context.Context, targets []Target, changedSourcePaths []string, opts buildtool.Options) (map[Target]ChangedTargets, error) {
	expr := fmt.Sprintf("owner(%s)", strings.Join(changedSourcePaths, " "))
	args := []string{
		expr,
		"--output-attributes", "buck.base_path", "buck.base_module", "base_module", "srcs",
	}
	out, err := b.tool.Query(ctx, args, opts)
	if err != nil {
		return nil, err
	}
	var raw map[string]rawTargetAttributes
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, &JSONError{Context: "changed targets query output", Err: err}
	}

	tracked := make(map[Target]bool, len(targets))
	for _, t := range targets {
		tracked[t] = true
	}

	result := make(map[Target]ChangedTargets, len(raw))
	for name, attrs := range raw {
		t := Target(name)
		if !tracked[t] {
			continue
		}
		ct := ChangedTargets{
			Target:           t,
			SourceBasePath:   attrs.BuckBasePath,
			ArtifactBasePath: attrs.artifactBasePath(),
		}
		artifactNames := make([]string, 0, len(attrs.Srcs))
		for artifactName := range attrs.Srcs {
			artifactNames = append(artifactNames, artifactName)
		}
		sort.Strings(artifactNames)
		for _, artifactName := range artifactNames {
			src := attrs.Srcs[artifactName]
			if strings.HasPrefix(src, "//") {
				continue
			}
			ct.Files = append(ct.Files, ChangedFile{ArtifactRel: artifactName, SourceRel: src})
		}
		result[t] = ct
	}
	return result, nil
}
