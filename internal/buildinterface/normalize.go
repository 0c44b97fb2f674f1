package buildinterface

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"buildtrack/internal/buildtool"
	"buildtrack/internal/progress"
)

// rawBuildTool is the subset of *buildtool.RawBuildTool this package
// depends on, narrowed to an interface so tests can substitute a fake
// tool instead of shelling out.
type rawBuildTool interface {
	Query(ctx context.Context, args []string, opts buildtool.Options) ([]byte, error)
	Build(ctx context.Context, args []string, opts buildtool.Options) ([]byte, error)
}

// BuildInterface resolves target patterns and constructs build maps by
// driving a RawBuildTool.
type BuildInterface struct {
	tool     rawBuildTool
	version  Version
	progress *progress.Reporter
}

// New creates a BuildInterface over tool speaking the given tool version.
// A nil reporter disables progress output.
func New(tool *buildtool.RawBuildTool, version Version, r *progress.Reporter) *BuildInterface {
	return &BuildInterface{tool: tool, version: version, progress: r}
}

// normalizeQueryExpression embeds the kind and label filters into a single
// query expression, so the tool resolves patterns and filters in one pass:
// keep the python kinds, drop "generated" and "no_pyre", then add back
// anything labeled "unittest-library".
func normalizeQueryExpression(patterns []string) string {
	set := fmt.Sprintf("set(%s)", strings.Join(patterns, " "))
	return fmt.Sprintf(
		`kind("%s", %s) - attrfilter(labels, %s, %s) - attrfilter(labels, %s, %s) + attrfilter(labels, %s, %s)`,
		targetKinds, set,
		excludedLabelGenerated, set,
		excludedLabelNoTrack, set,
		includedLabelUnittest, set,
	)
}

// Normalize resolves patterns (possibly containing wildcards and filter
// operators) to the deduplicated, sorted set of concrete eligible targets.
// The tool's response is a JSON object whose values are arrays of target
// strings, one array per input pattern.
func (b *BuildInterface) Normalize(ctx context.Context, patterns []string, opts buildtool.Options) ([]Target, error) {
	out, err := b.tool.Query(ctx, []string{normalizeQueryExpression(patterns)}, opts)
	if err != nil {
		return nil, err
	}
	var raw map[string][]string
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, &JSONError{Context: "normalize query output", Err: err}
	}

	seen := make(map[Target]bool)
	for _, names := range raw {
		for _, name := range names {
			seen[Target(name)] = true
		}
	}
	targets := make([]Target, 0, len(seen))
	for t := range seen {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	if b.progress != nil {
		b.progress.Log("normalized %d target pattern(s) to %s target(s)", len(patterns), progress.Count(len(targets)))
	}
	return targets, nil
}
