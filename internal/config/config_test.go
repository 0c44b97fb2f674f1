package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildtrack.yaml")
	content := `
search_roots:
  - dir: /repo/src
  - dir: /repo/vendor
    no_type_check: true
artifact_root: /repo/.artifacts
build_command: buck2
lazy: true
query_server:
  enabled: true
  addr: "0.0.0.0:9000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []SearchRoot{
		{Dir: "/repo/src"},
		{Dir: "/repo/vendor", NoTypeCheck: true},
	}, cfg.SearchRoots)
	assert.Equal(t, "/repo/.artifacts", cfg.ArtifactRoot)
	assert.Equal(t, "buck2", cfg.BuildCommand)
	assert.True(t, cfg.Lazy)
	assert.True(t, cfg.QueryServer.Enabled)
	assert.Equal(t, "0.0.0.0:9000", cfg.QueryServer.Addr)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Default()
	root := "/custom/artifacts"
	lazy := true
	cfg = ApplyFlagOverrides(cfg, &root, nil, &lazy, nil)
	assert.Equal(t, "/custom/artifacts", cfg.ArtifactRoot)
	assert.True(t, cfg.Lazy)
	assert.Equal(t, "", cfg.BuildCommand)
}
