package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"playbook/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/v2", cfg.Server.BasePath)
	require.Equal(t, "local-user", cfg.Server.DefaultActor)
	require.False(t, cfg.Plays.ResyncStagesOnScopeChange)
	require.Equal(t, []string{"Discovery", "Qualification", "Solutioning", "Validation", "Closing", "Delivery"}, cfg.Catalog().Keys())
}

func TestFromYAMLCustomCatalog(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
log:
  level: debug
stages:
  catalog:
    - key: Pilot
      label: Pilot
      objective: Run a pilot
      guidance: Keep it short
      checklist_items: [Plan pilot, Run pilot]
`))
	require.NoError(t, err)
	require.Equal(t, []string{"Pilot"}, cfg.Catalog().Keys())
	require.Equal(t, "/v2", cfg.Server.BasePath, "unspecified sections keep defaults")
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"duplicate stage":  "stages:\n  catalog:\n    - key: A\n    - key: A\n",
		"bad level":        "log:\n  level: loud\n",
		"bad base path":    "server:\n  base_path: v2\n",
		"webhook no url":   "webhooks:\n  - events: [stage.updated]\n",
		"not yaml mapping": "- just\n- a list\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	require.Equal(t, "/v2", cfg.Server.BasePath)

	_, err = config.Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "playbook.yml"), []byte(config.GenerateDefault()), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}
