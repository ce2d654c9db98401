package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// CreateConfigFile writes values as a YAML config file and returns its path
func CreateConfigFile(t *testing.T, values map[string]any) string {
	data, err := yaml.Marshal(values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "exporter.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
