package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := GetRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestExtract_YAML(t *testing.T) {
	out, err := run(t, "extract", "--text", "QUALITY: AB-1234\nCOLOR: NAVY\nLOT: L778\nMETERS: 120,5", "--format", "yaml")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "lot_number")
	assert.Equal(t, 4, doc["fields_found"])
	assert.Equal(t, false, doc["not_a_label"])
}

func TestExtract_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "label.txt")
	require.NoError(t, os.WriteFile(path, []byte("nothing useful here"), 0o600))

	out, err := run(t, "extract", path, "--format", "json", "--text", "")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, true, doc["not_a_label"])
}

func TestHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roll.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not really a jpeg"), 0o600))

	out, err := run(t, "hash", path, "--format", "json")
	require.NoError(t, err)

	var doc map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc["content_hash"], 64)
	assert.Len(t, doc["perceptual_hash"], 16)
}

func TestExport_RejectsBadID(t *testing.T) {
	_, err := run(t, "export", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session id")
}

func TestUnknownFormat(t *testing.T) {
	_, err := run(t, "extract", "--text", "LOT: 1", "--format", "toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
