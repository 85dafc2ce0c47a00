package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitpoints/internal/models"
)

const sampleExport = `{
  "children": [{"id": "c1", "name": "Alice", "points": 7}, {"id": "c2", "name": "Bob", "points": 2}],
  "rewardItems": [{"id": "r1", "name": "Homework", "points": 5, "type": "reward"}],
  "punishmentItems": [],
  "records": [{"id": "p1", "childId": "c1", "itemId": "r1", "itemName": "Homework", "points": 5, "type": "reward", "date": "2024-03-01T09:30:00Z"}]
}`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_MODE", "local")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "habits.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ARCHIVE_DRIVER", "none")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &app{}
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	require.NoError(t, a.close())
	return out.String(), err
}

func TestImportExportStatsClear(t *testing.T) {
	dir := setupEnv(t)

	input := filepath.Join(dir, "in.json")
	require.NoError(t, os.WriteFile(input, []byte(sampleExport), 0o644))

	out, err := run(t, "import", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 children and 1 records")

	out, err = run(t, "stats")
	require.NoError(t, err)
	var stats models.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, models.Stats{TotalChildren: 2, TotalPoints: 9, AveragePoints: 5, TotalRecords: 1, RewardItems: 1}, stats)

	output := filepath.Join(dir, "exports", "backup.json")
	_, err = run(t, "export", "--output", output)
	require.NoError(t, err)
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Alice"`)
	assert.Contains(t, string(data), `"exportTime"`)

	_, err = run(t, "clear")
	assert.Error(t, err, "clear needs confirmation")

	_, err = run(t, "clear", "--yes")
	require.NoError(t, err)

	out, err = run(t, "stats")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 0, stats.TotalChildren)
}

func TestImportRejectsInvalidFile(t *testing.T) {
	dir := setupEnv(t)

	input := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"rewardItems": []}`), 0o644))

	_, err := run(t, "import", "--input", input)
	assert.Error(t, err)

	_, err = run(t, "import")
	assert.Error(t, err, "input flag is required")
}

func TestExportToArchive(t *testing.T) {
	dir := setupEnv(t)

	_, err := run(t, "export", "--archive")
	assert.Error(t, err, "no archive driver configured")

	archiveDir := filepath.Join(dir, "archive")
	t.Setenv("ARCHIVE_DRIVER", "filesystem")
	t.Setenv("ARCHIVE_DIR", archiveDir)

	out, err := run(t, "export", "--archive")
	require.NoError(t, err)
	assert.Contains(t, out, "Archived export to "+archiveDir)

	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
