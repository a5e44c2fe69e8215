package dataset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeManifest(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	p := filepath.Join(t.TempDir(), "manifest.xlsx")
	require.NoError(t, f.SaveAs(p))
	return p
}

func TestLoadDetectsColumns(t *testing.T) {
	p := writeManifest(t, [][]any{
		{"Call ID", "Customer Name", "Recording URL", "Notes"},
		{"c1", "acme", "https://cdn.example.com/c1.mp3", "x"},
		{"c2", "", "/data/audio/c2.wav", ""},
		{"c3", "globex", "", "no audio"},
	})
	entries, err := Load(p, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Row: 2, Audio: "https://cdn.example.com/c1.mp3", CallID: "c1", CustomerID: "acme"}, entries[0])
	assert.Equal(t, Entry{Row: 3, Audio: "/data/audio/c2.wav", CallID: "c2"}, entries[1])
}

func TestLoadTranscriptRows(t *testing.T) {
	p := writeManifest(t, [][]any{
		{"id", "transcript"},
		{"t1", "I want to buy a flat"},
		{"t2", ""},
	})
	entries, err := Load(p, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].CallID)
	assert.Equal(t, "I want to buy a flat", entries[0].Transcript)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.xlsx"), nil)
	assert.Error(t, err)

	_, err = Load(writeManifest(t, [][]any{{"audio"}}), nil)
	assert.Error(t, err, "header only")

	_, err = Load(writeManifest(t, [][]any{{"name", "city"}, {"a", "b"}}), nil)
	assert.Error(t, err, "no usable column")
}
