package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spboyer/arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cases.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadCSV(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantRows int
		wantErr  string
	}{
		{name: "header only", content: "id,input\n", wantRows: 0},
		{name: "two rows", content: "id,input\na,b\nc,d\n", wantRows: 2},
		{name: "empty file", content: "", wantErr: "no header row"},
		{name: "ragged row", content: "id,input\na\n", wantErr: "wrong number of fields"},
		{name: "unterminated quote", content: "id,input\n\"a,b\n", wantErr: "csv: parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := LoadCSV(writeCSV(t, tt.content))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rows, tt.wantRows)
		})
	}
}

func TestLoadCSV_NormalizesHeaders(t *testing.T) {
	rows, err := LoadCSV(writeCSV(t, "\ufeff ID , Prompt\nx,\"hello, world\"\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{"id": "x", "prompt": "hello, world"}, rows[0])
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorContains(t, err, "csv: open")
}

func TestLoadTestCases(t *testing.T) {
	p := writeCSV(t, `id,input,context,category,use_case,notes
tc-1,Explain channels,,concurrency,docs,ignored
,"Multi
line prompt",Some context,,,
`)

	got, err := LoadTestCases(p)
	require.NoError(t, err)
	assert.Equal(t, []models.TestCase{
		{ID: "tc-1", Input: "Explain channels", ScenarioCategory: "concurrency", UseCase: "docs"},
		{ID: "row-3", Input: "Multi\nline prompt", Context: "Some context"},
	}, got)
}

func TestToTestCases_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rows    []Row
		wantErr string
	}{
		{name: "no input column", rows: []Row{{"id": "a", "question": "q"}}, wantErr: "no input or prompt column"},
		{name: "blank input", rows: []Row{{"id": "a", "input": "ok"}, {"id": "b", "input": "  "}}, wantErr: "row 3 has an empty input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToTestCases(tt.rows)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	empty, err := ToTestCases(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
