package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodform/foodform/internal/store"
)

// runCLI executes the root command against a fresh database.
func runCLI(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseWhere(t *testing.T) {
	tests := []struct {
		in      string
		want    store.Condition
		wantErr bool
	}{
		{in: "commodity contains wild rice", want: store.Condition{Field: "commodity", Op: store.OpContains, Value: "wild rice"}},
		{in: "age_group adult", want: store.Condition{Field: "age_group", Op: store.OpEquals, Value: "adult"}},
		{in: "mean_consumption_chronic GTE 10", want: store.Condition{Field: "mean_consumption_chronic", Op: store.OpGreaterEq, Value: "10"}},
		{in: "commodity", wantErr: true},
		{in: "commodity like rice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWhere(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchemaCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "food.db")

	out, err := runCLI(t, db, "schema", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "food_consumption (7 fields)")
	assert.Contains(t, out, "required")

	out, err = runCLI(t, db, "schema", "template")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "commodity,age_group,mean_consumption_chronic"), out)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("t:\n  x: {type: color}\n"), 0o644))
	_, err = runCLI(t, db, "schema", "check", bad)
	assert.Error(t, err)
}

func TestImportThenExport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "food.db")
	csvPath := filepath.Join(dir, "batch.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"commodity,age_group,mean_consumption_chronic\n"+
			"Almonds,adult,12.5\n"+
			"Rice,child,-3\n"+
			"Wild rice,adult,4\n"), 0o644))

	out, err := runCLI(t, db, "import", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "3 rows, 2 valid, 1 invalid")
	assert.Contains(t, out, "row 2 (line 3)")
	assert.Contains(t, out, "Dry run")

	out, err = runCLI(t, db, "export")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1, "dry run must not write")

	out, err = runCLI(t, db, "import", "--commit", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Inserted 2 records into food_consumption.")

	out, err = runCLI(t, db, "export", "--where", "commodity contains rice")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Wild rice")

	xlsx := filepath.Join(dir, "out.xlsx")
	_, err = runCLI(t, db, "export", "--format", "xlsx", "--out", xlsx)
	require.NoError(t, err)
	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestInvalidFlags(t *testing.T) {
	db := filepath.Join(t.TempDir(), "food.db")

	_, err := runCLI(t, db, "export", "--format", "pdf")
	assert.Error(t, err)

	_, err = runCLI(t, db, "--table", "nope", "export")
	assert.Error(t, err)

	_, err = runCLI(t, db, "--driver", "oracle", "export")
	assert.Error(t, err)
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "plain error",
			err:  errors.New("--delimiter must be a single character"),
			want: []string{"Error: --delimiter must be a single character\n"},
		},
		{
			name: "known error shows code and detail",
			err:  userError(fmt.Errorf("restore abc: %w", store.ErrNotFound)),
			want: []string{"Error: Record not found (Code: REC001).", "\n  detail: restore abc: "},
		},
		{
			name: "unknown error shows technical text",
			err:  userError(errors.New("disk on fire")),
			want: []string{"Error: disk on fire\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}

	assert.NoError(t, userError(nil))
}
