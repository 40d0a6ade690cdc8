package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

func ptr(f float64) *float64 { return &f }

func foodTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("food_consumption", []schema.Field{
		{Name: "commodity", Type: schema.TypeString, Required: true},
		{Name: "age_group", Type: schema.TypeString},
		{Name: "mean_consumption_chronic", Type: schema.TypeFloat, Min: ptr(0), Max: ptr(1000)},
	})
	require.NoError(t, err)
	return tbl
}

func TestAnalyze_ReportsPerRow(t *testing.T) {
	input := "commodity,age_group,mean_consumption_chronic\n" +
		"Almonds,adult,12.5\n" +
		",child,3\n" +
		"Rice,adult,7\n"

	rep, err := Analyze(foodTable(t), strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Valid)
	assert.Equal(t, 1, rep.Invalid)
	require.Len(t, rep.Rows, 3)

	bad := rep.Rows[1]
	assert.Equal(t, 2, bad.Row)
	assert.Equal(t, 3, bad.Line)
	require.Len(t, bad.Errors, 1)
	assert.Equal(t, "missing required field: commodity", bad.Errors[0].Error())

	assert.Equal(t, "Almonds", rep.Rows[0].Values["commodity"])
	assert.Equal(t, 12.5, rep.Rows[0].Values["mean_consumption_chronic"])
	assert.Equal(t, []RowResult{bad}, rep.InvalidRows())
}

func TestAnalyze_HeaderMapping(t *testing.T) {
	input := "  Commodity ,COLOUR,Mean_Consumption_Chronic\nrice,red,1\n"

	rep, err := Analyze(foodTable(t), strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"commodity", "mean_consumption_chronic"}, rep.Columns)
	assert.Equal(t, []string{"COLOUR"}, rep.IgnoredColumns)
	assert.Empty(t, rep.MissingColumns)
	require.Equal(t, 1, rep.Valid)
	assert.Equal(t, "rice", rep.Rows[0].Values["commodity"])
	assert.NotContains(t, rep.Rows[0].Values, "COLOUR")
}

func TestAnalyze_TextCellsKeepQuotes(t *testing.T) {
	input := "commodity,age_group,mean_consumption_chronic\n" +
		`Brazil nuts',=half portion,"=""4"""` + "\n" +
		`'Almonds',"""'quoted'""",'2'` + "\n" +
		`"=""00123""",adult,1` + "\n"

	rep, err := Analyze(foodTable(t), strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Equal(t, 3, rep.Valid, rep.InvalidRows())

	assert.Equal(t, "Brazil nuts'", rep.Rows[0].Values["commodity"])
	assert.Equal(t, "=half portion", rep.Rows[0].Values["age_group"])
	assert.Equal(t, 4.0, rep.Rows[0].Values["mean_consumption_chronic"])

	assert.Equal(t, "'Almonds'", rep.Rows[1].Values["commodity"])
	assert.Equal(t, `"'quoted'"`, rep.Rows[1].Values["age_group"])
	assert.Equal(t, 2.0, rep.Rows[1].Values["mean_consumption_chronic"])

	assert.Equal(t, "00123", rep.Rows[2].Values["commodity"])
}

func TestAnalyze_MissingRequiredColumn(t *testing.T) {
	rep, err := Analyze(foodTable(t), strings.NewReader("age_group\nadult\nchild\n"), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"commodity"}, rep.MissingColumns)
	assert.Equal(t, 2, rep.Invalid)
	for _, row := range rep.Rows {
		require.Len(t, row.Errors, 1)
		assert.Equal(t, record.ReasonMissing, row.Errors[0].Reason)
	}
}

func TestAnalyze_MalformedRowsDoNotAbort(t *testing.T) {
	input := "commodity,age_group,mean_consumption_chronic\n" +
		"rice,adult,1\n" +
		"too,many,cells,here\n" +
		"short\n" +
		"bad \"quote,adult,1\n" +
		"wheat,child,2\n"

	rep, err := Analyze(foodTable(t), strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, rep.Total)
	assert.Equal(t, 2, rep.Valid)
	assert.Equal(t, 3, rep.Invalid)

	for _, i := range []int{1, 2, 3} {
		row := rep.Rows[i]
		require.Len(t, row.Errors, 1, "row %d", row.Row)
		assert.Equal(t, record.ReasonMalformed, row.Errors[0].Reason)
		assert.Empty(t, row.Errors[0].Field)
	}
	assert.Equal(t, "expected 3 columns, got 4", rep.Rows[1].Errors[0].Detail)
	assert.Equal(t, 5, rep.Rows[3].Line)
	assert.Equal(t, "wheat", rep.Rows[4].Values["commodity"])
}

func TestAnalyze_SkipsBlankLinesAndTrailingEmptyCells(t *testing.T) {
	input := "\n\ncommodity,age_group\n\nrice,adult,\n , \nwheat,child\n"

	rep, err := Analyze(foodTable(t), strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 2, rep.Valid)
	assert.Equal(t, 1, rep.Rows[0].Row)
	assert.Equal(t, 2, rep.Rows[1].Row)
}

func TestAnalyze_Delimiters(t *testing.T) {
	for _, delim := range []string{",", "\t", ";", "|"} {
		t.Run(fmt.Sprintf("%q", delim), func(t *testing.T) {
			input := strings.Join([]string{"commodity", "mean_consumption_chronic"}, delim) + "\n" +
				strings.Join([]string{"rice", "1,5"}, delim) + "\n"
			if delim == "," {
				input = "commodity,mean_consumption_chronic\nrice,\"1,5\"\n"
			}

			rep, err := Analyze(foodTable(t), strings.NewReader(input), Options{})
			require.NoError(t, err)
			require.Equal(t, 1, rep.Valid, "errors: %v", rep.Rows)
			assert.Equal(t, "rice", rep.Rows[0].Values["commodity"])
			assert.Equal(t, 15.0, rep.Rows[0].Values["mean_consumption_chronic"], "comma is a thousands separator")
		})
	}
}

func TestAnalyze_ExplicitDelimiter(t *testing.T) {
	rep, err := Analyze(foodTable(t), strings.NewReader("commodity;age_group\nrice;adult\n"), Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Valid)
}

func TestAnalyze_ByteOrderMarks(t *testing.T) {
	utf8BOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("commodity\nrice\n")...)
	rep, err := Analyze(foodTable(t), bytes.NewReader(utf8BOM), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"commodity"}, rep.Columns)

	// UTF-16 little endian with BOM
	var utf16 bytes.Buffer
	utf16.Write([]byte{0xFF, 0xFE})
	for _, r := range "commodity\nrice\n" {
		utf16.Write([]byte{byte(r), 0})
	}
	rep, err = Analyze(foodTable(t), &utf16, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Valid)
	assert.Equal(t, "rice", rep.Rows[0].Values["commodity"])
}

func TestAnalyze_InvalidUTF8IsReplaced(t *testing.T) {
	input := []byte("commodity\nri\xffce\n")
	rep, err := Analyze(foodTable(t), bytes.NewReader(input), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, rep.Valid)
	assert.Equal(t, "ri\uFFFDce", rep.Rows[0].Values["commodity"])
}

func TestAnalyze_FatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
		want  error
	}{
		{"empty", "", Options{}, ErrEmptyInput},
		{"blank lines only", "\n \n", Options{}, ErrEmptyInput},
		{"duplicate header", "commodity,Commodity\na,b\n", Options{}, ErrDuplicateHeader},
		{"too many rows", "commodity\na\nb\nc\n", Options{MaxRows: 2}, ErrTooManyRows},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(foodTable(t), strings.NewReader(tt.input), tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAnalyzeXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"commodity", "age_group", "mean_consumption_chronic"},
		{"Almonds", "adult", 12.5},
		{"Rice"},
		{nil, "child", 3},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	rep, err := AnalyzeFile(foodTable(t), "upload.XLSX", &buf, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Valid, "short spreadsheet rows are padded, not malformed")
	assert.Equal(t, 12.5, rep.Rows[0].Values["mean_consumption_chronic"])
	assert.Equal(t, "Rice", rep.Rows[1].Values["commodity"])
	require.Len(t, rep.Rows[2].Errors, 1)
	assert.Equal(t, "commodity", rep.Rows[2].Errors[0].Field)
	assert.Equal(t, 4, rep.Rows[2].Line)
}

// fakeInserter records inserted rows and fails on a chosen commodity.
type fakeInserter struct {
	failOn   string
	inserted []record.Values
}

func (f *fakeInserter) Insert(_ context.Context, in record.Values) (*record.Record, error) {
	if in["commodity"] == f.failOn {
		return nil, errors.New("disk full")
	}
	f.inserted = append(f.inserted, in)
	return &record.Record{ID: fmt.Sprintf("id-%d", len(f.inserted)), Version: 1, Fields: in}, nil
}

func TestCommit(t *testing.T) {
	input := "commodity,mean_consumption_chronic\n" +
		"Almonds,12.5\n" +
		",3\n" +
		"Rice,7\n" +
		"Oats,1\n"
	rep, err := Analyze(foodTable(t), strings.NewReader(input), Options{})
	require.NoError(t, err)

	ins := &fakeInserter{failOn: "Rice"}
	res, err := Commit(context.Background(), ins, rep)
	require.NoError(t, err)

	assert.Equal(t, []string{"id-1", "id-2"}, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 3, res.Failed[0].Row)
	assert.Equal(t, "disk full", res.Failed[0].Message)

	require.Len(t, ins.inserted, 2)
	assert.Equal(t, "Almonds", ins.inserted[0]["commodity"])
	assert.Equal(t, "Oats", ins.inserted[1]["commodity"])
}

func TestCommit_StopsOnCancel(t *testing.T) {
	rep, err := Analyze(foodTable(t), strings.NewReader("commodity\na\nb\n"), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ins := &fakeInserter{}
	res, err := Commit(ctx, ins, rep)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Inserted)
	assert.Empty(t, ins.inserted)
}

func TestTemplate(t *testing.T) {
	assert.Equal(t, "commodity,age_group,mean_consumption_chronic\n", Template(foodTable(t)))
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		input string
		want  rune
	}{
		{"a,b\n1,2", ','},
		{"a\tb\n", '\t'},
		{"a;b", ';'},
		{"a|b", '|'},
		{`"a;b"|c`, '|'},
		{"\n\nsingle\n", ','},
	}
	for _, tt := range tests {
		if got := sniffDelimiter([]byte(tt.input)); got != tt.want {
			t.Errorf("sniffDelimiter(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
