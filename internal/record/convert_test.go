package record

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/foodform/foodform/internal/schema"
)

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  apple  ", "apple"},
		{`="00123"`, "00123"},
		{"=42", "42"},
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  apple  ", "apple"},
		{`="00123"`, "00123"},
		{"=half portion", "=half portion"},
		{"Brazil nuts'", "Brazil nuts'"},
		{`"'quoted'"`, `"'quoted'"`},
		{`="`, `="`},
	}
	for _, tt := range tests {
		if got := CleanText(tt.input); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// ToString Tests
// ----------------------------------------------------------------------------

func TestToString(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    string
		wantErr bool
	}{
		{"text", "  rice ", "rice", false},
		{"json number", json.Number("42"), "42", false},
		{"int", 42, "42", false},
		{"int64", int64(-7), "-7", false},
		{"uint", uint32(9), "9", false},
		{"float", 12.5, "12.5", false},
		{"whole float", 3.0, "3", false},
		{"bool", true, "true", false},
		{"NaN", math.NaN(), "", true},
		{"slice", []any{"rice"}, "", true},
		{"map", map[string]any{"a": 1}, "", true},
		{"time", time.Now(), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToString(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ToString(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// IsNull Tests
// ----------------------------------------------------------------------------

func TestIsNull(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"whitespace", " \t ", true},
		{"NaN", math.NaN(), true},
		{"zero", 0.0, false},
		{"false", false, false},
		{"text", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNull(tt.input); got != tt.want {
				t.Errorf("IsNull(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToInteger / ToFloat Tests
// ----------------------------------------------------------------------------

func TestToInteger(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    int64
		wantErr bool
	}{
		{"native int", 7, 7, false},
		{"int64", int64(-3), -3, false},
		{"integral float", 12.0, 12, false},
		{"json number", json.Number("40"), 40, false},
		{"string", "123", 123, false},
		{"thousands separator", "1,250", 1250, false},
		{"integral decimal string", "5.0", 5, false},
		{"fractional float", 12.5, 0, true},
		{"fractional string", "12.5", 0, true},
		{"text", "twelve", 0, true},
		{"bool", true, 0, true},
		{"infinity", math.Inf(1), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToInteger(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToInteger(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ToInteger(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    float64
		wantErr bool
	}{
		{"float", 12.5, 12.5, false},
		{"int", 3, 3, false},
		{"decimal string", "0.25", 0.25, false},
		{"leading decimal point", ".99", 0.99, false},
		{"scientific", "1.5e3", 1500, false},
		{"thousands separator", "1,234.5", 1234.5, false},
		{"currency", "$10.00", 10, false},
		{"accounting negative", "(4.5)", -4.5, false},
		{"excel prefix", `="7.25"`, 7.25, false},
		{"NaN string", "NaN", 0, true},
		{"NaN value", math.NaN(), 0, true},
		{"infinity", math.Inf(-1), 0, true},
		{"text", "abc", 0, true},
		{"bool", false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToFloat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToFloat(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ToFloat(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToBool Tests
// ----------------------------------------------------------------------------

func TestToBool(t *testing.T) {
	tests := []struct {
		input   any
		want    bool
		wantErr bool
	}{
		{true, true, false},
		{"yes", true, false},
		{"Y", true, false},
		{"TRUE", true, false},
		{"1", true, false},
		{"no", false, false},
		{"f", false, false},
		{"0", false, false},
		{1, true, false},
		{0.0, false, false},
		{"maybe", false, true},
		{2, false, true},
	}
	for _, tt := range tests {
		got, err := ToBool(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ToBool(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ToBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// ToDate / ToDatetime Tests
// ----------------------------------------------------------------------------

func TestToDate(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		input   any
		wantErr bool
	}{
		{"ISO", "2024-03-15", false},
		{"slashes", "2024/03/15", false},
		{"US", "3/15/2024", false},
		{"US padded", "03/15/2024", false},
		{"month name", "Mar 15, 2024", false},
		{"compact", "20240315", false},
		{"two digit year", "3/15/24", false},
		{"timestamp", "2024-03-15T22:10:00Z", false},
		{"time value", time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC), false},
		{"garbage", "next tuesday", true},
		{"number", 20240315, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToDate(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(want) {
				t.Errorf("ToDate(%v) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestToDatetime(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    time.Time
		wantErr bool
	}{
		{"RFC3339", "2024-03-15T10:20:30Z", time.Date(2024, 3, 15, 10, 20, 30, 0, time.UTC), false},
		{"offset converted to UTC", "2024-03-15T10:20:30+02:00", time.Date(2024, 3, 15, 8, 20, 30, 0, time.UTC), false},
		{"space separated", "2024-03-15 10:20:30", time.Date(2024, 3, 15, 10, 20, 30, 0, time.UTC), false},
		{"minutes only", "2024-03-15T10:20", time.Date(2024, 3, 15, 10, 20, 0, 0, time.UTC), false},
		{"fractional seconds", "2024-03-15 10:20:30.5", time.Date(2024, 3, 15, 10, 20, 30, 500000000, time.UTC), false},
		{"bare date", "2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), false},
		{"garbage", "soon", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDatetime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToDatetime(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ToDatetime(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Format Tests
// ----------------------------------------------------------------------------

func TestFormat(t *testing.T) {
	tests := []struct {
		ft    schema.FieldType
		input any
		want  string
	}{
		{schema.TypeString, "apple", "apple"},
		{schema.TypeInteger, int64(42), "42"},
		{schema.TypeFloat, 12.5, "12.5"},
		{schema.TypeFloat, 1500.0, "1500"},
		{schema.TypeFloat, 0.000001, "0.000001"},
		{schema.TypeBoolean, true, "true"},
		{schema.TypeDate, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-02"},
		{schema.TypeDatetime, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02T03:04:05Z"},
		{schema.TypeFloat, nil, ""},
	}
	for _, tt := range tests {
		if got := Format(tt.ft, tt.input); got != tt.want {
			t.Errorf("Format(%s, %v) = %q, want %q", tt.ft, tt.input, got, tt.want)
		}
	}
}
