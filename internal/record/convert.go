package record

// convert.go turns user-provided values into the typed values a schema field
// expects.
//
// Input arrives in three shapes: strings from HTML forms and CSV cells,
// decoded JSON (float64, bool, string, json.Number), and native Go values
// from callers and the store. Strings bound for non-text fields get the usual
// spreadsheet cleanup:
//   - Excel formula prefixes (="value")
//   - thousands separators and currency symbols in numbers
//   - yes/no, t/f, y/n and 1/0 booleans
//   - US, EU and ISO date layouts, with a pivot for 2-digit years

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/foodform/foodform/internal/schema"
)

var errNotConvertible = errors.New("value not convertible")

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006",
		"20060102",
	}
	datetimeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
	}
)

// DateLayout and DatetimeLayout are the canonical text forms.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = time.RFC3339Nano
)

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// CleanText trims whitespace and unwraps the Excel text wrapper ="...".
// Other quotes and a bare leading "=" are part of the text.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}

// IsNull reports whether v counts as "no value": nil, a blank string, or NaN.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	case json.Number:
		return strings.TrimSpace(string(x)) == ""
	default:
		return false
	}
}

// Coerce converts v to the Go type used for ft:
// string, int64, float64, bool, or time.Time (dates at UTC midnight).
func Coerce(ft schema.FieldType, v any) (any, error) {
	switch ft {
	case schema.TypeString:
		return ToString(v)
	case schema.TypeInteger:
		return ToInteger(v)
	case schema.TypeFloat:
		return ToFloat(v)
	case schema.TypeBoolean:
		return ToBool(v)
	case schema.TypeDate:
		return ToDate(v)
	case schema.TypeDatetime:
		return ToDatetime(v)
	default:
		return nil, errNotConvertible
	}
}

// ToString accepts text and scalar numbers or booleans, which are rendered
// in their shortest form. Surrounding whitespace is trimmed. Composite values
// are rejected.
func ToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case json.Number:
		return strings.TrimSpace(string(x)), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	default:
		return "", errNotConvertible
	}
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errNotConvertible
	}
	return strconv.FormatFloat(f, 'f', -1, bits), nil
}

// ToInteger accepts integers, integral floats, and numeric strings.
func ToInteger(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, errNotConvertible
		}
		return int64(x), nil
	case float32:
		return integralFloat(float64(x))
	case float64:
		return integralFloat(x)
	case json.Number:
		return parseInteger(string(x))
	case string:
		return parseInteger(x)
	default:
		return 0, errNotConvertible
	}
}

func parseInteger(s string) (int64, error) {
	s = cleanNumber(s)
	if !numericRegex.MatchString(s) {
		return 0, errNotConvertible
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errNotConvertible
	}
	return integralFloat(f)
}

func integralFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errNotConvertible
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errNotConvertible
	}
	return int64(f), nil
}

// ToFloat accepts any finite number or numeric string. Strings may carry
// currency symbols, thousands separators, or accounting parentheses.
func ToFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	default:
		return 0, errNotConvertible
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotConvertible
	}
	return f, nil
}

func parseFloat(s string) (float64, error) {
	s = cleanNumber(s)
	if !numericRegex.MatchString(s) {
		return 0, errNotConvertible
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, errNotConvertible
	}
	return f, nil
}

// cleanNumber strips the decoration spreadsheets add to numbers.
func cleanNumber(s string) string {
	s = CleanCell(s)

	// Detect negative accounting format "(123.45)"
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}
	return s
}

// ToBool accepts true/false, t/f, yes/no, y/n and 1/0 (case-insensitive).
func ToBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int:
		return intBool(int64(x))
	case int64:
		return intBool(x)
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
		return false, errNotConvertible
	case string:
		switch strings.ToLower(CleanCell(x)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
	}
	return false, errNotConvertible
}

func intBool(n int64) (bool, error) {
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errNotConvertible
	}
}

// ToDate returns the calendar date as midnight UTC.
func ToDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return truncateDate(x), nil
	case string:
		return parseDate(x)
	default:
		return time.Time{}, errNotConvertible
	}
}

func parseDate(s string) (time.Time, error) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, errNotConvertible
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	// A full timestamp still names a day.
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDate(t), nil
		}
	}

	return time.Time{}, errNotConvertible
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ToDatetime returns the instant in UTC. Timestamps without a zone are read
// as UTC; bare dates become midnight.
func ToDatetime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := CleanCell(x)
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		t, err := parseDate(s)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	default:
		return time.Time{}, errNotConvertible
	}
}

// Format renders a typed value as text: the form input value, CSV cell and
// spreadsheet cell all use this. Nil renders as "".
func Format(ft schema.FieldType, v any) string {
	if v == nil {
		return ""
	}
	switch ft {
	case schema.TypeInteger:
		if n, err := ToInteger(v); err == nil {
			return strconv.FormatInt(n, 10)
		}
	case schema.TypeFloat:
		if f, err := ToFloat(v); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	case schema.TypeBoolean:
		if b, err := ToBool(v); err == nil {
			return strconv.FormatBool(b)
		}
	case schema.TypeDate:
		if t, err := ToDate(v); err == nil {
			return t.Format(DateLayout)
		}
	case schema.TypeDatetime:
		if t, err := ToDatetime(v); err == nil {
			return t.Format(DatetimeLayout)
		}
	case schema.TypeString:
		if s, err := ToString(v); err == nil {
			return s
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
