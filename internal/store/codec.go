package store

import (
	"fmt"
	"time"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

// timestampLayout is fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// encodeValue converts a normalized value to its column representation.
func encodeValue(ft schema.FieldType, v any) any {
	if v == nil {
		return nil
	}
	switch ft {
	case schema.TypeBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	case schema.TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(record.DateLayout)
		}
	case schema.TypeDatetime:
		if t, ok := v.(time.Time); ok {
			return formatTimestamp(t)
		}
	}
	return v
}

// decodeValue converts a scanned column value back to its normalized type.
// Values that no longer convert (a column edited by hand, a type changed in
// the schema) are returned as text rather than failing the read.
func decodeValue(ft schema.FieldType, raw any) any {
	switch x := raw.(type) {
	case nil:
		return nil
	case []byte:
		raw = string(x)
	}
	v, err := record.Coerce(ft, raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return v
}
