package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
	"gopkg.in/yaml.v3"
)

// Format identifies a schema file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat resolves a format name ("yaml", "yml" or "toml").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", &Error{Msg: fmt.Sprintf("unsupported schema format %q (expected yaml or toml)", s)}
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", &Error{Msg: fmt.Sprintf("cannot determine schema format of %q: no file extension", path)}
	}
	return ParseFormat(ext)
}

//go:embed schemas.yaml
var defaultSchema []byte

// Default returns the bundled food consumption schema.
func Default() *Schema {
	s, err := Load(bytes.NewReader(defaultSchema), FormatYAML)
	if err != nil {
		panic("schema: bundled schema is invalid: " + err.Error())
	}
	return s
}

// LoadFile reads a schema file, choosing the decoder by extension.
func LoadFile(path string) (*Schema, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()

	s, err := Load(f, format)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// Load decodes a schema document. Any structural or semantic problem is
// reported as an *Error; nothing is partially loaded.
func Load(r io.Reader, format Format) (*Schema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &Error{Msg: "schema document is empty"}
	}

	var doc []rawTable
	switch format {
	case FormatYAML:
		doc, err = decodeYAML(data)
	case FormatTOML:
		doc, err = decodeTOML(data)
	default:
		return nil, &Error{Msg: fmt.Sprintf("unsupported schema format %q", format)}
	}
	if err != nil {
		return nil, err
	}
	return build(doc)
}

// rawField is the attribute set of one field as written in the file.
type rawField struct {
	Type        string `yaml:"type" toml:"type"`
	Required    bool   `yaml:"required" toml:"required"`
	Min         any    `yaml:"min" toml:"min"`
	Max         any    `yaml:"max" toml:"max"`
	Description string `yaml:"description" toml:"description"`
}

// fieldAttributes are the keys a field definition may use.
var fieldAttributes = map[string]bool{
	"type":        true,
	"required":    true,
	"min":         true,
	"max":         true,
	"description": true,
}

func unknownAttribute(table, field, key string) *Error {
	return &Error{Table: table, Field: field, Msg: fmt.Sprintf("unknown attribute %q", key)}
}

type rawEntry struct {
	name  string
	field rawField
}

type rawTable struct {
	name   string
	fields []rawEntry
}

func build(doc []rawTable) (*Schema, error) {
	if len(doc) == 0 {
		return nil, &Error{Msg: "schema declares no tables"}
	}

	tables := make([]*Table, 0, len(doc))
	for _, rt := range doc {
		fields := make([]Field, 0, len(rt.fields))
		for _, e := range rt.fields {
			f, err := buildField(rt.name, e)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		t, err := NewTable(rt.name, fields)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return New(tables)
}

func buildField(table string, e rawEntry) (Field, error) {
	if strings.TrimSpace(e.field.Type) == "" {
		return Field{}, &Error{Table: table, Field: e.name, Msg: "missing type"}
	}
	ft, ok := ParseFieldType(e.field.Type)
	if !ok {
		return Field{}, &Error{Table: table, Field: e.name, Msg: fmt.Sprintf("unknown type %q", e.field.Type)}
	}

	min, err := toBound(e.field.Min)
	if err != nil {
		return Field{}, &Error{Table: table, Field: e.name, Msg: "min " + err.Error()}
	}
	max, err := toBound(e.field.Max)
	if err != nil {
		return Field{}, &Error{Table: table, Field: e.name, Msg: "max " + err.Error()}
	}

	return Field{
		Name:        e.name,
		Type:        ft,
		Required:    e.field.Required,
		Min:         min,
		Max:         max,
		Description: strings.TrimSpace(e.field.Description),
	}, nil
}

func toBound(v any) (*float64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil, fmt.Errorf("must be a number, got %v", v)
	}
	return &f, nil
}

// YAML

func decodeYAML(data []byte) ([]rawTable, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &Error{Msg: "invalid YAML: " + err.Error()}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &Error{Msg: "schema document is empty"}
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, &Error{Msg: "schema must be a mapping of table names to fields"}
	}

	var doc []rawTable
	for i := 0; i+1 < len(top.Content); i += 2 {
		name := top.Content[i].Value
		body := top.Content[i+1]
		rt := rawTable{name: name}

		if body.Kind != yaml.MappingNode {
			if isNull(body) {
				doc = append(doc, rt)
				continue
			}
			return nil, &Error{Table: name, Msg: "table must be a mapping of field names to attributes"}
		}

		for j := 0; j+1 < len(body.Content); j += 2 {
			fname := body.Content[j].Value
			fnode := body.Content[j+1]

			var rf rawField
			switch {
			case isNull(fnode):
				// no attributes at all; reported as a missing type
			case fnode.Kind == yaml.MappingNode:
				for k := 0; k+1 < len(fnode.Content); k += 2 {
					if key := fnode.Content[k].Value; !fieldAttributes[key] {
						return nil, unknownAttribute(name, fname, key)
					}
				}
				if err := fnode.Decode(&rf); err != nil {
					return nil, &Error{Table: name, Field: fname, Msg: err.Error()}
				}
			default:
				return nil, &Error{Table: name, Field: fname, Msg: "field attributes must be a mapping"}
			}
			rt.fields = append(rt.fields, rawEntry{name: fname, field: rf})
		}
		doc = append(doc, rt)
	}
	return doc, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

// TOML

func decodeTOML(data []byte) ([]rawTable, error) {
	var m map[string]map[string]rawField
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) && len(serr.Errors) > 0 {
			if key := serr.Errors[0].Key(); len(key) >= 3 {
				return nil, unknownAttribute(key[0], key[1], key[2])
			}
		}
		return nil, &Error{Msg: "invalid TOML: " + err.Error()}
	}

	order, err := tomlKeyOrder(data)
	if err != nil {
		return nil, &Error{Msg: "invalid TOML: " + err.Error()}
	}

	doc := make([]rawTable, 0, len(order))
	for _, ot := range order {
		fields := m[ot.name]
		rt := rawTable{name: ot.name}
		for _, fname := range ot.fields {
			rf, ok := fields[fname]
			if !ok {
				continue
			}
			rt.fields = append(rt.fields, rawEntry{name: fname, field: rf})
		}
		doc = append(doc, rt)
	}
	return doc, nil
}

type orderedTable struct {
	name   string
	fields []string
}

// tomlKeyOrder recovers the order in which tables and fields first appear.
// Decoding into maps loses it, so the document is walked a second time with
// the low-level parser.
func tomlKeyOrder(data []byte) ([]orderedTable, error) {
	var (
		order []orderedTable
		index = map[string]int{}
		seen  = map[[2]string]bool{}
	)
	register := func(path []string) {
		if len(path) == 0 {
			return
		}
		ti, ok := index[path[0]]
		if !ok {
			ti = len(order)
			index[path[0]] = ti
			order = append(order, orderedTable{name: path[0]})
		}
		if len(path) < 2 {
			return
		}
		k := [2]string{path[0], path[1]}
		if !seen[k] {
			seen[k] = true
			order[ti].fields = append(order[ti].fields, path[1])
		}
	}

	var walkKeyValue func(prefix []string, kv *unstable.Node)
	walkKeyValue = func(prefix []string, kv *unstable.Node) {
		path := append(append([]string(nil), prefix...), keyPath(kv.Key())...)
		register(path)
		if v := kv.Value(); v != nil && v.Kind == unstable.InlineTable {
			it := v.Children()
			for it.Next() {
				walkKeyValue(path, it.Node())
			}
		}
	}

	var p unstable.Parser
	p.Reset(data)
	var current []string
	for p.NextExpression() {
		e := p.Expression()
		switch e.Kind {
		case unstable.Table, unstable.ArrayTable:
			current = keyPath(e.Key())
			register(current)
		case unstable.KeyValue:
			walkKeyValue(current, e)
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return order, nil
}

func keyPath(it unstable.Iterator) []string {
	var path []string
	for it.Next() {
		path = append(path, string(it.Node().Data))
	}
	return path
}
