package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// rowSource yields raw rows one at a time. Next returns io.EOF at the end
// and a *malformedRowError for a row that could not be split into cells.
type rowSource interface {
	Next() (cells []string, line int, err error)

	// Ragged reports whether short rows are normal for the source, as with
	// spreadsheets that omit trailing empty cells.
	Ragged() bool
}

type malformedRowError struct {
	msg string
}

func (e *malformedRowError) Error() string { return "malformed row: " + e.msg }

// candidateDelimiters are tried in order; the first one present in the
// header line wins.
var candidateDelimiters = []rune{',', '\t', ';', '|'}

type csvSource struct {
	r *csv.Reader
}

// newCSVSource decodes the input to UTF-8 and prepares a CSV reader.
// A UTF-8 or UTF-16 byte order mark selects the encoding and is dropped;
// invalid UTF-8 sequences become U+FFFD.
func newCSVSource(r io.Reader, delim rune) (*csvSource, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	if delim == 0 {
		delim = sniffDelimiter(data)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	return &csvSource{r: cr}, nil
}

func (s *csvSource) Next() ([]string, int, error) {
	rec, err := s.r.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, pe.StartLine, &malformedRowError{msg: pe.Err.Error()}
		}
		return nil, 0, err
	}
	line, _ := s.r.FieldPos(0)
	return rec, line, nil
}

func (s *csvSource) Ragged() bool { return false }

// sniffDelimiter inspects the first non-blank line, ignoring quoted text.
func sniffDelimiter(data []byte) rune {
	line := data
	for len(line) > 0 {
		i := bytes.IndexByte(line, '\n')
		var cur []byte
		if i < 0 {
			cur, line = line, nil
		} else {
			cur, line = line[:i], line[i+1:]
		}
		if len(bytes.TrimSpace(cur)) > 0 {
			line = cur
			break
		}
	}

	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}
	for _, d := range candidateDelimiters {
		if counts[d] > 0 {
			return d
		}
	}
	return ','
}

type xlsxSource struct {
	f    *excelize.File
	rows *excelize.Rows
	line int
}

func newXLSXSource(r io.Reader) (*xlsxSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrUnreadable, err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, ErrEmptyInput
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return &xlsxSource{f: f, rows: rows}, nil
}

func (s *xlsxSource) Next() ([]string, int, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, s.line, err
		}
		return nil, s.line, io.EOF
	}
	s.line++
	cols, err := s.rows.Columns()
	if err != nil {
		return nil, s.line, err
	}
	return cols, s.line, nil
}

func (s *xlsxSource) Ragged() bool { return true }

func (s *xlsxSource) Close() error {
	s.rows.Close()
	return s.f.Close()
}
