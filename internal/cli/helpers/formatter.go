// Package helpers holds output formatting and flag helpers shared by the CLI
// commands.
package helpers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatYAML  OutputFormat = "yaml"
)

// AllFormats lists every supported output format.
var AllFormats = []OutputFormat{FormatTable, FormatJSON, FormatCSV, FormatYAML}

// Formatter writes command results in one output format.
type Formatter interface {
	Format(data any, writer io.Writer) error
}

// NewFormatter creates a new Formatter for the given format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatTable:
		return &TableFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Print formats data to w in the named format.
func Print(w io.Writer, format string, data any) error {
	f, err := NewFormatter(OutputFormat(format))
	if err != nil {
		return err
	}
	return f.Format(data, w)
}

// JSONFormatter formats data as JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any, writer io.Writer) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any, writer io.Writer) error {
	enc := yaml.NewEncoder(writer)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

// TableFormatter formats a slice of structs as an aligned table. Columns come
// from `table:"HEADER"` struct tags; `table:"-"` and untagged fields are
// skipped. A ",hex" option prints integers as 0x-prefixed hex.
type TableFormatter struct{}

func (f *TableFormatter) Format(data any, writer io.Writer) error {
	rows, err := tableRows(data)
	if err != nil || rows == nil {
		return err
	}

	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// CSVFormatter formats a slice of structs as CSV using the same columns as
// TableFormatter.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any, writer io.Writer) error {
	rows, err := tableRows(data)
	if err != nil || rows == nil {
		return err
	}

	w := csv.NewWriter(writer)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

type column struct {
	index  int
	header string
	hex    bool
}

// tableRows returns the header row followed by one row per element. An empty
// slice yields nil.
func tableRows(data any) ([][]string, error) {
	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Slice {
		return nil, fmt.Errorf("data must be a slice")
	}
	if val.Len() == 0 {
		return nil, nil
	}

	elemType := val.Type().Elem()
	if elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("data must be a slice of structs")
	}

	cols := columns(elemType)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.header
	}

	rows := [][]string{header}
	for i := 0; i < val.Len(); i++ {
		rows = append(rows, rowValues(val.Index(i), cols))
	}
	return rows, nil
}

func columns(t reflect.Type) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("table")
		if tag == "" || tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		cols = append(cols, column{index: i, header: name, hex: opts == "hex"})
	}
	return cols
}

func rowValues(v reflect.Value, cols []column) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	values := make([]string, len(cols))
	for i, c := range cols {
		field := v.Field(c.index)
		switch {
		case c.hex && field.CanUint():
			values[i] = fmt.Sprintf("0x%x", field.Uint())
		case c.hex && field.CanInt():
			values[i] = fmt.Sprintf("0x%x", field.Int())
		default:
			values[i] = fmt.Sprintf("%v", field.Interface())
		}
	}
	return values
}
