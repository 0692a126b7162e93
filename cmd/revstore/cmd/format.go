package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/gosuri/uitable"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Formatter renders the result of a command
type Formatter interface {
	Format(io.Writer, interface{}) error
}

// FormatterFunc is a function usable as a Formatter
type FormatterFunc func(io.Writer, interface{}) error

// Format implements Formatter
func (f FormatterFunc) Format(w io.Writer, data interface{}) error {
	return f(w, data)
}

var (
	yamlFormatter = FormatterFunc(func(w io.Writer, data interface{}) error {
		return yaml.NewEncoder(w).Encode(data)
	})
	jsonFormatter = FormatterFunc(func(w io.Writer, data interface{}) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	})
)

// formatters registered per command, on top of yaml and json
var formatters = map[*cobra.Command]map[string]Formatter{}

// addFormatFlag adds a --format flag to a command, defaulting to the given format
func addFormatFlag(cmd *cobra.Command, defaultFormat string, extra map[string]Formatter) {
	available := map[string]Formatter{
		"yaml": yamlFormatter,
		"json": jsonFormatter,
	}
	for name, f := range extra {
		available[name] = f
	}
	formatters[cmd] = available

	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)
	cmd.Flags().StringP("format", "o", defaultFormat,
		fmt.Sprintf("The output format: %s", strings.Join(names, ", ")))
}

// print the result of a command with the format selected by the --format flag
func print(cmd *cobra.Command, data interface{}) error {
	name, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	f, ok := formatters[cmd][name]
	if !ok {
		return fmt.Errorf("unsupported format %q", name)
	}
	return f.Format(cmd.OutOrStdout(), data)
}

// newTable starts a table with a header row
func newTable(header ...interface{}) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow(header...)
	return table
}

// writeTable renders a table, followed by a new line
func writeTable(w io.Writer, table *uitable.Table) error {
	_, err := fmt.Fprintln(w, table.String())
	return err
}

// age renders the time elapsed since t, e.g. "3 minutes ago"
func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return units.HumanDuration(time.Since(t)) + " ago"
}
