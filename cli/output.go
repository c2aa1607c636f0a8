package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"go.hackfix.me/migrate/plan"
)

// OutputFormat is the format command results are written in.
type OutputFormat string

// Supported output formats.
const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// Validate implements the kong.Validatable interface.
func (o OutputFormat) Validate() error {
	switch o {
	case "", OutputTable, OutputJSON, OutputYAML:
		return nil
	}
	return fmt.Errorf("invalid output format '%s'; valid values: table, json, yaml", string(o))
}

func renderReport(w io.Writer, out OutputFormat, report *plan.Report) error {
	if out != OutputTable {
		return encode(w, out, report)
	}

	if len(report.Steps) == 0 {
		if report.Err == nil {
			_, err := fmt.Fprintln(w, "No migrations to run.")
			return err //nolint:wrapcheck // This is fine.
		}
		return nil
	}

	data := make([][]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		data = append(data, []string{
			strconv.Itoa(s.Index), s.Name, s.Direction.String(), s.Status.String(),
			s.Duration.Round(time.Millisecond).String(),
		})
	}
	header := []string{"Index", "Name", "Direction", "Status", "Duration"}
	if err := renderTable(header, data, w); err != nil {
		return fmt.Errorf("failed rendering run report: %w", err)
	}

	if report.Mode == plan.NoCommit {
		_, err := fmt.Fprintln(w, "\nDry run: no changes were committed.")
		return err //nolint:wrapcheck // This is fine.
	}

	return nil
}

func renderResolution(w io.Writer, out OutputFormat, res plan.Resolution) error {
	if out != OutputTable {
		return encode(w, out, res)
	}

	if res.Empty() {
		_, err := fmt.Fprintln(w, "No migrations to run.")
		return err //nolint:wrapcheck // This is fine.
	}

	data := make([][]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		data = append(data, []string{strconv.Itoa(s.Index), s.Name, res.Direction.String()})
	}
	header := []string{"Index", "Name", "Direction"}
	if err := renderTable(header, data, w); err != nil {
		return fmt.Errorf("failed rendering resolved migrations: %w", err)
	}

	return nil
}

func renderStatus(w io.Writer, out OutputFormat, status []plan.Status) error {
	if out != OutputTable {
		return encode(w, out, status)
	}

	data := make([][]string, 0, len(status))
	for _, s := range status {
		appliedAt := "-"
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.Local().Format(time.DateTime)
		}
		data = append(data, []string{
			strconv.Itoa(s.Index), s.Name, yesNo(s.Applied), appliedAt, yesNo(s.Reversible),
		})
	}
	header := []string{"Index", "Name", "Applied", "Applied At", "Reversible"}
	if err := renderTable(header, data, w); err != nil {
		return fmt.Errorf("failed rendering migration list: %w", err)
	}

	return nil
}

func encode(w io.Writer, out OutputFormat, v any) error {
	switch out {
	case OutputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed encoding output as JSON: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err //nolint:wrapcheck // This is fine.
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed encoding output as YAML: %w", err)
		}
		return enc.Close() //nolint:wrapcheck // This is fine.
	}

	return fmt.Errorf("unsupported output format '%s'", string(out))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
