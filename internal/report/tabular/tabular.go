// Package tabular flattens report sections into (category, field, value) rows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jwalitptl/clinic-reports/internal/model"
	"github.com/jwalitptl/clinic-reports/internal/report/section"
)

// Row is one flattened field.
type Row struct {
	Category string
	Field    string
	Value    string
}

// Header returns the column names for a report kind. Appointment reports
// are vitals-centric and name the second column "Metric".
func Header(kind model.ReportKind) []string {
	if kind == model.ReportKindAppointment {
		return []string{"Category", "Metric", "Value"}
	}
	return []string{"Category", "Field", "Value"}
}

// Rows flattens sections in order, one row per field.
func Rows(sections []section.Section) []Row {
	var rows []Row
	for _, s := range sections {
		for _, e := range s.Entries {
			for _, f := range e.Fields {
				rows = append(rows, Row{Category: e.Category, Field: f.Label, Value: f.Value})
			}
		}
	}
	return rows
}

// Write serializes the header and rows as RFC 4180 CSV with "\n" line
// endings. Values containing commas, quotes or newlines are quoted.
func Write(w io.Writer, kind model.ReportKind, sections []section.Section) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(kind)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range Rows(sections) {
		if err := cw.Write([]string{r.Category, r.Field, r.Value}); err != nil {
			return fmt.Errorf("write row %q/%q: %w", r.Category, r.Field, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export builds the sections for req and returns the CSV body.
func Export(req *model.ReportRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, req.Kind, section.Build(req)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
