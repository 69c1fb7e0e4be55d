package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

// CSVGenerator renders an executive report as CSV.
type CSVGenerator struct{}

// NewCSVGenerator creates a new CSV generator.
func NewCSVGenerator() *CSVGenerator {
	return &CSVGenerator{}
}

// Generate creates a CSV document from the report.
func (g *CSVGenerator) Generate(rep *ExecutiveReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := g.writeHeader(w, rep); err != nil {
		return nil, fmt.Errorf("write CSV header section: %w", err)
	}
	if err := g.writeFleet(w, rep); err != nil {
		return nil, fmt.Errorf("write CSV fleet section: %w", err)
	}
	if err := g.writeIncidents(w, rep); err != nil {
		return nil, fmt.Errorf("write CSV incident section: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV write error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *CSVGenerator) writeHeader(w *csv.Writer, rep *ExecutiveReport) error {
	headers := [][]string{
		{"# OneShield Executive Security Report"},
		{"# Organization:", rep.OrgName},
		{"# Organization ID:", rep.OrgID},
		{"# Generated:", rep.GeneratedAt.Format(time.RFC3339)},
		{""},
	}
	for _, row := range headers {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write header row %q: %w", row[0], err)
		}
	}
	return nil
}

func (g *CSVGenerator) writeFleet(w *csv.Writer, rep *ExecutiveReport) error {
	if err := w.Write([]string{"# FLEET"}); err != nil {
		return fmt.Errorf("write fleet section heading: %w", err)
	}
	rows := [][]string{
		{"Metric", "Value"},
		{"Total Endpoints", fmt.Sprintf("%d", rep.TotalEndpoints)},
		{"Online Endpoints", fmt.Sprintf("%d", rep.OnlineEndpoints)},
		{"Security Score", fmt.Sprintf("%.1f", rep.SecurityScore)},
		{""},
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write fleet row %q: %w", row[0], err)
		}
	}
	return nil
}

func (g *CSVGenerator) writeIncidents(w *csv.Writer, rep *ExecutiveReport) error {
	if err := w.Write([]string{"# OPEN INCIDENTS"}); err != nil {
		return fmt.Errorf("write incident section heading: %w", err)
	}
	rows := [][]string{
		{"Severity", "Count"},
		{"Critical", fmt.Sprintf("%d", rep.OpenIncidents.Critical)},
		{"High", fmt.Sprintf("%d", rep.OpenIncidents.High)},
		{"Medium", fmt.Sprintf("%d", rep.OpenIncidents.Medium)},
		{"Low", fmt.Sprintf("%d", rep.OpenIncidents.Low)},
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write incident row %q: %w", row[0], err)
		}
	}
	return nil
}
