package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

var (
	colorPrimary   = [3]int{24, 49, 83}    // Dark navy
	colorAccent    = [3]int{46, 204, 113}  // Green
	colorWarning   = [3]int{241, 196, 15}  // Yellow
	colorDanger    = [3]int{231, 76, 60}   // Red
	colorTextDark  = [3]int{44, 62, 80}    // Dark text
	colorTextMuted = [3]int{127, 140, 141} // Muted text
	colorTableAlt  = [3]int{241, 245, 249} // Alternating row
	colorGridLine  = [3]int{220, 220, 220} // Box borders
)

// PDFGenerator renders an executive report as a one-page A4 PDF.
type PDFGenerator struct{}

// NewPDFGenerator creates a new PDF generator.
func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

// Generate creates a PDF document from the report.
func (g *PDFGenerator) Generate(rep *ExecutiveReport) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()

	g.writeTitle(pdf, rep)
	g.writeScoreCard(pdf, rep)
	g.writeFleetTable(pdf, rep)
	g.writeIncidentTable(pdf, rep)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *PDFGenerator) writeTitle(pdf *fpdf.Fpdf, rep *ExecutiveReport) {
	pageWidth, _ := pdf.GetPageSize()

	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(20)
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 12, "Executive Security Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 7, rep.OrgName, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", rep.GeneratedAt.Format(time.RFC1123)), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func (g *PDFGenerator) writeScoreCard(pdf *fpdf.Fpdf, rep *ExecutiveReport) {
	pageWidth, _ := pdf.GetPageSize()
	cardX := 20.0
	cardWidth := pageWidth - 40
	cardHeight := 34.0
	cardY := pdf.GetY()

	scoreColor := colorAccent
	switch {
	case rep.SecurityScore < 70:
		scoreColor = colorDanger
	case rep.SecurityScore < 90:
		scoreColor = colorWarning
	}

	pdf.SetFillColor(255, 255, 255)
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	pdf.RoundedRect(cardX, cardY, cardWidth, cardHeight, 2, "1234", "FD")
	pdf.SetFillColor(scoreColor[0], scoreColor[1], scoreColor[2])
	pdf.Rect(cardX, cardY, cardWidth, 3, "F")

	pdf.SetXY(cardX+6, cardY+8)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(60, 6, "SECURITY SCORE", "", 1, "L", false, 0, "")

	pdf.SetXY(cardX+6, cardY+15)
	pdf.SetFont("Arial", "B", 26)
	pdf.SetTextColor(scoreColor[0], scoreColor[1], scoreColor[2])
	pdf.CellFormat(60, 12, fmt.Sprintf("%.1f", rep.SecurityScore), "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	online := fmt.Sprintf("%d of %d endpoints online", rep.OnlineEndpoints, rep.TotalEndpoints)
	pdf.CellFormat(0, 12, online, "", 1, "R", false, 0, "")

	pdf.SetY(cardY + cardHeight + 8)
}

func (g *PDFGenerator) writeFleetTable(pdf *fpdf.Fpdf, rep *ExecutiveReport) {
	g.sectionHeading(pdf, "Fleet")
	rows := [][2]string{
		{"Total endpoints", fmt.Sprintf("%d", rep.TotalEndpoints)},
		{"Online endpoints", fmt.Sprintf("%d", rep.OnlineEndpoints)},
	}
	g.keyValueTable(pdf, rows)
	pdf.Ln(6)
}

func (g *PDFGenerator) writeIncidentTable(pdf *fpdf.Fpdf, rep *ExecutiveReport) {
	g.sectionHeading(pdf, "Open Incidents by Severity")
	rows := [][2]string{
		{"Critical", fmt.Sprintf("%d", rep.OpenIncidents.Critical)},
		{"High", fmt.Sprintf("%d", rep.OpenIncidents.High)},
		{"Medium", fmt.Sprintf("%d", rep.OpenIncidents.Medium)},
		{"Low", fmt.Sprintf("%d", rep.OpenIncidents.Low)},
	}
	g.keyValueTable(pdf, rows)
}

func (g *PDFGenerator) sectionHeading(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func (g *PDFGenerator) keyValueTable(pdf *fpdf.Fpdf, rows [][2]string) {
	pdf.SetFont("Arial", "", 10)
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	for i, row := range rows {
		fill := i%2 == 1
		if fill {
			pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		}
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(110, 8, row[0], "B", 0, "L", fill, 0, "")
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 8, row[1], "B", 1, "R", fill, 0, "")
		pdf.SetFont("Arial", "", 10)
	}
}
