package recommend

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// SQLScript concatenates the CREATE INDEX statements of every pending
// recommendation into one runnable script, each prefixed with a title
// and impact-score comment.
func SQLScript(recs []Recommendation) string {
	var lines []string
	for _, r := range recs {
		if r.SQLScript == "" || r.Status != StatusPending {
			continue
		}
		lines = append(lines,
			fmt.Sprintf("-- %s", r.Title),
			fmt.Sprintf("-- Impact Score: %.2f", r.ImpactScore),
			r.SQLScript,
			"\n",
		)
	}
	return strings.Join(lines, "\n")
}

// MarkdownReport renders a human-readable summary of every
// recommendation, regardless of status.
func MarkdownReport(recs []Recommendation) string {
	lines := []string{"# PostgreSQL Optimization Recommendations", "\n"}
	for _, r := range recs {
		lines = append(lines,
			fmt.Sprintf("## %s", r.Title),
			fmt.Sprintf("Type: %s", capitalize(string(r.Type))),
			fmt.Sprintf("Impact Score: %.2f", r.ImpactScore),
			fmt.Sprintf("Status: %s", capitalize(string(r.Status))),
			"\n",
			r.Description,
			"\n",
		)
		if r.SQLScript != "" {
			lines = append(lines,
				"Implementation Script:",
				"```sql",
				r.SQLScript,
				"```",
			)
		}
		lines = append(lines, "\n---\n")
	}
	return strings.Join(lines, "\n")
}

// PDFReport renders an A4 portrait report: title, totals, then one
// block per recommendation.
func PDFReport(recs []Recommendation) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Index Recommendations", false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Index Recommendations")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pending := 0
	for _, r := range recs {
		if r.Status == StatusPending {
			pending++
		}
	}
	pdf.Cell(0, 6, fmt.Sprintf("Total recommendations: %d (%d pending)", len(recs), pending))
	pdf.Ln(10)

	pageBottom := 277.0 // A4 height 297mm with ~20mm bottom margin
	for _, r := range recs {
		if pdf.GetY() > pageBottom-40 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 12)
		pdf.MultiCell(0, 6, r.Title, "", "L", false)

		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, fmt.Sprintf("Impact Score: %.2f    Status: %s", r.ImpactScore, r.Status), "", "L", false)
		pdf.MultiCell(0, 5, r.Description, "", "L", false)

		if r.SQLScript != "" {
			pdf.SetFont("Courier", "", 9)
			pdf.MultiCell(0, 5, r.SQLScript, "", "L", false)
		}
		pdf.Ln(4)
	}

	out := &bytes.Buffer{}
	if err := pdf.Output(out); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return out.Bytes(), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
