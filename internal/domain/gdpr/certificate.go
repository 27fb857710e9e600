package gdpr

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// GenerateDeletionCertificate renders a proof-of-erasure document for
// the compliance requester, summarizing what each step removed.
func GenerateDeletionCertificate(result *DeletionResult, reason, requestedBy string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Certificate of Data Erasure")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Workspace: %s", result.TeamID))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Requested by: %s", requestedBy))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Reason: %s", reason))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Completed: %s", result.CompletedAt.Format("2006-01-02 15:04:05 MST")))
	pdf.Ln(7)
	status := "complete"
	if !result.Success {
		status = "partial (see step errors)"
	}
	pdf.Cell(0, 8, fmt.Sprintf("Outcome: %s", status))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Erasure steps")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for _, step := range result.Steps {
		line := fmt.Sprintf("%s: %d record(s)", step.Step, step.Deleted)
		if step.Error != "" {
			line += " - FAILED: " + step.Error
		}
		pdf.Cell(0, 7, line)
		pdf.Ln(6)
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Total records erased: %d", result.TotalDeleted))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "This erasure is irreversible. No backup, soft-delete or undo path "+
		"exists for the records listed above.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
