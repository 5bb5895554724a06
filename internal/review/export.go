package review

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	lineItemsSheet = "Line Items"
	summarySheet   = "Summary"
)

// ExportWorkbook renders a review as an XLSX workbook with a line item sheet
// and a summary sheet.
func (s *Service) ExportWorkbook(id string) ([]byte, error) {
	review, err := s.GetReview(id)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", lineItemsSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}

	headers := []string{"Trade", "Description", "Qty", "Unit", "Unit Price", "Total", "Notes"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(lineItemsSheet, cell, h)
	}

	for i, item := range review.Analysis.LineItems {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(lineItemsSheet, cell, v)
		}

		write(1, item.Trade)
		write(2, item.Description)
		write(3, item.Qty)
		write(4, item.Unit)
		write(5, item.UnitPrice)
		write(6, item.Total)
		if item.Notes != nil {
			write(7, *item.Notes)
		}
	}

	_ = f.SetColWidth(lineItemsSheet, "A", "A", 18) // trade
	_ = f.SetColWidth(lineItemsSheet, "B", "B", 48) // description
	_ = f.SetColWidth(lineItemsSheet, "C", "F", 12)
	_ = f.SetColWidth(lineItemsSheet, "G", "G", 40) // notes

	verdict := review.Classification
	summary := [][]any{
		{"Review ID", review.ID},
		{"Document", review.Document.Filename},
		{"Source", string(review.Source)},
		{"Document Type", review.Analysis.DocumentType},
		{"Classification", string(verdict.Classification)},
		{"Confidence", string(verdict.Confidence)},
		{"Property Score", verdict.Scores.Property},
		{"Auto Score", verdict.Scores.Auto},
		{"Commercial Score", verdict.Scores.Commercial},
		{"Total Amount", review.Analysis.Summary.TotalAmount},
		{"Item Count", review.Analysis.Summary.ItemCount},
		{"Trades", strings.Join(review.Analysis.Summary.Trades, ", ")},
		{"Extracted At", review.Analysis.ExtractedAt.Format("2006-01-02 15:04:05")},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(summarySheet, cell, &row)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	_ = f.SetColWidth(summarySheet, "B", "B", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("Exported review",
		"review_id", review.ID,
		"rows", len(review.Analysis.LineItems),
	)
	return buf.Bytes(), nil
}
