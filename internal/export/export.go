// Package export renders questions into an xlsx workbook for admins.
package export

import (
	"bytes"
	"fmt"
	"time"

	"studyqa-bot/internal/database/models"

	"github.com/xuri/excelize/v2"
)

// SheetName is the name of the only worksheet in the workbook.
const SheetName = "Questions"

var header = []interface{}{
	"ID", "Status", "Grade", "Asker ID", "Asker", "Content", "Media Type",
	"Answers", "Author Updates", "Replies", "Right", "Wrong", "Created At", "Approved At",
}

// Filename returns the attachment name for an export taken at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("questions_%s.xlsx", t.UTC().Format("20060102_150405"))
}

// Questions writes one row per question, newest first as given.
func Questions(questions []models.Question) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i := range questions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to compute cell for row %d: %w", i+2, err)
		}
		row := questionRow(&questions[i])
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

func questionRow(q *models.Question) []interface{} {
	var updates, replies, right, wrong int
	for _, a := range q.Answers {
		if a.IsAuthorUpdate {
			updates++
		}
		replies += len(a.Replies)
		right += a.Reactions.Right
		wrong += a.Reactions.Wrong
	}

	approvedAt := ""
	if q.ApprovedAt != nil {
		approvedAt = q.ApprovedAt.UTC().Format(time.RFC3339)
	}

	return []interface{}{
		q.ID.Hex(),
		string(q.Status),
		q.GradeLevel.Label(),
		q.UserID,
		q.UserName,
		q.Content,
		string(q.MediaType),
		q.AnswerCount() - updates,
		updates,
		replies,
		right,
		wrong,
		q.CreatedAt.UTC().Format(time.RFC3339),
		approvedAt,
	}
}
