package grading

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/grader/core/assignment"
)

var csvHeader = []string{"Student Name", "Student ID", "Score", "Max Score", "Percentage", "Feedback", "Grading Status"}

// CSVFilename is the download name of an assignment's grading results.
func CSVFilename(assignmentID int) string {
	return fmt.Sprintf("assignment_%d_grading_results.csv", assignmentID)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteCSV writes the assignment's grading results as CSV, one row per submission.
func (svc *Service) WriteCSV(ctx context.Context, asn assignment.Assignment, w io.Writer) error {
	results, err := svc.repo.QueryResults(ctx, asn.ID)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}

	cw := csv.NewWriter(w)
	if err = cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, r := range results {
		record := []string{
			r.StudentName,
			r.StudentID,
			formatScore(r.Score),
			formatScore(r.MaxScore),
			fmt.Sprintf("%.1f%%", r.Percentage()),
			r.Feedback,
			r.GradingStatus,
		}
		if err = cw.Write(record); err != nil {
			return errors.Wrap(err, "writing csv record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
