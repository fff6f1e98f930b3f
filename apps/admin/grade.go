package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
)

func (cli *commandLine) grade(assignmentID, maxPoints int) error {
	ctx := context.Background()
	asn, err := cli.asnSvc.GetByID(ctx, assignmentID)
	if err != nil {
		return err
	}

	var opts grading.GradeOptions
	if maxPoints > 0 {
		opts.MaxPoints = &maxPoints
	}
	summary, err := cli.gradingSvc.Grade(ctx, asn, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "%s: graded %d/%d submissions, average score %.1f\n",
		asn.Title, summary.SuccessfulGrades, summary.TotalSubmissions, summary.AverageScore)
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	for _, r := range summary.Results {
		fmt.Fprintf(w, "  %s\t%g/%g\t%s\n", r.StudentName, r.Score, r.MaxScore, r.GradingStatus)
	}
	return w.Flush()
}

func (cli *commandLine) listAssignments(professorID int) error {
	ctx := context.Background()
	asns, err := cli.asnSvc.Query(ctx, &assignment.QueryFilter{ProfessorID: professorID}, nil)
	if err != nil {
		return err
	}
	if asns, err = cli.gradingSvc.Annotate(ctx, asns...); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPROFESSOR\tAVERAGE")
	for _, asn := range asns {
		avg := "-"
		if asn.AverageScore != nil {
			avg = fmt.Sprintf("%.1f%%", *asn.AverageScore)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", asn.ID, asn.Title, asn.ProfessorID, avg)
	}
	return w.Flush()
}
