package main

import (
	"context"
	"fmt"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/professor"
)

// addProfessor updates or creates a professor.Professor
func (cli *commandLine) addProfessor(name, email, dept, pwd string) error {
	ctx := context.Background()

	prof, err := cli.profSvc.GetByEmail(ctx, email)
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		np := professor.NewProfessor{Name: name, Email: email, Department: dept, Password: pwd}
		if err = np.Validate(cli.validate, cli.profSvc); err != nil {
			return err
		}
		if prof, err = cli.profSvc.Create(ctx, np); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "professor #%d created\n", prof.ID)
		return nil
	}

	up := professor.UpdateProfessor{Name: &name, Department: &dept, Password: pwd}
	if err = up.Validate(prof, cli.validate, cli.profSvc); err != nil {
		return err
	}
	if prof, err = cli.profSvc.Update(ctx, prof, up); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "professor #%d updated\n", prof.ID)
	return nil
}
