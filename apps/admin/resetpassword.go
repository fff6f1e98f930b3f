package main

import (
	"context"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	if err := cli.validate.Var(pwd, "min=8"); err != nil {
		return errShortPassword
	}
	_, err := cli.profSvc.SetPassword(context.Background(), email, pwd)
	return err
}
