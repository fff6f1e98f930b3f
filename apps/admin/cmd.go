package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
	"github.com/trezcool/grader/core/professor"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp          = errors.New("help provided")
	errNoDatabase    = errors.New("migrations need the postgres database engine")
	errShortPassword = errors.New("the password must be at least 8 characters long")
)

type commandLine struct {
	db         *sql.DB // nil with the inmem engine
	profSvc    *professor.Service
	asnSvc     *assignment.Service
	gradingSvc *grading.Service
	validate   *validator.Validate
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) on the database")
	fmt.Fprintln(cli.out, "  addprofessor -name NAME -email EMAIL [-department DEPT] - create or update a professor")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset a professor's password")
	fmt.Fprintln(cli.out, "  grade -assignment ID [-max-points N] - grade the uploaded submissions of an assignment")
	fmt.Fprintln(cli.out, "  assignments [-professor ID] - list assignments with their average scores")
}

func (cli *commandLine) readPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addProfessorCmd := flag.NewFlagSet("addprofessor", flag.ExitOnError)
	addProfessorName := addProfessorCmd.String("name", "", "The professor's full name.")
	addProfessorEmail := addProfessorCmd.String("email", "", "The professor's email. The password will be prompted next.")
	addProfessorDept := addProfessorCmd.String("department", "", "The professor's department.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The professor's email. The password will be prompted next.")

	gradeCmd := flag.NewFlagSet("grade", flag.ExitOnError)
	gradeAssignment := gradeCmd.Int("assignment", 0, "The assignment ID.")
	gradeMaxPoints := gradeCmd.Int("max-points", 0, "Override the assignment's max points.")

	assignmentsCmd := flag.NewFlagSet("assignments", flag.ExitOnError)
	assignmentsProfessor := assignmentsCmd.Int("professor", 0, "Only list the assignments of this professor.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addprofessor":
		if err := addProfessorCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addProfessorName == "" || *addProfessorEmail == "" {
			addProfessorCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addProfessorCmd)
		if err != nil {
			return err
		}
		return cli.addProfessor(*addProfessorName, *addProfessorEmail, *addProfessorDept, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "grade":
		if err := gradeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *gradeAssignment <= 0 {
			gradeCmd.Usage()
			return errHelp
		}
		return cli.grade(*gradeAssignment, *gradeMaxPoints)

	case "assignments":
		if err := assignmentsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listAssignments(*assignmentsProfessor)

	default:
		cli.printUsage()
		return errHelp
	}
}
