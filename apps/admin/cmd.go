package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/yarcoin/marketplace/core/account"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB // nil with the memory engine
	validate *validator.Validate
	usrSvc   *user.Service
	acctSvc  *account.Service
	bidSvc   *bidding.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	_, _ = fmt.Fprintln(cli.out, "  createteacher -username U -email E -first F -last L -specialization S [-purse N] - create a teacher account")
	_, _ = fmt.Fprintln(cli.out, "  settle -student ID - hand a student over to its highest bidder")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	createTeacherCmd := flag.NewFlagSet("createteacher", flag.ContinueOnError)
	createTeacherUname := createTeacherCmd.String("username", "", "The teacher's username.")
	createTeacherEmail := createTeacherCmd.String("email", "", "The teacher's email.")
	createTeacherFirst := createTeacherCmd.String("first", "", "The teacher's first name.")
	createTeacherLast := createTeacherCmd.String("last", "", "The teacher's last name.")
	createTeacherSpec := createTeacherCmd.String("specialization", "", "The teacher's specialization.")
	createTeacherPurse := createTeacherCmd.Int64("purse", -1, "The starting purse, in YAR. Defaults to the configured purse.")

	settleCmd := flag.NewFlagSet("settle", flag.ContinueOnError)
	settleStudent := settleCmd.String("student", "", "The ID of the student to settle.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(cli.out)
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordUname, pwd)

	case "createteacher":
		if err := createTeacherCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createTeacherUname == "" || *createTeacherEmail == "" {
			createTeacherCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(cli.out)
		if err != nil {
			return err
		}
		na := account.NewAccount{
			FirstName:      *createTeacherFirst,
			LastName:       *createTeacherLast,
			Username:       *createTeacherUname,
			Email:          *createTeacherEmail,
			Password:       pwd,
			Role:           user.RoleTeacher,
			Specialization: *createTeacherSpec,
		}
		if *createTeacherPurse >= 0 {
			na.Purse = createTeacherPurse
		}
		return cli.createTeacher(ctx, na)

	case "settle":
		if err := settleCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *settleStudent == "" {
			settleCmd.Usage()
			return errHelp
		}
		return cli.settle(ctx, *settleStudent)

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword(out io.Writer) (string, error) {
	_, _ = fmt.Fprint(out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
