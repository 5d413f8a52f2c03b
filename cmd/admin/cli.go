package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/service"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type userAdmin interface {
	Create(ctx context.Context, req service.CreateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error)
	ResetPassword(ctx context.Context, email, password string) error
}

type commandLine struct {
	users   userAdmin
	migrate func() error
	out     io.Writer
}

func (cli *commandLine) stdout() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) printUsage() {
	out := cli.stdout()
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  migrate - apply pending database migrations")
	fmt.Fprintln(out, "  createuser -email EMAIL -name NAME -role ADMIN|TUTOR|PARENT - create an account, the password is prompted next")
	fmt.Fprintln(out, "  resetpassword -email EMAIL - reset a user's password, the new password is prompted next")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createUserCmd := flag.NewFlagSet("createuser", flag.ContinueOnError)
	createEmail := createUserCmd.String("email", "", "Login email of the new account.")
	createName := createUserCmd.String("name", "", "Full name of the new account.")
	createRole := createUserCmd.String("role", string(models.RoleAdmin), "ADMIN, TUTOR or PARENT.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if err := cli.migrate(); err != nil {
			return err
		}
		fmt.Fprintln(cli.stdout(), "migrations applied")
		return nil
	case "createuser":
		if err := createUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createEmail == "" || *createName == "" {
			createUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		user, err := cli.users.Create(context.Background(), service.CreateUserRequest{
			Email:    *createEmail,
			FullName: *createName,
			Role:     models.UserRole(strings.ToUpper(*createRole)),
			Password: pwd,
		}, "", models.LoginRequest{})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.stdout(), "created %s %s (%s)\n", user.Role, user.Email, user.ID)
		return nil
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if err := cli.users.ResetPassword(context.Background(), *resetEmail, pwd); err != nil {
			return err
		}
		fmt.Fprintln(cli.stdout(), "password updated")
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.stdout(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.stdout())
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}
