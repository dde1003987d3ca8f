package main

import (
	"database/sql"
	"flag"
	"fmt"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/eduweave/eduweave/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp             = errors.New("help provided")
	errPasswordMismatch = errors.New("passwords do not match")
)

type commandLine struct {
	db         *sql.DB
	usrSvc     *user.Service
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) against the database")
	fmt.Println("  adduser -email EMAIL -name NAME -role teacher|district_official -district ID [-school NAME -school-code CODE] - create or update an account")
	fmt.Println("  resetpassword -email EMAIL - reset an account's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The account's e-mail, used to sign in.")
	addUserName := addUserCmd.String("name", "", "The account's display name.")
	addUserRole := addUserCmd.String("role", user.RoleTeacher.String(), "teacher or district_official.")
	addUserDistrict := addUserCmd.String("district", "", "The district the account belongs to.")
	addUserSchool := addUserCmd.String("school", "", "The teacher's school name.")
	addUserSchoolCode := addUserCmd.String("school-code", "", "The teacher's school code.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's e-mail. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(true)
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(user.NewAccount{
			Email:           *addUserEmail,
			DisplayName:     *addUserName,
			Role:            *addUserRole,
			DistrictID:      *addUserDistrict,
			SchoolName:      *addUserSchool,
			SchoolCode:      *addUserSchoolCode,
			Password:        pwd,
			PasswordConfirm: pwd,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(false)
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

// promptPassword reads a password from the terminal, twice when confirm is set.
func promptPassword(confirm bool) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if !confirm || len(pwd) == 0 {
		return string(pwd), nil
	}

	fmt.Print("Confirm password:")
	again, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(again) != string(pwd) {
		return "", errPasswordMismatch
	}
	return string(pwd), nil
}
