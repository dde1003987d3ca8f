package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/user"
)

// addUser updates or creates the account registered with na.Email
func (cli *commandLine) addUser(na user.NewAccount) error {
	if err := na.Validate(cli.validate); err != nil {
		return cli.validationError(err)
	}
	acc, err := cli.usrSvc.Save(context.Background(), na)
	if err != nil {
		return err
	}
	fmt.Printf("saved %s account %s (%s)\n", acc.Role, acc.Email, acc.ID)
	return nil
}

// resetPassword sets a new password on an existing account, re-activating it.
func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	acc, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return cli.addUser(user.NewAccount{
		Email:           acc.Email,
		DisplayName:     acc.DisplayName,
		Role:            acc.Role.String(),
		DistrictID:      acc.DistrictID,
		SchoolName:      acc.SchoolName,
		SchoolCode:      acc.SchoolCode,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
}

func (cli *commandLine) validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := core.TranslateValidationErrors(verrs, cli.translator)
	msgs := make([]string, 0, len(fields))
	for field, msg := range fields {
		msgs = append(msgs, field+": "+msg)
	}
	sort.Strings(msgs)
	return errors.New("invalid account: " + strings.Join(msgs, "; "))
}
