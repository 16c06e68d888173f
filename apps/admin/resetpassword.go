package main

import (
	"context"
	"fmt"
)

// resetPassword skips the password policy.
func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if _, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "password of %q updated\n", usr.Username)
	return nil
}
