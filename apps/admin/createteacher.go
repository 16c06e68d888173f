package main

import (
	"context"
	"fmt"

	"github.com/yarcoin/marketplace/core/account"
)

func (cli *commandLine) createTeacher(ctx context.Context, na account.NewAccount) error {
	acct, err := cli.acctSvc.Register(ctx, cli.validate, na)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "teacher %q created: id=%s purse=%d\n", acct.User.Username, acct.Teacher.ID, acct.Teacher.Purse)
	return nil
}
