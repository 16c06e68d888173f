package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) settle(ctx context.Context, studentID string) error {
	stlmt, err := cli.bidSvc.SettleHighestBid(ctx, studentID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "student %s acquired by teacher %s for %d YAR (%d refunds)\n",
		stlmt.StudentID, stlmt.TeacherID, stlmt.Amount, len(stlmt.Refunds))
	for _, r := range stlmt.Refunds {
		_, _ = fmt.Fprintf(cli.out, "  refunded %d YAR to teacher %s (bid %s)\n", r.Amount, r.TeacherID, r.BidID)
	}
	return nil
}
