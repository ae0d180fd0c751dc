package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	mbp "go.litevfs.dev/core/mainboilerplate"
	"go.litevfs.dev/core/timetravel"
)

type cmdResolve struct {
	Replica string `long:"replica" short:"r" required:"true" description:"Alias of the replica to resolve against"`
	At      string `long:"at" required:"true" description:"Point in time: an RFC3339 timestamp, a date, or eg \"90 seconds ago\""`
}

func addCmdResolve(parser *flags.Parser) {
	var _, err = parser.AddCommand("resolve", "Resolve a time to a transaction index", `
Resolve a point-in-time specification to the transaction index in effect at
that moment on the replica. Requests landing between commits round down to
the preceding index.

Examples:
>    litevfs resolve -r analytics --at "2026-08-20T15:04:05Z"
>    litevfs resolve -r analytics --at "90 seconds ago"
`, &cmdResolve{})
	mbp.Must(err, "failed to add resolve subcommand")
}

func (cmd *cmdResolve) Execute([]string) error {
	startup()

	var reg, reader, _ = newStack()
	var replica, ok = reg.Replica(cmd.Replica)
	if !ok {
		return fmt.Errorf("no replica with alias %q", cmd.Replica)
	}

	var at, err = timetravel.ParseTimeSpec(cmd.At, time.Now())
	if err != nil {
		return err
	}

	var ctx = context.Background()
	txid, err := reader.ResolveTimestamp(ctx, replica, at)
	if err != nil {
		return err
	}
	header, err := reader.Header(ctx, replica, txid)
	if err != nil {
		return err
	}

	fmt.Printf("txid\t%d\ncommitted\t%s\npages\t%d\n",
		txid, header.CommitTime.Format(time.RFC3339), header.PageCount)
	return nil
}
