package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	mbp "go.litevfs.dev/core/mainboilerplate"
	"go.litevfs.dev/core/timetravel"
	"go.litevfs.dev/core/vfs"
)

type cmdReadPage struct {
	Replica string `long:"replica" short:"r" required:"true" description:"Alias of the replica to read from"`
	Page    uint32 `long:"page" short:"p" required:"true" description:"Page number to read (1-indexed)"`
	At      string `long:"at" description:"Optional point in time; reads the live view if not set"`
}

func addCmdReadPage(parser *flags.Parser) {
	var _, err = parser.AddCommand("read-page", "Read a database page to stdout", `
Read the content of a single database page from a replica, either live or as
of a point in time, and write it to stdout.
`, &cmdReadPage{})
	mbp.Must(err, "failed to add read-page subcommand")
}

func (cmd *cmdReadPage) Execute([]string) error {
	startup()

	var reg, reader, cache = newStack()
	var replica, ok = reg.Replica(cmd.Replica)
	if !ok {
		return fmt.Errorf("no replica with alias %q", cmd.Replica)
	}

	var ctx = context.Background()
	var fs = vfs.NewFileSystem(reader, cache, reg)

	var data []byte
	var err error
	if cmd.At != "" {
		var at time.Time
		if at, err = timetravel.ParseTimeSpec(cmd.At, time.Now()); err != nil {
			return err
		}
		err = timetravel.With(ctx, fs, reader, replica, at, func(s *timetravel.Session) error {
			data, err = s.ReadPage(ctx, cmd.Page)
			return err
		})
	} else {
		var handle *vfs.Handle
		if handle, err = fs.Open(replica); err != nil {
			return err
		}
		defer handle.Close()
		data, err = handle.ReadPage(ctx, cmd.Page)
	}
	if err != nil {
		return err
	}

	var _, werr = os.Stdout.Write(data)
	return werr
}
