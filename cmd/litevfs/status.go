package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	mbp "go.litevfs.dev/core/mainboilerplate"
	pb "go.litevfs.dev/core/protocol"
	"gopkg.in/yaml.v2"
)

type cmdStatus struct {
	Format string `long:"format" short:"o" choice:"table" choice:"yaml" default:"table" description:"Output format"`
}

func addCmdStatus(parser *flags.Parser) {
	var _, err = parser.AddCommand("status", "Show replica replication status", `
Poll each configured replica once and report its latest transaction index,
replication lag, and health classification.
`, &cmdStatus{})
	mbp.Must(err, "failed to add status subcommand")
}

func (cmd *cmdStatus) Execute([]string) error {
	startup()

	var reg, _, _ = newStack()
	reg.Poll(context.Background())

	var now = time.Now()
	var statuses = reg.Status()

	switch cmd.Format {
	case "yaml":
		type row struct {
			Replica string `yaml:"replica"`
			Store   string `yaml:"store"`
			TxID    uint64 `yaml:"txid"`
			Lag     string `yaml:"lag"`
			Health  string `yaml:"health"`
		}
		var rows []row
		for _, s := range statuses {
			rows = append(rows, row{
				Replica: s.Alias,
				Store:   string(s.Store),
				TxID:    uint64(s.TxID),
				Lag:     lagString(s, now),
				Health:  s.Health(now, reg.Thresholds()).String(),
			})
		}
		var b, err = yaml.Marshal(rows)
		mbp.Must(err, "failed to marshal status")
		os.Stdout.Write(b)

	case "table":
		var table = tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Replica", "Store", "TxID", "Lag", "Health", "Failures"})

		for _, s := range statuses {
			table.Append([]string{
				s.Alias,
				string(s.Store),
				strconv.FormatUint(uint64(s.TxID), 10),
				lagString(s, now),
				s.Health(now, reg.Thresholds()).String(),
				strconv.Itoa(s.PollFailures),
			})
		}
		table.Render()
	}
	return nil
}

func lagString(s pb.ReplicaStatus, now time.Time) string {
	var lag, ok = s.Lag(now)
	if !ok {
		return "<never polled>"
	}
	return fmt.Sprint(lag.Truncate(time.Second))
}
