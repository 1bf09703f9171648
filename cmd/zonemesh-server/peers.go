package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/zonemesh-go/internal/cli/output"
	"github.com/yndnr/zonemesh-go/internal/peer/membership"
	"github.com/yndnr/zonemesh-go/internal/server/config"
	"github.com/yndnr/zonemesh-go/internal/storage"
)

func peersCommand() *cli.Command {
	return &cli.Command{
		Name:  "peers",
		Usage: "List the peer records cached in the data directory (server must be stopped)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "storage.data_dir of the peer",
				Value: config.DefaultDataDir,
			},
			&cli.DurationFlag{
				Name:  "refresh-interval",
				Usage: "cluster.refresh_interval used to judge liveness",
				Value: membership.DefaultRefreshInterval,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: table, json, yaml",
				Value:   string(output.FormatTable),
			},
		},
		Action: listPeers,
	}
}

type peerRow struct {
	Name         string    `json:"name"`
	Region       string    `json:"region"`
	InternalAddr string    `json:"internal_addr"`
	ExternalHost string    `json:"external_host"`
	Active       bool      `json:"active"`
	Live         bool      `json:"live"`
	Updated      time.Time `json:"updated"`
}

func listPeers(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := storage.NewBadgerEngine(storage.DefaultKVConfig(c.String("data-dir")), quiet)
	if err != nil {
		return err
	}
	defer engine.Close()

	records, err := storage.NewPeerStore(engine).LoadPeers(c.Context)
	if err != nil {
		return fmt.Errorf("load peers: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	now := time.Now()
	refresh := c.Duration("refresh-interval")
	rows := make([]peerRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, peerRow{
			Name:         r.Name,
			Region:       r.Region,
			InternalAddr: r.InternalAddr(),
			ExternalHost: r.ExternalHost,
			Active:       r.Active,
			Live:         r.IsLive(now, refresh),
			Updated:      r.Updated,
		})
	}
	return output.NewFormatter(format, true).Format(c.App.Writer, rows)
}
