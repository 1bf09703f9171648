package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/zonemesh-go/internal/infra/buildinfo"
	"github.com/yndnr/zonemesh-go/pkg/token"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "zonemesh-server",
		Usage:   "zonemesh peer coordination server",
		Version: buildinfo.String(),
		Commands: []*cli.Command{
			serveCommand(),
			peersCommand(),
			{
				Name:  "secret",
				Usage: "Generate a cluster shared secret (peer.shared_secret)",
				Action: func(c *cli.Context) error {
					s, err := token.GenerateSecret()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, s)
					return err
				},
			},
			{
				Name:  "version",
				Usage: "Print build information",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintf(c.App.Writer, "zonemesh-server %s\n", buildinfo.String())
					return err
				},
			},
		},
	}
}
