package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/zonemesh-go/internal/cli/connection"
	"github.com/yndnr/zonemesh-go/internal/server/httpserver/handler"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Peer process commands",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check that the peer is serving",
				Action: systemHealth,
			},
			{
				Name:   "ready",
				Usage:  "Check that the peer has loaded the membership",
				Action: systemReady,
			},
		},
	}
}

func systemHealth(c *cli.Context) error {
	var h handler.HealthResponse
	if err := fetch(c, "/health", &h); err != nil {
		return err
	}
	return render(c, h, nil)
}

func systemReady(c *cli.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	err := fetch(c, "/ready", &status)
	var apiErr *connection.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("not ready: %s", apiErr.Message)
	}
	if err != nil {
		return err
	}
	return render(c, status, nil)
}
