package command

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/zonemesh-go/internal/server/httpserver/handler"
)

// ClusterCommand returns the cluster subcommand group.
func ClusterCommand() *cli.Command {
	return &cli.Command{
		Name:  "cluster",
		Usage: "Cluster membership commands",
		Subcommands: []*cli.Command{
			{
				Name:   "peers",
				Usage:  "List the live peers known to the target peer",
				Action: clusterPeers,
			},
		},
	}
}

type peerRow struct {
	Name     string    `json:"name"`
	Region   string    `json:"region"`
	Address  string    `json:"address"`
	External string    `json:"external" table:"wide"`
	Role     string    `json:"role"`
	Channel  string    `json:"channel"`
	Updated  time.Time `json:"updated" table:"wide"`
}

func clusterPeers(c *cli.Context) error {
	var resp handler.PeersResponse
	if err := fetch(c, "/v1/peers", &resp); err != nil {
		return err
	}
	rows := make([]peerRow, 0, len(resp.Peers))
	for _, p := range resp.Peers {
		row := peerRow{
			Name:     p.Name,
			Region:   p.Region,
			Address:  p.InternalAddr,
			External: p.ExternalHost,
			Role:     "member",
			Channel:  "down",
			Updated:  p.Updated,
		}
		if p.Leader {
			row.Role = "leader"
		}
		switch {
		case p.Self:
			row.Channel = "self"
		case p.Established:
			row.Channel = "up"
		}
		rows = append(rows, row)
	}
	return render(c, resp, rows)
}

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Session directory commands",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the sessions in the directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "only sessions owned by this peer"},
				},
				Action: sessionList,
			},
			{
				Name:      "get",
				Usage:     "Resolve a session by name",
				ArgsUsage: "<name>",
				Action:    sessionGet,
			},
		},
	}
}

func sessionList(c *cli.Context) error {
	path := "/v1/sessions"
	if owner := c.String("owner"); owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var sessions []handler.SessionView
	if err := fetch(c, path, &sessions); err != nil {
		return err
	}
	return render(c, sessions, nil)
}

func sessionGet(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s <name>", c.Command.HelpName)
	}
	var s handler.SessionView
	if err := fetch(c, "/v1/sessions/"+url.PathEscape(c.Args().First()), &s); err != nil {
		return err
	}
	return render(c, s, nil)
}

// InstanceCommand returns the instance subcommand group.
func InstanceCommand() *cli.Command {
	return &cli.Command{
		Name:    "instance",
		Aliases: []string{"inst"},
		Usage:   "Instance directory commands",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the known instances",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "zone", Usage: "only instances of this zone id"},
				},
				Action: instanceList,
			},
		},
	}
}

func instanceList(c *cli.Context) error {
	path := "/v1/instances"
	if c.IsSet("zone") {
		path += "?zone=" + strconv.FormatUint(uint64(c.Uint("zone")), 10)
	}
	var instances []handler.InstanceView
	if err := fetch(c, path, &instances); err != nil {
		return err
	}
	return render(c, instances, nil)
}
