package command

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/zonemesh-go/internal/cli/connection"
	"github.com/yndnr/zonemesh-go/internal/cli/output"
	"github.com/yndnr/zonemesh-go/internal/infra/buildinfo"
	"github.com/yndnr/zonemesh-go/internal/infra/tlsroots"
)

// DefaultAdminAddr is the admin API address used without --admin.
const DefaultAdminAddr = "127.0.0.1:5080"

const requestTimeout = 30 * time.Second

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "zonemesh-cli",
		Usage:   "Inspect a zonemesh peer cluster through a peer's admin API",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ClusterCommand(),
			SessionCommand(),
			InstanceCommand(),
			SystemCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "admin",
			Aliases: []string{"a"},
			Usage:   "admin API address of a peer (host:port, URL or unix:///path)",
			EnvVars: []string{"ZONEMESH_ADMIN"},
			Value:   DefaultAdminAddr,
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM file of the CA that signed the admin certificate; implies https",
			EnvVars: []string{"ZONEMESH_CA_FILE"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show all table columns",
		},
	}
}

// GlobalFlags holds the flags shared by every command.
type GlobalFlags struct {
	Admin  string
	CAFile string
	Output output.Format
	Wide   bool
}

// ParseGlobalFlags extracts and validates the global flags.
func ParseGlobalFlags(c *cli.Context) (GlobalFlags, error) {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return GlobalFlags{}, err
	}
	return GlobalFlags{
		Admin:  c.String("admin"),
		CAFile: c.String("ca-file"),
		Output: format,
		Wide:   c.Bool("wide"),
	}, nil
}

// fetch GETs path from the admin API into target.
func fetch(c *cli.Context, path string, target any) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	var opts []connection.Option
	if flags.CAFile != "" {
		pool := tlsroots.NewPool()
		if err := pool.AddCertFile(flags.CAFile); err != nil {
			return err
		}
		opts = append(opts, connection.WithTLSConfig(pool.ClientConfig()))
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()
	if err := connection.NewClient(flags.Admin, opts...).Get(ctx, path, target); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}

// render writes data in the selected format. Table output shows rows
// instead of data when rows is not nil.
func render(c *cli.Context, data, rows any) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	if flags.Output == output.FormatTable && rows != nil {
		data = rows
	}
	return output.NewFormatter(flags.Output, flags.Wide).Format(writer(c), data)
}

func writer(c *cli.Context) io.Writer {
	return c.App.Writer
}
