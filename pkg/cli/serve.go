package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/hiraku-dev/kioku/pkg/service/mcp"
	"github.com/hiraku-dev/kioku/pkg/utils/logging"
)

const version = "0.1.0"

func serveCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve memory tools over MCP stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			server, err := mcp.New(uc, version)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("starting MCP stdio server", "db", cfg.dbPath)
			return server.RunStdio(ctx)
		},
	}
}
