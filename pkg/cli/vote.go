package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/hiraku-dev/kioku/pkg/model"
)

func voteCommand() *cli.Command {
	var (
		cfg      config
		memoryID model.MemoryID
		down     bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Memory ID to vote on",
			Destination: (*string)(&memoryID),
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "down",
			Usage:       "Vote down instead of up",
			Destination: &down,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "vote",
		Usage: "Vote a memory up or down",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			delta := int64(1)
			if down {
				delta = -1
			}

			mem, err := uc.Vote(ctx, memoryID, delta)
			if err != nil {
				return err
			}
			if mem == nil {
				return goerr.New("memory not found", goerr.V("id", memoryID))
			}

			fmt.Fprintf(c.Root().Writer, "memory %s usefulness is now %d\n", mem.ID, mem.Usefulness)
			return nil
		},
	}
}
