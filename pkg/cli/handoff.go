package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/usecase/memory"
)

func handoffCommand() *cli.Command {
	return &cli.Command{
		Name:  "handoff",
		Usage: "Manage the session handoff checkpoint",
		Commands: []*cli.Command{
			handoffStoreCommand(),
			handoffShowCommand(),
		},
	}
}

func handoffStoreCommand() *cli.Command {
	var (
		cfg       config
		summary   string
		nextSteps []string
		blockers  []string
		memoryIDs []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "summary",
			Aliases:     []string{"s"},
			Usage:       "What happened this session",
			Destination: &summary,
			Required:    true,
		},
		&cli.StringSliceFlag{
			Name:        "next",
			Usage:       "A next step (repeatable)",
			Destination: &nextSteps,
		},
		&cli.StringSliceFlag{
			Name:        "blocker",
			Usage:       "A blocker (repeatable)",
			Destination: &blockers,
		},
		&cli.StringSliceFlag{
			Name:        "memory-id",
			Usage:       "ID of a memory this handoff builds on (repeatable)",
			Destination: &memoryIDs,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "store",
		Usage: "Overwrite the handoff checkpoint",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			ids := make([]model.MemoryID, len(memoryIDs))
			for i, id := range memoryIDs {
				ids[i] = model.MemoryID(id)
			}

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if _, err := uc.StoreHandoff(ctx, memory.HandoffInput{
				Summary:   summary,
				NextSteps: nextSteps,
				Blockers:  blockers,
				MemoryIDs: ids,
			}); err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, "stored handoff")
			return nil
		},
	}
}

func handoffShowCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show the latest handoff checkpoint",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			mem, err := uc.GetLatestHandoff(ctx)
			if err != nil {
				return err
			}
			if mem == nil {
				fmt.Fprintln(c.Root().Writer, "no handoff stored yet")
				return nil
			}

			fmt.Fprintln(c.Root().Writer, mem.Content)
			return nil
		},
	}
}
