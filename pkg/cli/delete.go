package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/hiraku-dev/kioku/pkg/model"
)

func deleteCommand() *cli.Command {
	var (
		cfg      config
		memoryID model.MemoryID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Memory ID to delete",
			Destination: (*string)(&memoryID),
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "delete",
		Usage: "Soft-delete a memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			found, err := uc.Delete(ctx, memoryID)
			if err != nil {
				return err
			}
			if !found {
				return goerr.New("memory not found", goerr.V("id", memoryID))
			}

			fmt.Fprintf(c.Root().Writer, "deleted memory %s\n", memoryID)
			return nil
		},
	}
}
