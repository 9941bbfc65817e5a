package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/ranking"
)

func searchCommand() *cli.Command {
	var (
		cfg            config
		query          string
		intent         string
		limit          int64
		includeDeleted bool
	)

	intents := make([]string, 0)
	for _, v := range model.Intents() {
		intents = append(intents, string(v))
	}

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Free-text search query",
			Destination: &query,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "intent",
			Aliases:     []string{"i"},
			Usage:       "Search intent (" + strings.Join(intents, ", ") + ")",
			Destination: &intent,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of results",
			Value:       10,
			Destination: &limit,
		},
		&cli.BoolFlag{
			Name:        "include-deleted",
			Usage:       "Also surface soft-deleted memories",
			Destination: &includeDeleted,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search memories by hybrid relevance under an intent",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			results, err := uc.Search(ctx, query, ranking.Options{
				Intent:         model.Intent(intent),
				Limit:          int(limit),
				IncludeDeleted: includeDeleted,
			})
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(results) == 0 {
				fmt.Fprintln(w, "no memories found")
				return nil
			}

			for i, r := range results {
				marker := ""
				if r.Deleted {
					marker = " (deleted)"
				}
				fmt.Fprintf(w, "%d. [%.4f] %s%s\n   %s\n", i+1, r.Score, r.Memory.ID, marker, r.Memory.Content)
			}
			return nil
		},
	}
}
