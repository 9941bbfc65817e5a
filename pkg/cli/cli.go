// Package cli provides the kioku command line interface.
package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "kioku",
		Usage: "Persistent memory store for coding-assistant sessions",
		Commands: []*cli.Command{
			serveCommand(),
			serveHTTPCommand(),
			storeCommand(),
			getCommand(),
			searchCommand(),
			deleteCommand(),
			voteCommand(),
			handoffCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
