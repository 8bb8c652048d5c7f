// Package browse provides the browse command, which lists advertised
// servers on the local network.
package browse

import (
	"context"
	"os"

	"dominicbreuker/msgsock/cmd/shared"
	"dominicbreuker/msgsock/pkg/entrypoint"
	"dominicbreuker/msgsock/pkg/log"

	"github.com/urfave/cli/v3"
)

// GetCommand returns the CLI command for browsing.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "List servers advertised on the local network",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := log.NewLogger(cmd.Bool(shared.VerboseFlag))
			return entrypoint.Browse(ctx,
				cmd.String(shared.ServiceTypeFlag),
				cmd.Duration(shared.TimeoutFlag),
				os.Stdout,
				logger,
			)
		},
		Flags: shared.GetBrowseFlags(),
	}
}
