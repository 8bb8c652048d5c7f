// Package version provides the version command.
package version

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

// Version is set at build time via -ldflags.
var Version = "unknown"

// GetCommand returns the CLI command printing the version.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Program version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return printVersion(os.Stdout, Version)
		},
		Flags: []cli.Flag{},
	}
}

func printVersion(w io.Writer, v string) error {
	_, err := fmt.Fprintf(w, "msgsock %s\n", v)
	return err
}
