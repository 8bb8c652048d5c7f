package main

import (
	"context"
	"fmt"
	"os"

	"dominicbreuker/msgsock/cmd/browse"
	"dominicbreuker/msgsock/cmd/send"
	"dominicbreuker/msgsock/cmd/serve"
	"dominicbreuker/msgsock/cmd/version"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[!] Error: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "msgsock",
		Usage: "exchange framed packets over tcp, websocket or udp",
		Commands: []*cli.Command{
			serve.GetCommand(),
			send.GetCommand(),
			browse.GetCommand(),
			version.GetCommand(),
		},
	}
}
