// Package send provides the send command, which turns stdin lines into
// packets and prints the packets coming back.
package send

import (
	"context"

	"dominicbreuker/msgsock/cmd/shared"
	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/entrypoint"

	"github.com/urfave/cli/v3"
)

// GetCommand returns the CLI command for sending.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send JSON lines from stdin as packets",
		Description: shared.GetBaseDescription() + "\n" +
			"Alternatively, connect to an advertised server with --service.",
		ArgsUsage: shared.GetArgsUsage(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			if err := shared.ReportValidation(config.Validate(cfg)); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			shared.SetupSignalHandling(cancel)

			return entrypoint.Send(ctx, cfg)
		},
		Flags: getFlags(),
	}
}

func buildConfig(cmd *cli.Command) (*config.Client, error) {
	f, err := shared.LoadConfigFile(cmd)
	if err != nil {
		return nil, err
	}

	cfg := &config.Client{}
	if err := f.Client.Apply(cfg); err != nil {
		return nil, err
	}
	if err := shared.ApplyTransport(cmd, &cfg.Shared); err != nil {
		return nil, err
	}
	shared.ApplyCommonFlags(cmd, &cfg.Shared)

	if cmd.IsSet(shared.ServiceFlag) {
		cfg.Service = cmd.String(shared.ServiceFlag)
	}
	if cmd.IsSet(shared.ServiceTypeFlag) {
		cfg.ServiceType = cmd.String(shared.ServiceTypeFlag)
	}
	if cmd.IsSet(shared.MuxFlag) {
		cfg.Multiplex = cmd.Bool(shared.MuxFlag)
	}

	return cfg, nil
}

func getFlags() []cli.Flag {
	flags := []cli.Flag{}

	flags = append(flags, shared.GetCommonFlags()...)
	flags = append(flags, shared.GetSendFlags()...)

	return flags
}
