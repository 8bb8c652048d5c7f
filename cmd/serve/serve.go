// Package serve provides the serve command, which accepts connections,
// prints every packet it receives and answers pings.
package serve

import (
	"context"

	"dominicbreuker/msgsock/cmd/shared"
	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/entrypoint"

	"github.com/urfave/cli/v3"
)

// GetCommand returns the CLI command for serving.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Accept connections and print received packets",
		Description: shared.GetBaseDescription(),
		ArgsUsage:   shared.GetArgsUsage(),
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

			return entrypoint.Serve(ctx, cfg)
		},
		Flags: getFlags(),
	}
}

// buildConfig layers the config file, the transport argument, and the
// flags given on the command line, in that order.
func buildConfig(cmd *cli.Command) (*config.Server, error) {
	f, err := shared.LoadConfigFile(cmd)
	if err != nil {
		return nil, err
	}

	cfg := &config.Server{}
	if err := f.Server.Apply(cfg); err != nil {
		return nil, err
	}
	if err := shared.ApplyTransport(cmd, &cfg.Shared); err != nil {
		return nil, err
	}
	shared.ApplyCommonFlags(cmd, &cfg.Shared)

	if cmd.IsSet(shared.ModeFlag) {
		if cfg.Mode, err = config.ParseListenMode(cmd.String(shared.ModeFlag)); err != nil {
			return nil, err
		}
	}
	if cmd.IsSet(shared.PublishFlag) {
		cfg.Publish = cmd.Bool(shared.PublishFlag)
	}
	if cmd.IsSet(shared.NameFlag) {
		cfg.ServiceName = cmd.String(shared.NameFlag)
	}
	if cmd.IsSet(shared.ServiceTypeFlag) {
		cfg.ServiceType = cmd.String(shared.ServiceTypeFlag)
	}
	if cmd.IsSet(shared.MuxFlag) {
		cfg.Multiplex = cmd.Bool(shared.MuxFlag)
	}
	if cmd.IsSet(shared.MaxConnsFlag) {
		cfg.MaxConns = int(cmd.Int(shared.MaxConnsFlag))
	}

	return cfg, nil
}

func getFlags() []cli.Flag {
	flags := []cli.Flag{}

	flags = append(flags, shared.GetCommonFlags()...)
	flags = append(flags, shared.GetServeFlags()...)

	return flags
}
