package shared

import (
	"fmt"

	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/log"

	"github.com/urfave/cli/v3"
)

// LoadConfigFile reads the file named by --config. Without the flag it
// returns an empty file that changes nothing.
func LoadConfigFile(cmd *cli.Command) (*config.File, error) {
	path := cmd.String(ConfigFlag)
	if path == "" {
		return &config.File{}, nil
	}
	return config.LoadFile(path)
}

// ApplyTransport sets protocol, host and port from the positional
// transport argument, if there is one.
func ApplyTransport(cmd *cli.Command, cfg *config.Shared) error {
	args := cmd.Args()
	switch args.Len() {
	case 0:
		return nil
	case 1:
	default:
		return fmt.Errorf("must provide at most one argument, got %d", args.Len())
	}

	proto, host, port, err := ParseTransport(args.Get(0))
	if err != nil {
		return err
	}
	cfg.Protocol, cfg.Host, cfg.Port = proto, host, port
	return nil
}

// ApplyCommonFlags copies the common flags given on the command line into
// cfg, overriding values from the config file.
func ApplyCommonFlags(cmd *cli.Command, cfg *config.Shared) {
	if cmd.IsSet(VerboseFlag) {
		cfg.Verbose = cmd.Bool(VerboseFlag)
	}
	if cmd.IsSet(TimeoutFlag) {
		cfg.Timeout = cmd.Duration(TimeoutFlag)
	}
	if cmd.IsSet(CodecFlag) {
		cfg.Codec = cmd.String(CodecFlag)
	}
	if cmd.IsSet(MaxFrameFlag) {
		cfg.MaxFrameSize = int(cmd.Int(MaxFrameFlag))
	}
	if cmd.IsSet(LogFileFlag) {
		cfg.LogFile = cmd.String(LogFileFlag)
	}
	cfg.Logger = log.NewLogger(cfg.Verbose)
}

// ReportValidation logs all errors and returns a single error if there
// were any.
func ReportValidation(errors []error) error {
	if len(errors) == 0 {
		return nil
	}

	log.ErrorMsg("Argument validation errors:\n")
	for _, err := range errors {
		log.ErrorMsg(" - %s\n", err)
	}
	return fmt.Errorf("exiting")
}
