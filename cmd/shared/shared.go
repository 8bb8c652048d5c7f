// Package shared provides common CLI flag definitions and utility functions
// used across msgsock's command-line interface.
package shared

import (
	"strings"
	"time"

	"dominicbreuker/msgsock/pkg/config"

	"github.com/urfave/cli/v3"
)

const categoryCommon = "common"

// VerboseFlag is the name of the flag to enable verbose logging.
const VerboseFlag = "verbose"

// TimeoutFlag is the name of the flag to bound dialing and service lookups.
const TimeoutFlag = "timeout"

// CodecFlag is the name of the flag selecting the packet codec.
const CodecFlag = "codec"

// MaxFrameFlag is the name of the flag bounding the accepted frame size.
const MaxFrameFlag = "max-frame"

// LogFileFlag is the name of the flag to specify a traffic log file.
const LogFileFlag = "log"

// ConfigFlag is the name of the flag pointing to a TOML config file.
const ConfigFlag = "config"

// ServiceTypeFlag is the name of the flag selecting the DNS-SD service type.
const ServiceTypeFlag = "type"

// GetBaseDescription returns the base description text for transport
// specifications used in CLI commands.
func GetBaseDescription() string {
	return strings.Join([]string{
		"Specify transport like this: tcp://127.0.0.1:123 (supports tcp|ws|udp, defaults to tcp)",
		"You can omit the host when serving to bind to all interfaces.",
	}, "\n")
}

// GetArgsUsage returns the arguments usage string for CLI commands.
func GetArgsUsage() string {
	return "[transport]"
}

// GetCommonFlags returns the flags used by both serve and send.
func GetCommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:     VerboseFlag,
			Aliases:  []string{"v"},
			Usage:    "Verbose logging",
			Category: categoryCommon,
			Value:    false,
			Required: false,
		},
		&cli.DurationFlag{
			Name:     TimeoutFlag,
			Aliases:  []string{"t"},
			Usage:    "Timeout for dialing and service lookups",
			Category: categoryCommon,
			Value:    config.DefaultTimeout,
			Required: false,
		},
		&cli.StringFlag{
			Name:     CodecFlag,
			Aliases:  []string{"c"},
			Usage:    "Packet codec, one of gob|cbor",
			Category: categoryCommon,
			Value:    "gob",
			Required: false,
		},
		&cli.IntFlag{
			Name:     MaxFrameFlag,
			Usage:    "Largest frame payload accepted from the peer, in bytes (0 for the default)",
			Category: categoryCommon,
			Value:    0,
			Required: false,
		},
		&cli.StringFlag{
			Name:     LogFileFlag,
			Aliases:  []string{"l"},
			Usage:    "Append raw traffic to this file",
			Category: categoryCommon,
			Value:    "",
			Required: false,
		},
		&cli.StringFlag{
			Name:     ConfigFlag,
			Usage:    "TOML config file, flags given on the command line take precedence",
			Category: categoryCommon,
			Value:    "",
			Required: false,
		},
	}
}

const categoryServe = "serve"

// ModeFlag is the name of the flag selecting how the listening socket is
// created.
const ModeFlag = "mode"

// PublishFlag is the name of the flag to advertise the server via mDNS.
const PublishFlag = "publish"

// NameFlag is the name of the flag setting the advertised instance name.
const NameFlag = "name"

// MuxFlag is the name of the flag to carry connections as yamux streams.
const MuxFlag = "mux"

// MaxConnsFlag is the name of the flag limiting concurrent connections.
const MaxConnsFlag = "max-conns"

// GetServeFlags returns the CLI flags specific to the serve command.
func GetServeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     ModeFlag,
			Aliases:  []string{"m"},
			Usage:    "Listening socket setup, one of native|posix (posix requires tcp)",
			Category: categoryServe,
			Value:    "native",
			Required: false,
		},
		&cli.BoolFlag{
			Name:     PublishFlag,
			Aliases:  []string{"p"},
			Usage:    "Advertise the server on the local network",
			Category: categoryServe,
			Value:    false,
			Required: false,
		},
		&cli.StringFlag{
			Name:     NameFlag,
			Aliases:  []string{"n"},
			Usage:    "Advertised instance name, defaults to one derived from the hostname",
			Category: categoryServe,
			Value:    "",
			Required: false,
		},
		&cli.StringFlag{
			Name:     ServiceTypeFlag,
			Usage:    "Advertised service type",
			Category: categoryServe,
			Value:    config.DefaultServiceType,
			Required: false,
		},
		&cli.BoolFlag{
			Name:     MuxFlag,
			Usage:    "Treat every multiplexed stream of an accepted socket as a connection",
			Category: categoryServe,
			Value:    false,
			Required: false,
		},
		&cli.IntFlag{
			Name:     MaxConnsFlag,
			Usage:    "Maximum number of concurrently accepted sockets (0 for unlimited)",
			Category: categoryServe,
			Value:    0,
			Required: false,
		},
	}
}

const categorySend = "send"

// ServiceFlag is the name of the flag naming the service to connect to.
const ServiceFlag = "service"

// GetSendFlags returns the CLI flags specific to the send command.
func GetSendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     ServiceFlag,
			Aliases:  []string{"s"},
			Usage:    "Connect to the advertised instance with this name instead of a transport",
			Category: categorySend,
			Value:    "",
			Required: false,
		},
		&cli.StringFlag{
			Name:     ServiceTypeFlag,
			Usage:    "Service type to resolve",
			Category: categorySend,
			Value:    config.DefaultServiceType,
			Required: false,
		},
		&cli.BoolFlag{
			Name:     MuxFlag,
			Usage:    "Open the connection as a stream of a multiplexed session (server needs --mux)",
			Category: categorySend,
			Value:    false,
			Required: false,
		},
	}
}

// BrowseTimeout is how long browse collects answers by default.
const BrowseTimeout = 3 * time.Second

// GetBrowseFlags returns the CLI flags of the browse command.
func GetBrowseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     ServiceTypeFlag,
			Usage:    "Service type to list",
			Value:    config.DefaultServiceType,
			Required: false,
		},
		&cli.DurationFlag{
			Name:     TimeoutFlag,
			Aliases:  []string{"t"},
			Usage:    "How long to collect answers",
			Value:    BrowseTimeout,
			Required: false,
		},
		&cli.BoolFlag{
			Name:     VerboseFlag,
			Aliases:  []string{"v"},
			Usage:    "Verbose logging",
			Value:    false,
			Required: false,
		},
	}
}
