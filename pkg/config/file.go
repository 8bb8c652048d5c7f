package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// File is the on-disk configuration. Every field is optional; unset fields
// leave the corresponding setting untouched.
//
//	[server]
//	host = "0.0.0.0"
//	port = 0
//	mode = "posix"
//	publish = true
//	name = "lobby"
//
//	[client]
//	service = "lobby"
type File struct {
	Server FileServer `toml:"server"`
	Client FileClient `toml:"client"`
}

// FileShared holds the keys valid in both sections.
type FileShared struct {
	Protocol     string   `toml:"protocol"`
	Host         string   `toml:"host"`
	Port         *int     `toml:"port"`
	Codec        string   `toml:"codec"`
	MaxFrameSize int      `toml:"max_frame_size"`
	Timeout      Duration `toml:"timeout"`
	LogFile      string   `toml:"log_file"`
	Verbose      bool     `toml:"verbose"`
}

// FileServer is the [server] section.
type FileServer struct {
	FileShared
	Mode        string `toml:"mode"`
	Publish     bool   `toml:"publish"`
	ServiceName string `toml:"name"`
	ServiceType string `toml:"type"`
	Multiplex   bool   `toml:"mux"`
	MaxConns    int    `toml:"max_conns"`
}

// FileClient is the [client] section.
type FileClient struct {
	FileShared
	Service     string `toml:"service"`
	ServiceType string `toml:"type"`
	Multiplex   bool   `toml:"mux"`
}

// Duration decodes TOML strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// LoadFile reads a TOML config. Unknown keys are an error so typos don't go
// unnoticed.
func LoadFile(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("toml.DecodeFile(%s): %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	return &f, nil
}

func (f *FileShared) apply(cfg *Shared) error {
	if f.Protocol != "" {
		p, err := ParseProtocol(f.Protocol)
		if err != nil {
			return err
		}
		cfg.Protocol = p
	}
	if f.Host != "" {
		cfg.Host = f.Host
	}
	if f.Port != nil {
		cfg.Port = *f.Port
	}
	if f.Codec != "" {
		cfg.Codec = f.Codec
	}
	if f.MaxFrameSize != 0 {
		cfg.MaxFrameSize = f.MaxFrameSize
	}
	if f.Timeout.Duration != 0 {
		cfg.Timeout = f.Timeout.Duration
	}
	if f.LogFile != "" {
		cfg.LogFile = f.LogFile
	}
	cfg.Verbose = cfg.Verbose || f.Verbose
	return nil
}

// Apply copies the set keys of the [server] section into cfg.
func (f *FileServer) Apply(cfg *Server) error {
	if err := f.FileShared.apply(&cfg.Shared); err != nil {
		return err
	}
	if f.Mode != "" {
		m, err := ParseListenMode(f.Mode)
		if err != nil {
			return err
		}
		cfg.Mode = m
	}
	cfg.Publish = cfg.Publish || f.Publish
	cfg.Multiplex = cfg.Multiplex || f.Multiplex
	if f.ServiceName != "" {
		cfg.ServiceName = f.ServiceName
	}
	if f.ServiceType != "" {
		cfg.ServiceType = f.ServiceType
	}
	if f.MaxConns != 0 {
		cfg.MaxConns = f.MaxConns
	}
	return nil
}

// Apply copies the set keys of the [client] section into cfg.
func (f *FileClient) Apply(cfg *Client) error {
	if err := f.FileShared.apply(&cfg.Shared); err != nil {
		return err
	}
	if f.Service != "" {
		cfg.Service = f.Service
	}
	if f.ServiceType != "" {
		cfg.ServiceType = f.ServiceType
	}
	cfg.Multiplex = cfg.Multiplex || f.Multiplex
	return nil
}
