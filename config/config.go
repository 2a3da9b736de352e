// Package config loads the transfer tool configuration from TOML with
// environment overrides.
package config

import (
	"bytes"
	"io"
	"os"

	"dms_transfer/constants"
	"dms_transfer/errs"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// EnvPrefix prefixes every environment override, e.g. DMS_TRANSFER_CONCURRENCY
const EnvPrefix = "DMS"

type Config struct {
	Transfer Transfer
	Network  Network
	Server   Server
	Log      Log
}

type Transfer struct {
	ChunkSizeKB int `split_words:"true"`
	Concurrency int
}

type Network struct {
	DSCP               int
	DialTimeoutSeconds int  `split_words:"true"`
	NoDelay            bool `split_words:"true"`
	MultipathTCP       bool `split_words:"true"`
	Compress           bool
}

type Server struct {
	Bind     string
	Port     int
	DestRoot string `split_words:"true"`
}

type Log struct {
	Level string
}

func Default() *Config {
	return &Config{
		Transfer: Transfer{
			ChunkSizeKB: constants.DEFAULT_CHUNK_SIZE_KB,
			Concurrency: constants.DEFAULT_NUM_WORKERS,
		},
		Network: Network{
			DSCP:               constants.DEFAULT_DSCP,
			DialTimeoutSeconds: constants.DEFAULT_DIAL_TIMEOUT,
			NoDelay:            true,
		},
		Server: Server{
			Bind: constants.DEFAULT_BIND,
			Port: constants.DEFAULT_PORT,
		},
		Log: Log{
			Level: logrus.InfoLevel.String(),
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty path skips the
// file and applies only environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		return FromReader(bytes.NewReader(nil), Default())
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidArgument, "expand config path "+path, err)
	}
	file, err := os.Open(expanded)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidArgument, "open config "+expanded, err)
	}
	defer file.Close()

	return FromReader(file, Default())
}

// FromReader decodes TOML from reader into def, then applies environment overrides
// and validates the result.
func FromReader(reader io.Reader, def *Config) (*Config, error) {
	cfg := def
	if _, err := toml.NewDecoder(reader).Decode(cfg); err != nil {
		return nil, errs.New(errs.ErrInvalidArgument, "decode config", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errs.New(errs.ErrInvalidArgument, "processing env vars overrides", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Server.DestRoot != "" {
		root, err := homedir.Expand(cfg.Server.DestRoot)
		if err != nil {
			return nil, errs.New(errs.ErrInvalidArgument, "expand destination root", err)
		}
		cfg.Server.DestRoot = root
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch {
	case c.Transfer.ChunkSizeKB < 1:
		return errs.Newf(errs.ErrInvalidArgument, "Transfer.ChunkSizeKB must be >= 1, got %d", c.Transfer.ChunkSizeKB)
	case c.Transfer.ChunkSizeKB*1024 > constants.MAX_CHUNK_PAYLOAD:
		return errs.Newf(errs.ErrInvalidArgument, "Transfer.ChunkSizeKB must be <= %d", constants.MAX_CHUNK_PAYLOAD/1024)
	case c.Transfer.Concurrency < 1:
		return errs.Newf(errs.ErrInvalidArgument, "Transfer.Concurrency must be >= 1, got %d", c.Transfer.Concurrency)
	case c.Network.DSCP < 0 || c.Network.DSCP > 63:
		return errs.Newf(errs.ErrInvalidArgument, "Network.DSCP must be within 0-63, got %d", c.Network.DSCP)
	case c.Network.DialTimeoutSeconds < 0:
		return errs.Newf(errs.ErrInvalidArgument, "Network.DialTimeoutSeconds must not be negative")
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return errs.Newf(errs.ErrInvalidArgument, "Server.Port must be within 0-65535, got %d", c.Server.Port)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errs.New(errs.ErrInvalidArgument, "Log.Level", err)
	}
	return nil
}

// Bytes encodes cfg as TOML
func Bytes(cfg *Config) ([]byte, error) {
	buf := new(bytes.Buffer)
	e := toml.NewEncoder(buf)
	if err := e.Encode(cfg); err != nil {
		return nil, xerrors.Errorf("encoding config: %w", err)
	}

	return buf.Bytes(), nil
}
