package app

import (
	"errors"

	"github.com/spf13/pflag"

	"fleet-monitor/telemetry/pkg/log"
)

// Options holds what can only be set on the command line. Everything else
// comes from the environment, optionally loaded from EnvFile first.
type Options struct {
	EnvFile    string
	LogOptions *log.Options
}

func NewOptions() *Options {
	return &Options{
		EnvFile:    ".env",
		LogOptions: log.NewOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.EnvFile, "env-file", o.EnvFile, "Dotenv file loaded before reading the environment. Missing files are ignored.")
	o.LogOptions.AddFlags(fs)
}

func (o *Options) Validate() error {
	return errors.Join(o.LogOptions.Validate()...)
}
