// Package options lets tests replace the collaborators healthd commands use.
package options

import (
	"fmt"

	"github.com/mozilla-ai/healthd/internal/config"
	"github.com/mozilla-ai/healthd/internal/daemon"
)

// CmdOption customizes CmdOptions.
type CmdOption func(*CmdOptions) error

// CmdOptions are the collaborators commands use.
type CmdOptions struct {
	ConfigLoader      config.Loader
	ConfigInitializer config.Initializer

	// DaemonOptions are applied after the options a command derives from its flags.
	DaemonOptions []daemon.Option
}

// NewOptions applies opt over the file based defaults. Nil options are skipped.
func NewOptions(opt ...CmdOption) (CmdOptions, error) {
	opts := defaultOptions()
	for _, apply := range opt {
		if apply == nil {
			continue
		}
		if err := apply(&opts); err != nil {
			return CmdOptions{}, err
		}
	}
	return opts, nil
}

func defaultOptions() CmdOptions {
	fileConfig := &config.DefaultLoader{}
	return CmdOptions{ConfigLoader: fileConfig, ConfigInitializer: fileConfig}
}

func WithConfigLoader(l config.Loader) CmdOption {
	return func(o *CmdOptions) error {
		if l == nil {
			return fmt.Errorf("config loader cannot be nil")
		}
		o.ConfigLoader = l
		return nil
	}
}

func WithConfigInitializer(i config.Initializer) CmdOption {
	return func(o *CmdOptions) error {
		if i == nil {
			return fmt.Errorf("config initializer cannot be nil")
		}
		o.ConfigInitializer = i
		return nil
	}
}

// WithDaemonOptions appends options to every daemon a command builds.
func WithDaemonOptions(opts ...daemon.Option) CmdOption {
	return func(o *CmdOptions) error {
		o.DaemonOptions = append(o.DaemonOptions, opts...)
		return nil
	}
}
