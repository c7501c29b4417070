// Package options collects the functional options shared by the higher-level
// packages.
package options

import (
	"context"
	"log/slog"

	"github.com/fxamacker/cbor/v2"

	"github.com/go-ctap/keylink/pkg/scp"
)

type Options struct {
	Logger       *slog.Logger
	EncMode      cbor.EncMode
	Context      context.Context
	Paths        []string
	UseNamedPipe bool
	Scp03Keys    *scp.Scp03KeyParams
	Scp11Keys    *scp.Scp11KeyParams
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithEncMode(encMode cbor.EncMode) Option {
	return func(opts *Options) {
		opts.EncMode = encMode
	}
}

func WithContext(ctx context.Context) Option {
	return func(opts *Options) {
		opts.Context = ctx
	}
}

func WithPaths(paths ...string) Option {
	return func(opts *Options) {
		opts.Paths = paths
	}
}

func WithUseNamedPipes() Option {
	return func(opts *Options) {
		opts.UseNamedPipe = true
	}
}

// WithScp03Keys establishes an SCP03 secure channel before any command is
// sent over a smart-card session.
func WithScp03Keys(params scp.Scp03KeyParams) Option {
	return func(opts *Options) {
		opts.Scp03Keys = &params
	}
}

// WithScp11bKeys establishes an SCP11b secure channel before any command is
// sent over a smart-card session.
func WithScp11bKeys(params scp.Scp11KeyParams) Option {
	return func(opts *Options) {
		opts.Scp11Keys = &params
	}
}

func NewOptions(opts ...Option) *Options {
	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	oo := &Options{
		Logger:  slog.Default(),
		EncMode: encMode,
		Context: context.Background(),
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
