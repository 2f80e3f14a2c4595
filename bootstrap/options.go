package bootstrap

import (
	"time"

	"github.com/kbukum/opkit/llm"
	"github.com/kbukum/opkit/logger"
	"github.com/kbukum/opkit/pipeline"
)

// Option configures the App during creation.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	provider        llm.Provider
	loader          pipeline.Loader
	builderOpts     []pipeline.Option
	gracefulTimeout *time.Duration
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger for the application.
// If not set, the logger is built from the config's logging section.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithProvider replaces the model provider built from the llm section.
func WithProvider(p llm.Provider) Option {
	return func(o *appOptions) {
		o.provider = p
	}
}

// WithLoader replaces the file loader rooted at pipelines_dir.
func WithLoader(l pipeline.Loader) Option {
	return func(o *appOptions) {
		o.loader = l
	}
}

// WithBuilderOptions appends options passed to the pipeline builder, for
// example extra named providers.
func WithBuilderOptions(opts ...pipeline.Option) Option {
	return func(o *appOptions) {
		o.builderOpts = append(o.builderOpts, opts...)
	}
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = &d
	}
}
