package bridge

import (
	"log/slog"
	"time"

	"github.com/tmc/modelbridge/internal/wire"
)

// Defaults shared by both server variants.
const (
	DefaultTickInterval = 250 * time.Millisecond
	DefaultPollWait     = 50 * time.Millisecond
	DefaultIdleTimeout  = 30 * time.Second
)

// settings holds configuration common to the bridge and eval variants.
type settings struct {
	logger       *slog.Logger
	token        string
	allowRemote  bool
	maxMsgSize   int
	pollWait     time.Duration
	tickInterval time.Duration
	idleTimeout  time.Duration
	limiter      *RateLimiter
	resources    ResourceLister

	// eval variant only
	sessionRoot   string
	snippetSuffix string
	capture       ConsoleCapture
}

func defaultSettings() settings {
	return settings{
		logger:        slog.Default(),
		maxMsgSize:    wire.DefaultMaxMessageSize,
		pollWait:      DefaultPollWait,
		tickInterval:  DefaultTickInterval,
		idleTimeout:   DefaultIdleTimeout,
		snippetSuffix: ".txt",
	}
}

// Option configures a server variant.
type Option func(*settings)

// WithLogger sets the structured logger used for connection events.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithToken configures the shared-secret token that hello must supply.
func WithToken(token string) Option {
	return func(s *settings) { s.token = token }
}

// WithAllowRemote opts in to binding on non-loopback addresses.
func WithAllowRemote() Option {
	return func(s *settings) { s.allowRemote = true }
}

// WithMaxMessageSize overrides the per-message byte ceiling.
func WithMaxMessageSize(n int) Option {
	return func(s *settings) { s.maxMsgSize = n }
}

// WithPollWait bounds how long a single readiness check may wait. It
// must stay well under the host's tick interval.
func WithPollWait(d time.Duration) Option {
	return func(s *settings) { s.pollWait = d }
}

// WithTickInterval sets the interval used by Run.
func WithTickInterval(d time.Duration) Option {
	return func(s *settings) { s.tickInterval = d }
}

// WithIdleTimeout bounds how long a connection may sit without
// completing a request before it is dropped.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *settings) { s.idleTimeout = d }
}

// WithRateLimit enables non-blocking request throttling.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(s *settings) { s.limiter = NewRateLimiter(cfg) }
}

// WithResourceLister supplies the resources/list collaborator.
func WithResourceLister(rl ResourceLister) Option {
	return func(s *settings) { s.resources = rl }
}

// WithSessionRoot sets the directory under which the eval variant
// creates per-client session directories.
func WithSessionRoot(dir string) Option {
	return func(s *settings) { s.sessionRoot = dir }
}

// WithSnippetSuffix sets the file extension for recorded snippets.
func WithSnippetSuffix(suffix string) Option {
	return func(s *settings) { s.snippetSuffix = suffix }
}

// WithConsoleCapture supplies the output-capture collaborator used
// around each evaluation.
func WithConsoleCapture(c ConsoleCapture) Option {
	return func(s *settings) { s.capture = c }
}
