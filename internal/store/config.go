package store

import (
	"go.uber.org/zap"

	"sharedlog/internal/address"
)

// Config controls how a Store opens and rewrites its segments.
type Config struct {
	// LogDir is the directory segments live under.
	LogDir string
	// VerifyChecksum selects whether entry checksums are verified on
	// read, the same flag every segment.Handle is opened with. Segment
	// header checksums are always verified.
	VerifyChecksum bool
	// TrimThreshold is the number of pending-not-yet-trimmed addresses a
	// full segment must accumulate before Compact considers it worth
	// rewriting.
	TrimThreshold int
	Logger        *zap.SugaredLogger
}

// Option configures a Store at Open time.
type Option func(*Config)

// WithVerifyChecksum overrides the default (true) checksum verification
// mode.
func WithVerifyChecksum(v bool) Option {
	return func(c *Config) { c.VerifyChecksum = v }
}

// WithTrimThreshold overrides the default trim threshold
// (address.TrimThreshold, 25% of a segment's capacity).
func WithTrimThreshold(n int) Option {
	return func(c *Config) { c.TrimThreshold = n }
}

// WithLogger attaches a structured logger; Open uses a no-op logger when
// none is supplied.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Config) { c.Logger = l }
}

func defaultConfig(logDir string) Config {
	return Config{
		LogDir:         logDir,
		VerifyChecksum: true,
		TrimThreshold:  address.TrimThreshold,
		Logger:         zap.NewNop().Sugar(),
	}
}
