package mandel

import (
	"fmt"
	"log/slog"
	"math/bits"
	"runtime"
)

const DefaultRowSpan = 2

// Option configures a Scheduler.
//
// Example:
//
//	s, err := mandel.NewScheduler(vp,
//	    mandel.WithThreads(4),
//	    mandel.WithMaxIterations(5000),
//	)
type Option func(*config)

type config struct {
	threads      int
	eval         Evaluator
	initialBlock int // 0: a quarter of the raster width
	rowSpan      int
	logger       *slog.Logger

	// onClaim observes every successful cursor claim.
	onClaim func(worker, blockSize, start, end int)
}

func defaultConfig() config {
	return config{
		threads: runtime.GOMAXPROCS(0),
		eval:    DefaultEvaluator(),
		rowSpan: DefaultRowSpan,
	}
}

// WithThreads sets the number of render workers.
// If n is 0 or negative, GOMAXPROCS is used.
func WithThreads(n int) Option {
	return func(c *config) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		c.threads = n
	}
}

// WithMaxIterations sets the iteration bound of the escape test.
func WithMaxIterations(n int) Option {
	return func(c *config) {
		c.eval.MaxIter = n
	}
}

// WithEscapeRadiusSq sets the squared modulus at which an orbit counts as escaped.
func WithEscapeRadiusSq(r2 float64) Option {
	return func(c *config) {
		c.eval.EscapeRadiusSq = r2
	}
}

// WithSmooth switches results to continuous escape counts.
func WithSmooth(smooth bool) Option {
	return func(c *config) {
		c.eval.Smooth = smooth
	}
}

// WithInitialBlockSize sets the cell side of the first phase.
// It is rounded up to a power of two. 0 selects a quarter of the raster width.
func WithInitialBlockSize(b int) Option {
	return func(c *config) {
		c.initialBlock = b
	}
}

// WithRowSpan sets how many block rows a worker claims at once.
func WithRowSpan(n int) Option {
	return func(c *config) {
		c.rowSpan = n
	}
}

// WithLogger sets the logger for this Scheduler instead of the package default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

func (c config) validate() error {
	if err := c.eval.Validate(); err != nil {
		return err
	}
	if c.rowSpan < 1 {
		return &ConfigError{Field: "row_span_per_claim", Reason: fmt.Sprintf("%d is less than 1", c.rowSpan)}
	}
	if c.initialBlock < 0 {
		return &ConfigError{Field: "initial_block_size", Reason: fmt.Sprintf("%d is negative", c.initialBlock)}
	}
	return nil
}

func (c config) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return Logger()
}

// blockSize returns the first phase's block size for a raster width:
// the configured size, or width/4, floored at 1 and rounded up to a power of two.
func (c config) blockSize(width int) int {
	b := c.initialBlock
	if b == 0 {
		b = width / 4
	}
	if b <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(b-1))
}

// Phases returns the number of phases a render starting at blockSize goes through,
// ceil(log2(blockSize)) + 1.
func Phases(blockSize int) int {
	if blockSize <= 1 {
		return 1
	}
	return bits.Len(uint(blockSize-1)) + 1
}
