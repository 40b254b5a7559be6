package grabber

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/rgbdgrab/logging"
)

// DefaultMaxConsecutiveFailures is how many frame errors in a row Run tolerates by default.
const DefaultMaxConsecutiveFailures = 10

// DefaultLatencyWindow is how many recent grab latencies Run keeps for percentiles.
const DefaultLatencyWindow = 1000

// ErrTooManyFailures is returned by Run when grabs keep failing.
var ErrTooManyFailures = errors.New("too many consecutive grab failures")

// A Consumer receives every frame Run grabs.
type Consumer interface {
	Consume(ctx context.Context, frame *Frame) error
}

// ConsumerFunc adapts a function to a Consumer.
type ConsumerFunc func(ctx context.Context, frame *Frame) error

// Consume calls f.
func (f ConsumerFunc) Consume(ctx context.Context, frame *Frame) error {
	return f(ctx, frame)
}

// RunOptions bound a Run.
type RunOptions struct {
	// Frames stops the run after this many frames. Zero runs until ctx is done.
	Frames int
	// MaxConsecutiveFailures is how many frame errors in a row are tolerated. Zero means
	// DefaultMaxConsecutiveFailures.
	MaxConsecutiveFailures int
	// LatencyWindow is how many recent latencies percentiles are computed over. Zero means
	// DefaultLatencyWindow.
	LatencyWindow int
	Logger        logging.Logger
	Clock         clock.Clock
}

// Stats describes a Run.
type Stats struct {
	Frames   int
	Failures map[string]int

	// latencies is a ring of the most recent successful grab latencies, in milliseconds.
	latencies    []float64
	window       int
	next         int
	samples      int
	latencyTotal float64
	latencyMax   float64
}

// LatencySummary summarizes grab latencies in milliseconds. Mean and Max cover the whole run,
// the percentiles only the latency window.
type LatencySummary struct {
	Mean float64
	P50  float64
	P95  float64
	Max  float64
}

func newStats(window int) *Stats {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &Stats{Failures: map[string]int{}, window: window}
}

func (s *Stats) recordLatency(ms float64) {
	s.samples++
	s.latencyTotal += ms
	if ms > s.latencyMax {
		s.latencyMax = ms
	}
	if len(s.latencies) < s.window {
		s.latencies = append(s.latencies, ms)
		return
	}
	s.latencies[s.next] = ms
	s.next = (s.next + 1) % s.window
}

// TotalFailures is the number of failed grabs.
func (s *Stats) TotalFailures() int {
	total := 0
	for _, n := range s.Failures {
		total += n
	}
	return total
}

// Latency summarizes the latency of successful grabs. It is all zero before the first frame.
func (s *Stats) Latency() LatencySummary {
	if s.samples == 0 {
		return LatencySummary{}
	}
	data := stats.Float64Data(s.latencies)
	summary := LatencySummary{
		Mean: s.latencyTotal / float64(s.samples),
		Max:  s.latencyMax,
	}
	// the only error these return is for empty input
	summary.P50, _ = data.Percentile(50)
	summary.P95, _ = data.Percentile(95)
	return summary
}

// Run grabs frames and hands them to consumer until opts.Frames frames were consumed, ctx is
// done, a non frame error occurs or too many grabs fail in a row. Consumer errors stop the run.
func Run(ctx context.Context, g Grabber, consumer Consumer, opts RunOptions) (*Stats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Global()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	maxFailures := opts.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxConsecutiveFailures
	}

	s := newStats(opts.LatencyWindow)
	consecutive := 0
	for opts.Frames == 0 || s.Frames < opts.Frames {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		start := clk.Now()
		frame, err := g.Grab(ctx)
		if err != nil {
			if !IsFrameError(err) {
				return s, err
			}
			s.Failures[FailureKind(err)]++
			consecutive++
			if consecutive > maxFailures {
				return s, errors.Wrapf(ErrTooManyFailures, "%d in a row, last: %v", consecutive, err)
			}
			logger.Debugw("skipping frame", "consecutive_failures", consecutive, "error", err)
			continue
		}
		consecutive = 0
		s.recordLatency(float64(clk.Since(start)) / float64(time.Millisecond))
		s.Frames++
		if err := consumer.Consume(ctx, frame); err != nil {
			return s, errors.Wrapf(err, "consuming frame %d", frame.Seq)
		}
	}
	latency := s.Latency()
	logger.Infow("run finished",
		"frames", s.Frames,
		"failures", s.TotalFailures(),
		"latency_mean_ms", latency.Mean,
		"latency_p95_ms", latency.P95)
	return s, nil
}
