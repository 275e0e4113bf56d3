// Package reporter implements the worker side of the dashboard protocol.
//
// A Reporter keeps the newest message and progress value per channel and sends
// them to the coordinator without ever blocking the caller. At most one send
// per channel is in flight; values reported while a send is in flight replace
// each other (last write wins) and go out on a later Flush.
//
// A Reporter is not safe for concurrent use. Flush is expected to run on the
// same goroutine that reports.
package reporter

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/ShayCichocki/gridwatch/internal/transport"
	"github.com/ShayCichocki/gridwatch/pkg/models"
)

// DefaultDebounce is the minimum spacing between flush attempts triggered by reports.
const DefaultDebounce = 2 * time.Second

// Config contains configuration options for a Reporter.
type Config struct {
	// Rank is this worker's rank.
	Rank int
	// Transport carries reports to the coordinator.
	Transport transport.Transport
	// Debounce is the minimum interval between report-triggered flushes.
	// Zero uses DefaultDebounce.
	Debounce time.Duration
	// Logger receives send failures. Nil disables logging.
	Logger *zap.Logger
	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time
}

// slot tracks one channel: the buffered value and the in-flight send.
type slot struct {
	channel   models.Channel
	pending   *models.Report
	inflight  transport.Request
	lastFlush time.Time
	sent      int
	failed    int
}

// Reporter buffers and sends one worker's status.
type Reporter struct {
	rank     int
	tr       transport.Transport
	debounce time.Duration
	logger   *zap.Logger
	now      func() time.Time
	ids      *snowflake.Node

	message  slot
	progress slot
}

// New creates a Reporter. An empty message and the placeholder progress are
// buffered so the coordinator learns about the worker on its first flush.
func New(cfg Config) *Reporter {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := &Reporter{
		rank:     cfg.Rank,
		tr:       cfg.Transport,
		debounce: debounce,
		logger:   logger,
		now:      now,
		message:  slot{channel: models.ChannelMessage},
		progress: slot{channel: models.ChannelProgress},
	}

	// Snowflake nodes are 10 bits wide; ranks beyond that share ids space with
	// another rank, which only matters for ordering within one source.
	node, err := snowflake.NewNode(int64(cfg.Rank) & 1023)
	if err != nil {
		logger.Warn("sequence ids disabled", zap.Error(err))
	} else {
		r.ids = node
	}

	initialMessage := models.MessageReport(cfg.Rank, "")
	initialProgress := models.ProgressReport(cfg.Rank, models.PlaceholderProgress)
	r.message.pending = &initialMessage
	r.progress.pending = &initialProgress
	return r
}

// ReportMessage buffers text as the latest message and flushes if the
// debounce interval has passed since the last flush.
func (r *Reporter) ReportMessage(text string) {
	rep := models.MessageReport(r.rank, text)
	r.message.pending = &rep
	if r.now().Sub(r.message.lastFlush) > r.debounce {
		r.Flush()
	}
}

// ReportProgress buffers p as the latest progress and flushes if the
// debounce interval has passed since the last flush.
func (r *Reporter) ReportProgress(p models.Progress) {
	rep := models.ProgressReport(r.rank, p)
	r.progress.pending = &rep
	if r.now().Sub(r.progress.lastFlush) > r.debounce {
		r.Flush()
	}
}

// Flush advances both channels: polls any in-flight send and starts a new one
// when the channel is free and a value is buffered. Never blocks.
func (r *Reporter) Flush() {
	now := r.now()
	r.flushSlot(&r.message)
	r.flushSlot(&r.progress)
	r.message.lastFlush = now
	r.progress.lastFlush = now
}

func (r *Reporter) flushSlot(s *slot) {
	if s.inflight == nil && s.pending != nil {
		rep := *s.pending
		s.pending = nil
		if r.ids != nil {
			rep.Seq = r.ids.Generate().Int64()
		}

		req, err := r.tr.Send(rep, models.CoordinatorRank, s.channel)
		if err != nil {
			s.failed++
			r.logger.Warn("send failed",
				zap.Int("rank", r.rank),
				zap.Stringer("channel", s.channel),
				zap.Error(err))
			return
		}
		s.inflight = req
	}

	if s.inflight != nil {
		done, _, err := s.inflight.Test()
		if !done {
			return
		}
		s.inflight = nil
		if err != nil {
			s.failed++
			r.logger.Warn("send completed with error",
				zap.Int("rank", r.rank),
				zap.Stringer("channel", s.channel),
				zap.Error(err))
			return
		}
		s.sent++
	}
}

// Drain flushes until nothing is buffered or in flight, sleeping interval
// between attempts. Returns true if everything was delivered within attempts.
func (r *Reporter) Drain(attempts int, interval time.Duration) bool {
	for i := 0; i < attempts; i++ {
		r.Flush()
		if r.Idle() {
			return true
		}
		time.Sleep(interval)
	}
	return r.Idle()
}

// Idle reports whether both channels have nothing buffered and nothing in flight.
func (r *Reporter) Idle() bool {
	return r.message.idle() && r.progress.idle()
}

func (s *slot) idle() bool {
	return s.pending == nil && s.inflight == nil
}

// InFlight reports whether a send is outstanding on ch.
func (r *Reporter) InFlight(ch models.Channel) bool {
	if s := r.slot(ch); s != nil {
		return s.inflight != nil
	}
	return false
}

// Pending returns the buffered, not yet sent report on ch.
func (r *Reporter) Pending(ch models.Channel) (models.Report, bool) {
	if s := r.slot(ch); s != nil && s.pending != nil {
		return *s.pending, true
	}
	return models.Report{}, false
}

// Stats returns how many sends on ch completed successfully and how many failed.
func (r *Reporter) Stats(ch models.Channel) (sent, failed int) {
	if s := r.slot(ch); s != nil {
		return s.sent, s.failed
	}
	return 0, 0
}

func (r *Reporter) slot(ch models.Channel) *slot {
	switch ch {
	case models.ChannelMessage:
		return &r.message
	case models.ChannelProgress:
		return &r.progress
	default:
		return nil
	}
}
