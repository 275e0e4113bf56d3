// Package coordinator runs the dashboard's aggregation loop: it drains worker
// reports from the transport into the board and repaints the panels that
// changed, once per cycle.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/gridwatch/internal/board"
	"github.com/ShayCichocki/gridwatch/internal/transport"
	"github.com/ShayCichocki/gridwatch/internal/tui"
	"github.com/ShayCichocki/gridwatch/pkg/models"
)

// ErrAlreadyStarted is returned by Start on a loop that was started before.
var ErrAlreadyStarted = errors.New("coordinator loop already started")

// Config controls cycle timing.
type Config struct {
	// CycleInterval is the pause between the end of one cycle and the next.
	CycleInterval time.Duration
	// PollInterval is how long an idle poll attempt waits before re-checking.
	PollInterval time.Duration
	// PollAttempts is the number of idle polls after which a cycle stops
	// collecting and redraws.
	PollAttempts int
	// MaxReportsPerCycle caps the reports consumed per cycle, accepted or
	// rejected, so a flood of reports cannot postpone the redraw. Zero means
	// no cap.
	MaxReportsPerCycle int
	// Logger receives diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// DefaultConfig returns the standard timing: a cycle every 2s, each
// collecting until three 50ms polls find nothing.
func DefaultConfig() Config {
	return Config{
		CycleInterval:      2 * time.Second,
		PollInterval:       50 * time.Millisecond,
		PollAttempts:       3,
		MaxReportsPerCycle: 1024,
	}
}

// Renderer paints the dashboard. *tui.Grid implements it.
type Renderer interface {
	FullRedraw() (int, error)
	Paint(ids []int) (int, error)
	SetLayout(l tui.Layout) error
	Park() error
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	// Accepted is the number of reports applied to the board.
	Accepted int
	// Rejected is the number of reports the board refused.
	Rejected int
	// Errors is the number of receives that completed with an error.
	Errors int
	// Dirty is the number of ids drained from the dirty set.
	Dirty int
	// Painted is the number of panels written.
	Painted int
	// Full is true when the cycle repainted the whole screen.
	Full bool
}

// Loop is the coordinator's receive/aggregate/redraw cycle.
type Loop struct {
	cfg    Config
	tr     transport.Transport
	board  *board.Board
	grid   Renderer
	logger *zap.Logger

	// pending holds at most one receive per channel, indexed like models.Channels.
	pending []transport.Request

	// cycleMu serializes cycles between the loop goroutine and RunCycle callers.
	cycleMu sync.Mutex

	layoutMu      sync.Mutex
	pendingLayout *tui.Layout

	mu      sync.Mutex
	started bool
	stopped bool
	running atomic.Bool
	wake    chan struct{}
	done    chan struct{}

	cycles atomic.Uint64
}

// New creates a loop. Nothing runs until Start.
func New(tr transport.Transport, b *board.Board, grid Renderer, cfg Config) *Loop {
	defaults := DefaultConfig()
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = defaults.CycleInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaults.PollAttempts
	}
	if cfg.MaxReportsPerCycle < 0 {
		cfg.MaxReportsPerCycle = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loop{
		cfg:     cfg,
		tr:      tr,
		board:   b,
		grid:    grid,
		logger:  logger,
		pending: make([]transport.Request, len(models.Channels)),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start paints the whole dashboard once and then runs cycles on a dedicated
// goroutine until Stop is called or ctx is cancelled.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.running.Store(true)
	l.mu.Unlock()

	l.cycleMu.Lock()
	if _, err := l.grid.FullRedraw(); err != nil {
		l.logger.Warn("initial redraw failed", zap.Error(err))
	}
	l.cycleMu.Unlock()

	go l.run(ctx)
	return nil
}

// Stop clears the running flag, lets any in-progress cycle finish and waits for
// the loop goroutine to exit, then paints panels still dirty and parks the
// cursor below the grid. Outstanding receives are abandoned. Safe to call more
// than once and before Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	l.running.Store(false)
	l.signal()
	<-l.done

	// Local updates made after the last cycle would otherwise never show.
	l.cycleMu.Lock()
	if ids := l.board.Drain(); len(ids) > 0 {
		if _, err := l.grid.Paint(ids); err != nil {
			l.logger.Warn("final paint failed", zap.Error(err))
		}
	}
	l.cycleMu.Unlock()

	if err := l.grid.Park(); err != nil {
		l.logger.Debug("park cursor failed", zap.Error(err))
	}
}

// Running reports whether the loop will schedule further cycles.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Cycles returns how many cycles have completed.
func (l *Loop) Cycles() uint64 {
	return l.cycles.Load()
}

// Relayout makes the next cycle switch to layout and repaint the whole screen.
// A running loop starts that cycle immediately.
func (l *Loop) Relayout(layout tui.Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	l.layoutMu.Lock()
	l.pendingLayout = &layout
	l.layoutMu.Unlock()
	l.signal()
	return nil
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	for {
		l.RunCycle()
		if !l.running.Load() {
			return
		}

		timer := time.NewTimer(l.cfg.CycleInterval)
		select {
		case <-timer.C:
		case <-l.wake:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			l.running.Store(false)
			return
		}
		if !l.running.Load() {
			return
		}
	}
}

// RunCycle executes one collect-and-redraw cycle synchronously.
func (l *Loop) RunCycle() CycleResult {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	var res CycleResult
	full := l.applyPendingLayout()

	l.collect(&res)

	ids := l.board.Drain()
	res.Dirty = len(ids)

	var err error
	if full {
		res.Full = true
		res.Painted, err = l.grid.FullRedraw()
	} else {
		res.Painted, err = l.grid.Paint(ids)
	}
	if err != nil {
		l.logger.Warn("redraw failed", zap.Bool("full", full), zap.Error(err))
	}

	l.cycles.Add(1)
	l.logger.Debug("cycle finished",
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("errors", res.Errors),
		zap.Int("dirty", res.Dirty),
		zap.Int("painted", res.Painted))
	return res
}

func (l *Loop) applyPendingLayout() bool {
	l.layoutMu.Lock()
	layout := l.pendingLayout
	l.pendingLayout = nil
	l.layoutMu.Unlock()

	if layout == nil {
		return false
	}
	if err := l.grid.SetLayout(*layout); err != nil {
		l.logger.Warn("relayout rejected", zap.Error(err))
		return false
	}
	l.logger.Info("layout changed",
		zap.Int("columns", layout.Columns),
		zap.Int("rows", layout.Rows),
		zap.Int("panel_width", layout.PanelWidth))
	return true
}

// collect drains completed receives into the board. It stops once
// PollAttempts polls have come up empty (not necessarily in a row) or the
// per-cycle cap on consumed reports is reached.
func (l *Loop) collect(res *CycleResult) {
	attempts := 0
	for attempts < l.cfg.PollAttempts {
		l.post()

		idx, done, rep, err := transport.TestAny(l.pending)
		if !done {
			time.Sleep(l.cfg.PollInterval)
			attempts++
			continue
		}

		ch := models.Channels[idx]
		l.pending[idx] = nil

		if err != nil {
			res.Errors++
			attempts++
			l.logger.Warn("receive failed", zap.Stringer("channel", ch), zap.Error(err))
			continue
		}

		rep.Channel = ch
		if err := l.board.Apply(rep); err != nil {
			res.Rejected++
			l.logger.Debug("report rejected", zap.Int("source", rep.Source), zap.Error(err))
		} else {
			res.Accepted++
		}

		// Rejected reports count too, or a stream of bad ones would never
		// let the cycle reach its redraw.
		if l.cfg.MaxReportsPerCycle > 0 && res.Accepted+res.Rejected >= l.cfg.MaxReportsPerCycle {
			return
		}
	}
}

// post starts a receive on every channel that has none outstanding.
func (l *Loop) post() {
	for i, ch := range models.Channels {
		if l.pending[i] != nil {
			continue
		}
		req, err := l.tr.Recv(transport.AnySource, ch)
		if err != nil {
			l.logger.Warn("post receive failed", zap.Stringer("channel", ch), zap.Error(err))
			continue
		}
		l.pending[i] = req
	}
}
