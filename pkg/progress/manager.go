// Package progress is the entry point for reporting worker progress to a
// gridwatch dashboard. Every process creates one Manager; rank 0 becomes the
// coordinator that renders the dashboard and every other rank reports to it.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/gridwatch/internal/board"
	"github.com/ShayCichocki/gridwatch/internal/coordinator"
	"github.com/ShayCichocki/gridwatch/internal/reporter"
	"github.com/ShayCichocki/gridwatch/internal/transport"
	"github.com/ShayCichocki/gridwatch/internal/tui"
	"github.com/ShayCichocki/gridwatch/pkg/models"
)

var (
	// ErrNotCoordinator is returned by coordinator-only operations on a worker.
	ErrNotCoordinator = errors.New("operation requires the coordinator")
	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("invalid progress options")
)

// Timing groups the reporter and coordinator timing knobs. Zero fields use
// the package defaults.
type Timing struct {
	Debounce           time.Duration
	CycleInterval      time.Duration
	PollInterval       time.Duration
	PollAttempts       int
	MaxReportsPerCycle int
	// DrainAttempts bounds how many flushes a worker's Stop makes while
	// waiting for buffered values to be delivered.
	DrainAttempts int
}

// DefaultTiming returns the standard timing.
func DefaultTiming() Timing {
	loop := coordinator.DefaultConfig()
	return Timing{
		Debounce:           reporter.DefaultDebounce,
		CycleInterval:      loop.CycleInterval,
		PollInterval:       loop.PollInterval,
		PollAttempts:       loop.PollAttempts,
		MaxReportsPerCycle: loop.MaxReportsPerCycle,
		DrainAttempts:      100,
	}
}

// Options configures a Manager.
type Options struct {
	// Rank is this process's rank. Rank 0 is the coordinator.
	Rank int
	// Size is the total number of ranks, coordinator included.
	Size int
	// Transport connects this rank to the others.
	Transport transport.Transport
	// Out receives the dashboard on the coordinator. Nil uses os.Stderr.
	Out io.Writer
	// Layout is the dashboard geometry on the coordinator. The zero value
	// uses tui.DefaultLayout.
	Layout tui.Layout
	Timing Timing
	// Logger receives diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Manager reports this rank's status and, on the coordinator, renders the
// dashboard. Its methods are safe for concurrent use.
type Manager struct {
	role      models.Role
	rank      int
	size      int
	sessionID string
	drain     int
	poll      time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	stopped bool

	// worker
	reporter *reporter.Reporter

	// coordinator
	board *board.Board
	grid  *tui.Grid
	loop  *coordinator.Loop
}

// New creates a Manager. The role is decided here from the rank and never
// changes.
func New(opts Options) (*Manager, error) {
	if opts.Size < 1 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidOptions, opts.Size)
	}
	if opts.Rank < 0 || opts.Rank >= opts.Size {
		return nil, fmt.Errorf("%w: rank %d outside [0, %d)", ErrInvalidOptions, opts.Rank, opts.Size)
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: no transport", ErrInvalidOptions)
	}

	timing := withDefaults(opts.Timing)
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		role:      models.RoleFor(opts.Rank),
		rank:      opts.Rank,
		size:      opts.Size,
		sessionID: uuid.New().String(),
		drain:     timing.DrainAttempts,
		poll:      timing.PollInterval,
	}
	m.logger = logger.With(zap.String("session", m.sessionID), zap.String("role", string(m.role)))

	if m.role == models.RoleWorker {
		m.reporter = reporter.New(reporter.Config{
			Rank:      opts.Rank,
			Transport: opts.Transport,
			Debounce:  timing.Debounce,
			Logger:    m.logger,
		})
		m.logger.Info("progress manager created", zap.Int("rank", m.rank), zap.Int("size", m.size))
		return m, nil
	}

	layout := opts.Layout
	if layout == (tui.Layout{}) {
		layout = tui.DefaultLayout()
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	m.board = board.New(opts.Size)
	grid, err := tui.NewGrid(out, layout, opts.Size, m.board)
	if err != nil {
		return nil, fmt.Errorf("create dashboard: %w", err)
	}
	m.grid = grid
	m.loop = coordinator.New(opts.Transport, m.board, grid, coordinator.Config{
		CycleInterval:      timing.CycleInterval,
		PollInterval:       timing.PollInterval,
		PollAttempts:       timing.PollAttempts,
		MaxReportsPerCycle: timing.MaxReportsPerCycle,
		Logger:             m.logger,
	})

	m.logger.Info("progress manager created",
		zap.Int("rank", m.rank),
		zap.Int("size", m.size),
		zap.Int("columns", layout.Columns),
		zap.Int("rows", layout.Rows),
		zap.Int("panel_width", layout.PanelWidth))
	return m, nil
}

func withDefaults(t Timing) Timing {
	d := DefaultTiming()
	if t.Debounce <= 0 {
		t.Debounce = d.Debounce
	}
	if t.CycleInterval <= 0 {
		t.CycleInterval = d.CycleInterval
	}
	if t.PollInterval <= 0 {
		t.PollInterval = d.PollInterval
	}
	if t.PollAttempts <= 0 {
		t.PollAttempts = d.PollAttempts
	}
	if t.MaxReportsPerCycle < 0 {
		t.MaxReportsPerCycle = 0
	}
	if t.DrainAttempts <= 0 {
		t.DrainAttempts = d.DrainAttempts
	}
	return t
}

// Role returns whether this rank is the coordinator or a worker.
func (m *Manager) Role() models.Role { return m.role }

// Rank returns this process's rank.
func (m *Manager) Rank() int { return m.rank }

// Size returns the total number of ranks.
func (m *Manager) Size() int { return m.size }

// SessionID identifies this Manager in logs.
func (m *Manager) SessionID() string { return m.sessionID }

// ReportMessage sets this rank's status message. On the coordinator the
// board is updated directly and the panel repaints on the next cycle.
func (m *Manager) ReportMessage(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.role == models.RoleCoordinator {
		if err := m.board.SetMessage(m.rank, text); err != nil {
			m.logger.Debug("set local message failed", zap.Error(err))
		}
		return
	}
	m.reporter.ReportMessage(text)
}

// ReportProgress sets this rank's progress. A total below one or a negative
// completed count is rejected before anything is recorded or sent.
func (m *Manager) ReportProgress(completed, total int) error {
	p, err := models.NewProgress(completed, total)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.role == models.RoleCoordinator {
		return m.board.SetProgress(m.rank, p)
	}
	m.reporter.ReportProgress(p)
	return nil
}

// Flush pushes buffered values on a worker without waiting for the debounce
// interval. It is a no-op on the coordinator.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reporter != nil {
		m.reporter.Flush()
	}
}

// Start begins rendering on the coordinator. Workers need no background work,
// so Start is a no-op for them.
func (m *Manager) Start(ctx context.Context) error {
	if m.role != models.RoleCoordinator {
		return nil
	}
	if err := m.loop.Start(ctx); err != nil {
		return err
	}
	m.logger.Info("dashboard started")
	return nil
}

// Stop shuts the Manager down. The coordinator finishes its current cycle and
// parks the cursor below the grid. A worker keeps flushing until its buffered
// values are delivered or the drain attempts run out. Safe to call twice.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true

	if m.role == models.RoleCoordinator {
		m.mu.Unlock()
		m.loop.Stop()
		m.logger.Info("dashboard stopped", zap.Uint64("cycles", m.loop.Cycles()))
		return
	}
	defer m.mu.Unlock()

	if !m.reporter.Drain(m.drain, m.poll) {
		m.logger.Warn("stopped with undelivered reports")
		return
	}
	m.logger.Info("reporter drained")
}

// Relayout switches the dashboard geometry. The next cycle repaints the
// whole screen.
func (m *Manager) Relayout(layout tui.Layout) error {
	if m.role != models.RoleCoordinator {
		return ErrNotCoordinator
	}
	return m.loop.Relayout(layout)
}

// Statuses returns a snapshot of every rank's last known status.
func (m *Manager) Statuses() ([]models.WorkerStatus, error) {
	if m.role != models.RoleCoordinator {
		return nil, ErrNotCoordinator
	}
	return m.board.Statuses(), nil
}

// CountDone returns how many workers have reported completed >= total,
// excluding the coordinator itself.
func (m *Manager) CountDone() (int, error) {
	if m.role != models.RoleCoordinator {
		return 0, ErrNotCoordinator
	}
	n := m.board.CountDone()
	if own, ok := m.board.Status(m.rank); ok && own.Progress.Done() {
		n--
	}
	return n, nil
}
