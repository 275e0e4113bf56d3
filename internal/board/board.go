// Package board holds the coordinator's view of every worker: the last known
// status per rank and the set of ranks whose panels need repainting.
//
// All mutations and the dirty-set drain happen under one mutex. Readers take
// per-rank snapshots so painting never holds the lock across terminal writes.
package board

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/gridwatch/pkg/models"
)

var (
	// ErrUnknownRank is returned for an id outside [0, size).
	ErrUnknownRank = errors.New("unknown rank")
	// ErrStale is returned for a sequenced report older than one already applied.
	ErrStale = errors.New("stale report")
)

type seqKey struct {
	id      int
	channel models.Channel
}

// Board is the coordinator-owned status table plus dirty set.
type Board struct {
	mu       sync.Mutex
	statuses []models.WorkerStatus
	dirty    map[int]struct{}
	lastSeq  map[seqKey]int64
}

// New creates a board with placeholder statuses for ranks [0, size).
func New(size int) *Board {
	statuses := make([]models.WorkerStatus, size)
	for i := range statuses {
		statuses[i] = models.PlaceholderStatus(i)
	}
	return &Board{
		statuses: statuses,
		dirty:    make(map[int]struct{}),
		lastSeq:  make(map[seqKey]int64),
	}
}

// Size returns the number of workers tracked.
func (b *Board) Size() int {
	return len(b.statuses)
}

// SetMessage records a message for id and marks it dirty.
func (b *Board) SetMessage(id int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.valid(id) {
		return fmt.Errorf("set message for %d: %w", id, ErrUnknownRank)
	}
	b.statuses[id].Message = text
	b.dirty[id] = struct{}{}
	return nil
}

// SetProgress records a progress pair for id and marks it dirty.
func (b *Board) SetProgress(id int, p models.Progress) error {
	if !p.Valid() {
		return fmt.Errorf("set progress for %d: %w", id, models.ErrInvalidProgress)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.valid(id) {
		return fmt.Errorf("set progress for %d: %w", id, ErrUnknownRank)
	}
	b.statuses[id].Progress = p
	b.dirty[id] = struct{}{}
	return nil
}

// Apply records a report received from a worker. Sequenced reports older than
// the last one applied for the same source and channel are rejected.
func (b *Board) Apply(rep models.Report) error {
	if rep.Channel == models.ChannelProgress && !rep.Progress.Valid() {
		return fmt.Errorf("apply report from %d: %w", rep.Source, models.ErrInvalidProgress)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.valid(rep.Source) {
		return fmt.Errorf("apply report from %d: %w", rep.Source, ErrUnknownRank)
	}

	if rep.Seq != 0 {
		key := seqKey{id: rep.Source, channel: rep.Channel}
		if last, ok := b.lastSeq[key]; ok && rep.Seq <= last {
			return fmt.Errorf("apply report from %d seq %d: %w", rep.Source, rep.Seq, ErrStale)
		}
		b.lastSeq[key] = rep.Seq
	}

	switch rep.Channel {
	case models.ChannelMessage:
		b.statuses[rep.Source].Message = rep.Message
	case models.ChannelProgress:
		b.statuses[rep.Source].Progress = rep.Progress
	default:
		return fmt.Errorf("apply report from %d: unknown channel %d", rep.Source, rep.Channel)
	}
	b.dirty[rep.Source] = struct{}{}
	return nil
}

// MarkDirty flags id for repainting without changing its status.
func (b *Board) MarkDirty(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.valid(id) {
		b.dirty[id] = struct{}{}
	}
}

// Drain returns the dirty ids in ascending order and empties the set.
func (b *Board) Drain() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.dirty) == 0 {
		return nil
	}
	ids := make([]int, 0, len(b.dirty))
	for id := range b.dirty {
		ids = append(ids, id)
	}
	b.dirty = make(map[int]struct{})
	sort.Ints(ids)
	return ids
}

// DirtyCount returns how many ids await repainting.
func (b *Board) DirtyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dirty)
}

// Status returns a copy of the status for id.
func (b *Board) Status(id int) (models.WorkerStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.valid(id) {
		return models.WorkerStatus{}, false
	}
	return b.statuses[id], true
}

// Statuses returns a copy of every status, indexed by id.
func (b *Board) Statuses() []models.WorkerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.WorkerStatus, len(b.statuses))
	copy(out, b.statuses)
	return out
}

// CountDone returns how many workers report completed >= total.
func (b *Board) CountDone() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.statuses {
		if s.Progress.Done() {
			n++
		}
	}
	return n
}

func (b *Board) valid(id int) bool {
	return id >= 0 && id < len(b.statuses)
}
