package board

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/ShayCichocki/gridwatch/pkg/models"
)

func TestNew_Placeholders(t *testing.T) {
	b := New(4)

	if b.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", b.Size())
	}
	for i, s := range b.Statuses() {
		if s != models.PlaceholderStatus(i) {
			t.Errorf("status[%d] = %+v, want placeholder", i, s)
		}
	}
	if b.DirtyCount() != 0 {
		t.Errorf("new board should have no dirty ids, got %d", b.DirtyCount())
	}
}

func TestApply_UpdatesAndMarksDirty(t *testing.T) {
	b := New(3)

	if err := b.Apply(models.MessageReport(2, "reading input")); err != nil {
		t.Fatalf("Apply message: %v", err)
	}
	if err := b.Apply(models.ProgressReport(1, models.Progress{Completed: 3, Total: 9})); err != nil {
		t.Fatalf("Apply progress: %v", err)
	}

	s2, _ := b.Status(2)
	if s2.Message != "reading input" {
		t.Errorf("status[2].Message = %q", s2.Message)
	}
	s1, _ := b.Status(1)
	if s1.Progress != (models.Progress{Completed: 3, Total: 9}) {
		t.Errorf("status[1].Progress = %+v", s1.Progress)
	}

	if got := b.Drain(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("Drain() = %v, want [1 2]", got)
	}
}

func TestApply_Rejects(t *testing.T) {
	b := New(2)

	tests := []struct {
		name string
		rep  models.Report
		want error
	}{
		{"unknown rank", models.MessageReport(5, "x"), ErrUnknownRank},
		{"negative rank", models.MessageReport(-1, "x"), ErrUnknownRank},
		{"zero total", models.ProgressReport(1, models.Progress{Completed: 1, Total: 0}), models.ErrInvalidProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Apply(tt.rep); !errors.Is(err, tt.want) {
				t.Errorf("Apply(%+v) error = %v, want %v", tt.rep, err, tt.want)
			}
		})
	}

	if b.DirtyCount() != 0 {
		t.Errorf("rejected reports must not mark dirty, got %d", b.DirtyCount())
	}
}

func TestApply_StaleSequence(t *testing.T) {
	b := New(2)

	newer := models.MessageReport(1, "newer")
	newer.Seq = 200
	older := models.MessageReport(1, "older")
	older.Seq = 100

	if err := b.Apply(newer); err != nil {
		t.Fatalf("Apply newer: %v", err)
	}
	b.Drain()

	if err := b.Apply(older); !errors.Is(err, ErrStale) {
		t.Fatalf("Apply older error = %v, want ErrStale", err)
	}
	s, _ := b.Status(1)
	if s.Message != "newer" {
		t.Errorf("stale report overwrote message: %q", s.Message)
	}
	if b.DirtyCount() != 0 {
		t.Error("stale report must not mark dirty")
	}

	// Sequences are tracked per channel.
	prog := models.ProgressReport(1, models.Progress{Completed: 1, Total: 2})
	prog.Seq = 150
	if err := b.Apply(prog); err != nil {
		t.Errorf("progress seq is independent of message seq: %v", err)
	}

	// Unsequenced reports are always accepted.
	if err := b.Apply(models.MessageReport(1, "plain")); err != nil {
		t.Errorf("unsequenced report rejected: %v", err)
	}
}

func TestDrain_EmptiesSet(t *testing.T) {
	b := New(5)
	b.MarkDirty(4)
	b.MarkDirty(0)
	b.MarkDirty(4)
	b.MarkDirty(99)

	if got := b.Drain(); !reflect.DeepEqual(got, []int{0, 4}) {
		t.Errorf("Drain() = %v, want [0 4]", got)
	}
	if got := b.Drain(); got != nil {
		t.Errorf("second Drain() = %v, want nil", got)
	}
}

func TestSetters(t *testing.T) {
	b := New(1)

	if err := b.SetMessage(0, "coordinating"); err != nil {
		t.Fatalf("SetMessage: %v", err)
	}
	if err := b.SetProgress(0, models.Progress{Completed: 1, Total: 1}); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	if err := b.SetMessage(1, "x"); !errors.Is(err, ErrUnknownRank) {
		t.Errorf("SetMessage(1) error = %v, want ErrUnknownRank", err)
	}
	if err := b.SetProgress(0, models.Progress{}); !errors.Is(err, models.ErrInvalidProgress) {
		t.Errorf("SetProgress(zero) error = %v, want ErrInvalidProgress", err)
	}
	if b.CountDone() != 1 {
		t.Errorf("CountDone() = %d, want 1", b.CountDone())
	}
}

func TestConcurrentUpdatesAndDrain(t *testing.T) {
	const size = 16
	b := New(size)

	var wg sync.WaitGroup
	for id := 0; id < size; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = b.SetProgress(id, models.Progress{Completed: i, Total: 100})
			}
		}(id)
	}

	seen := make(map[int]bool)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		for _, id := range b.Drain() {
			seen[id] = true
		}
		select {
		case <-done:
			for _, id := range b.Drain() {
				seen[id] = true
			}
			if len(seen) != size {
				t.Errorf("saw %d dirty ids, want %d", len(seen), size)
			}
			return
		default:
		}
	}
}
