package models

import (
	"errors"
	"fmt"
)

// ErrInvalidProgress is returned when a progress pair cannot be rendered.
var ErrInvalidProgress = errors.New("invalid progress")

// Progress is a (completed, total) pair reported by a worker.
// Completed may exceed Total; the dashboard then shows more than 100%.
type Progress struct {
	// Completed is the number of finished units of work.
	Completed int `json:"completed"`
	// Total is the number of units expected. Always at least 1.
	Total int `json:"total"`
}

// PlaceholderProgress is the value shown before a worker reports.
var PlaceholderProgress = Progress{Completed: 0, Total: 1}

// NewProgress validates and returns a progress pair.
func NewProgress(completed, total int) (Progress, error) {
	if total < 1 {
		return Progress{}, fmt.Errorf("%w: total %d must be at least 1", ErrInvalidProgress, total)
	}
	if completed < 0 {
		return Progress{}, fmt.Errorf("%w: completed %d is negative", ErrInvalidProgress, completed)
	}
	return Progress{Completed: completed, Total: total}, nil
}

// Valid returns true if the pair can be rendered without a division fault.
func (p Progress) Valid() bool {
	return p.Total >= 1 && p.Completed >= 0
}

// Done returns true once the worker has completed all expected work.
func (p Progress) Done() bool {
	return p.Valid() && p.Completed >= p.Total
}

// WorkerStatus is the last known state of one worker.
type WorkerStatus struct {
	// ID is the worker rank in [0, size).
	ID int `json:"id"`
	// Message is the latest status text. May be empty.
	Message string `json:"message"`
	// Progress is the latest progress pair.
	Progress Progress `json:"progress"`
}

// PlaceholderStatus returns the status shown for a worker that has not reported yet.
func PlaceholderStatus(id int) WorkerStatus {
	return WorkerStatus{ID: id, Progress: PlaceholderProgress}
}

// Report is the envelope every transport carries from a worker to the coordinator.
type Report struct {
	// Source is the rank of the sending worker.
	Source int `json:"source"`
	// Channel selects which field of the status the report updates.
	Channel Channel `json:"channel"`
	// Seq is a time-ordered id unique per source. Zero means unsequenced.
	Seq int64 `json:"seq,omitempty"`
	// Message is set for ChannelMessage reports.
	Message string `json:"message,omitempty"`
	// Progress is set for ChannelProgress reports.
	Progress Progress `json:"progress,omitempty"`
}

// MessageReport builds a report for the message channel.
func MessageReport(source int, text string) Report {
	return Report{Source: source, Channel: ChannelMessage, Message: text}
}

// ProgressReport builds a report for the progress channel.
func ProgressReport(source int, p Progress) Report {
	return Report{Source: source, Channel: ChannelProgress, Progress: p}
}
