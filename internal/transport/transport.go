// Package transport defines the non-blocking point-to-point substrate the
// dashboard is driven through, plus two adapters: an in-process Hub and a
// net/rpc client/server pair.
//
// Every operation returns immediately. Completion is observed by polling a
// Request with Test, or several at once with TestAny; nothing in this package
// blocks waiting for a peer.
package transport

import (
	"errors"

	"github.com/ShayCichocki/gridwatch/pkg/models"
)

// AnySource matches a report from any worker.
const AnySource = -1

var (
	// ErrUnknownRank is returned when a destination or source is out of range.
	ErrUnknownRank = errors.New("unknown rank")
	// ErrUnknownChannel is returned for a channel other than message or progress.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrUnsupported is returned by adapters that only implement one direction.
	ErrUnsupported = errors.New("operation not supported by this transport")
	// ErrClosed is returned after the transport has been closed.
	ErrClosed = errors.New("transport closed")
)

// Request is a handle to one in-flight non-blocking operation.
type Request interface {
	// Test polls the operation. Once done is true the request is finished and
	// further calls return the same result. For receives rep holds the report;
	// for sends it is the zero value.
	Test() (done bool, rep models.Report, err error)
}

// Transport starts non-blocking sends and receives addressed by rank and channel.
type Transport interface {
	// Send starts delivering rep to dest on channel ch.
	Send(rep models.Report, dest int, ch models.Channel) (Request, error)
	// Recv starts receiving one report on channel ch from source, or from any
	// worker when source is AnySource.
	Recv(source int, ch models.Channel) (Request, error)
}

// TestAny polls each non-nil request in order and returns the first one that
// has finished. index is -1 and done is false when nothing has finished.
// A failed request counts as finished; its error is returned with its index.
func TestAny(reqs []Request) (index int, done bool, rep models.Report, err error) {
	for i, r := range reqs {
		if r == nil {
			continue
		}
		ok, got, testErr := r.Test()
		if ok {
			return i, true, got, testErr
		}
	}
	return -1, false, models.Report{}, nil
}

// completed is a Request that finished before it was handed out.
type completed struct {
	rep models.Report
	err error
}

func (c completed) Test() (bool, models.Report, error) {
	return true, c.rep, c.err
}

// Failed returns a Request that is already finished with err.
func Failed(err error) Request {
	return completed{err: err}
}

func validChannel(ch models.Channel) error {
	if !ch.Valid() {
		return ErrUnknownChannel
	}
	return nil
}
