package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ShayCichocki/gridwatch/pkg/models"
)

// Hub is an in-process transport connecting size ranks through mailboxes.
// A send stays in flight until a matching receive consumes it.
type Hub struct {
	size int

	mu        sync.Mutex
	mailboxes map[mailboxKey][]*envelope
	sendErrs  map[int]error
}

type mailboxKey struct {
	dest    int
	channel models.Channel
}

type envelope struct {
	rep     models.Report
	matched atomic.Bool
}

// NewHub creates a hub for ranks [0, size).
func NewHub(size int) *Hub {
	return &Hub{
		size:      size,
		mailboxes: make(map[mailboxKey][]*envelope),
		sendErrs:  make(map[int]error),
	}
}

// Size returns the number of ranks the hub connects.
func (h *Hub) Size() int {
	return h.size
}

// Endpoint returns the Transport seen by the given rank.
func (h *Hub) Endpoint(rank int) Transport {
	return &endpoint{hub: h, rank: rank}
}

// FailSends makes every later send from rank fail with err.
// A nil err restores normal delivery.
func (h *Hub) FailSends(rank int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.sendErrs, rank)
		return
	}
	h.sendErrs[rank] = err
}

// Pending returns how many unreceived reports wait for dest on ch.
func (h *Hub) Pending(dest int, ch models.Channel) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.mailboxes[mailboxKey{dest: dest, channel: ch}])
}

func (h *Hub) validRank(rank int) bool {
	return rank >= 0 && rank < h.size
}

// take removes the oldest report for dest on ch from source.
func (h *Hub) take(dest, source int, ch models.Channel) (*envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := mailboxKey{dest: dest, channel: ch}
	box := h.mailboxes[key]
	for i, env := range box {
		if source != AnySource && env.rep.Source != source {
			continue
		}
		h.mailboxes[key] = append(box[:i:i], box[i+1:]...)
		return env, true
	}
	return nil, false
}

type endpoint struct {
	hub  *Hub
	rank int
}

func (e *endpoint) Send(rep models.Report, dest int, ch models.Channel) (Request, error) {
	if !e.hub.validRank(dest) {
		return nil, fmt.Errorf("send to %d: %w", dest, ErrUnknownRank)
	}
	if err := validChannel(ch); err != nil {
		return nil, err
	}

	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()

	if err := e.hub.sendErrs[e.rank]; err != nil {
		return Failed(err), nil
	}

	rep.Source = e.rank
	rep.Channel = ch
	env := &envelope{rep: rep}
	key := mailboxKey{dest: dest, channel: ch}
	e.hub.mailboxes[key] = append(e.hub.mailboxes[key], env)
	return &sendRequest{env: env}, nil
}

func (e *endpoint) Recv(source int, ch models.Channel) (Request, error) {
	if source != AnySource && !e.hub.validRank(source) {
		return nil, fmt.Errorf("receive from %d: %w", source, ErrUnknownRank)
	}
	if err := validChannel(ch); err != nil {
		return nil, err
	}
	return &recvRequest{hub: e.hub, dest: e.rank, source: source, channel: ch}, nil
}

type sendRequest struct {
	env *envelope
}

func (r *sendRequest) Test() (bool, models.Report, error) {
	return r.env.matched.Load(), models.Report{}, nil
}

type recvRequest struct {
	hub     *Hub
	dest    int
	source  int
	channel models.Channel

	done bool
	rep  models.Report
}

func (r *recvRequest) Test() (bool, models.Report, error) {
	if r.done {
		return true, r.rep, nil
	}
	env, ok := r.hub.take(r.dest, r.source, r.channel)
	if !ok {
		return false, models.Report{}, nil
	}
	env.matched.Store(true)
	r.done = true
	r.rep = env.rep
	return true, r.rep, nil
}
