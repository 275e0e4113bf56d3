package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"github.com/ShayCichocki/gridwatch/pkg/models"
)

// serviceName is the net/rpc service workers deliver reports to.
const serviceName = "Gridwatch"

// Ack is the reply to a delivered report.
type Ack struct {
	Accepted bool
}

// inbox buffers delivered reports per channel until the coordinator receives them.
type inbox struct {
	mu      sync.Mutex
	queues  map[models.Channel][]models.Report
	dropped int
	limit   int
}

func newInbox(limit int) *inbox {
	return &inbox{queues: make(map[models.Channel][]models.Report), limit: limit}
}

func (in *inbox) push(rep models.Report) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	q := in.queues[rep.Channel]
	if in.limit > 0 && len(q) >= in.limit {
		q = evict(q, rep.Source)
		in.dropped++
	}
	in.queues[rep.Channel] = append(q, rep)
	return true
}

// evict removes one report from a full queue about to receive a report from
// source. The oldest report superseded by a newer one from the same worker
// goes first, so a flood from one worker cannot push out another worker's only
// update. Only when every queued report is the latest of its worker does the
// oldest one go.
func evict(q []models.Report, source int) []models.Report {
	queued := make(map[int]int, len(q)+1)
	for _, r := range q {
		queued[r.Source]++
	}
	queued[source]++

	for i, r := range q {
		if queued[r.Source] > 1 {
			return append(q[:i:i], q[i+1:]...)
		}
	}
	return q[1:]
}

func (in *inbox) pop(source int, ch models.Channel) (models.Report, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	q := in.queues[ch]
	for i, rep := range q {
		if source != AnySource && rep.Source != source {
			continue
		}
		in.queues[ch] = append(q[:i:i], q[i+1:]...)
		return rep, true
	}
	return models.Report{}, false
}

// Service is the net/rpc receiver registered by Server.
type Service struct {
	inbox *inbox
	size  int
}

// Deliver accepts one report from a worker.
func (s *Service) Deliver(rep *models.Report, ack *Ack) error {
	if !rep.Channel.Valid() {
		return fmt.Errorf("deliver channel %d: %w", rep.Channel, ErrUnknownChannel)
	}
	if s.size > 0 && (rep.Source < 0 || rep.Source >= s.size) {
		return fmt.Errorf("deliver from %d: %w", rep.Source, ErrUnknownRank)
	}
	if rep.Channel == models.ChannelProgress && !rep.Progress.Valid() {
		return fmt.Errorf("deliver from %d: %w", rep.Source, models.ErrInvalidProgress)
	}
	ack.Accepted = s.inbox.push(*rep)
	return nil
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Size bounds accepted source ranks to [0, Size). Zero disables the check.
	Size int
	// QueueLimit caps buffered reports per channel. Zero means unbounded.
	QueueLimit int
	// Logger receives connection diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Server is the coordinator side of the RPC transport. It only receives.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
	inbox    *inbox
	logger   *zap.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen starts an RPC server accepting worker reports on network/addr.
func Listen(network, addr string, opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	in := newInbox(opts.QueueLimit)
	srv := rpc.NewServer()
	if err := srv.RegisterName(serviceName, &Service{inbox: in, size: opts.Size}); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s %s: %w", network, addr, err)
	}

	s := &Server{
		listener: l,
		rpc:      srv,
		inbox:    in,
		logger:   logger,
		conns:    make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("rpc transport listening", zap.String("addr", l.Addr().String()))
	return s, nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.rpc.ServeConn(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Dropped returns how many buffered reports were discarded by the queue limit.
func (s *Server) Dropped() int {
	s.inbox.mu.Lock()
	defer s.inbox.mu.Unlock()
	return s.inbox.dropped
}

// Send is not supported: the coordinator never sends to workers.
func (s *Server) Send(models.Report, int, models.Channel) (Request, error) {
	return nil, ErrUnsupported
}

// Recv starts receiving one delivered report on ch.
func (s *Server) Recv(source int, ch models.Channel) (Request, error) {
	if err := validChannel(ch); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return &inboxRequest{inbox: s.inbox, source: source, channel: ch}, nil
}

// Close stops accepting connections, drops open ones and waits for their
// handlers to exit. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

type inboxRequest struct {
	inbox   *inbox
	source  int
	channel models.Channel

	done bool
	rep  models.Report
}

func (r *inboxRequest) Test() (bool, models.Report, error) {
	if r.done {
		return true, r.rep, nil
	}
	rep, ok := r.inbox.pop(r.source, r.channel)
	if !ok {
		return false, models.Report{}, nil
	}
	r.done = true
	r.rep = rep
	return true, rep, nil
}

// DialOptions configures a Client.
type DialOptions struct {
	// Rank is stamped as the source of every report.
	Rank int
	// Attempts bounds connection attempts. Zero means a single attempt.
	Attempts uint
	// Delay is the initial backoff between attempts.
	Delay time.Duration
	// Logger receives retry diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Client is the worker side of the RPC transport. It only sends, and only to
// the coordinator.
type Client struct {
	rank int
	rpc  *rpc.Client
}

// Dial connects to the coordinator, retrying with exponential backoff.
func Dial(ctx context.Context, network, addr string, opts DialOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = 1
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var client *rpc.Client
	err := retry.Do(
		func() error {
			var dialer net.Dialer
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return err
			}
			client = rpc.NewClient(conn)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Info("dial retry", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial coordinator %s: %w", addr, err)
	}

	return &Client{rank: opts.Rank, rpc: client}, nil
}

// Send starts delivering rep to the coordinator. dest must be the coordinator rank.
func (c *Client) Send(rep models.Report, dest int, ch models.Channel) (Request, error) {
	if dest != models.CoordinatorRank {
		return nil, fmt.Errorf("send to %d: %w", dest, ErrUnknownRank)
	}
	if err := validChannel(ch); err != nil {
		return nil, err
	}

	rep.Source = c.rank
	rep.Channel = ch
	call := c.rpc.Go(serviceName+".Deliver", &rep, &Ack{}, make(chan *rpc.Call, 1))
	return &callRequest{call: call}, nil
}

// Recv is not supported: workers never receive.
func (c *Client) Recv(int, models.Channel) (Request, error) {
	return nil, ErrUnsupported
}

// Close closes the connection. In-flight sends finish with an error.
func (c *Client) Close() error {
	return c.rpc.Close()
}

type callRequest struct {
	call *rpc.Call

	done bool
	err  error
}

func (r *callRequest) Test() (bool, models.Report, error) {
	if r.done {
		return true, models.Report{}, r.err
	}
	select {
	case <-r.call.Done:
		r.done = true
		r.err = r.call.Error
		return true, models.Report{}, r.err
	default:
		return false, models.Report{}, nil
	}
}
