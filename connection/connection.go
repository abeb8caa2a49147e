package connection

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/basinlabs/mongocore/logctx"
	"github.com/basinlabs/mongocore/mongoerr"
	"github.com/basinlabs/mongocore/rope"
	"github.com/basinlabs/mongocore/wire"
)

// Config bounds a Conn's behavior: frame size, request queueing, and drain
// timing. It has no knowledge of authentication or TLS, both out of scope.
type Config struct {
	// MaxFrameBytes bounds both outbound and inbound frames; 0 disables the
	// check (not recommended).
	MaxFrameBytes int32
	// SubmissionQueueDepth bounds how many Send calls may be waiting to be
	// encoded and written before further callers block, providing
	// backpressure to producers.
	SubmissionQueueDepth int
	// DrainGrace bounds how long Drain waits for in-flight requests to
	// complete before forcing the socket closed.
	DrainGrace time.Duration
}

// DefaultConfig returns the configuration defaults named in the driver's
// external interface.
func DefaultConfig() Config {
	return Config{
		MaxFrameBytes:        48 * 1024 * 1024,
		SubmissionQueueDepth: 64,
		DrainGrace:           5 * time.Second,
	}
}

type pendingResult struct {
	reply wire.Reply
	err   error
}

type submission struct {
	req      wire.Request
	resultCh chan pendingResult
	assigned chan int32
}

// Conn owns one TCP socket to a mongod endpoint. It is single-writer and
// single-reader internally: a dedicated goroutine each drives the socket's
// write side and read side, and the in-flight correlation table is touched
// only while holding mu.
type Conn struct {
	netConn net.Conn
	cfg     Config
	log     logctx.Logger

	state stateBox

	submit chan submission
	closed chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	inflight map[int32]chan pendingResult
}

// Dial opens a TCP connection to addr and starts its write/read loops. No
// handshake (isMaster, auth) is performed; the Connection is Ready as soon
// as the socket connects.
func Dial(ctx context.Context, addr string, cfg Config, log logctx.Logger) (*Conn, error) {
	d := net.Dialer{}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, mongoerr.ConnectRefused(err)
	}
	return New(nc, cfg, log), nil
}

// New wraps an already-established net.Conn (e.g. a net.Pipe end in tests,
// or a socket obtained by some other dialer) and starts its write/read
// loops. The Connection is Ready immediately.
func New(nc net.Conn, cfg Config, log logctx.Logger) *Conn {
	c := &Conn{
		netConn:  nc,
		cfg:      cfg,
		log:      log,
		submit:   make(chan submission, cfg.SubmissionQueueDepth),
		closed:   make(chan struct{}),
		inflight: make(map[int32]chan pendingResult),
	}
	c.state.store(Ready)
	go c.writeLoop()
	go c.readLoop()
	return c
}

// State returns the Connection's current lifecycle state.
func (c *Conn) State() State { return c.state.load() }

// Send submits req for encoding and writing, and blocks until its Reply
// arrives, the Connection fails, or ctx is done. Submission itself blocks
// when the submission queue is full, which is how backpressure reaches
// callers sharing one Connection.
func (c *Conn) Send(ctx context.Context, req wire.Request) (wire.Reply, error) {
	if c.state.load() != Ready {
		return wire.Reply{}, mongoerr.NotReady()
	}
	sub := submission{
		req:      req,
		resultCh: make(chan pendingResult, 1),
		assigned: make(chan int32, 1),
	}
	select {
	case c.submit <- sub:
	case <-c.closed:
		return wire.Reply{}, mongoerr.NotReady()
	case <-ctx.Done():
		return wire.Reply{}, cancellationError(ctx)
	}

	var reqID int32
	select {
	case reqID = <-sub.assigned:
	case <-c.closed:
		return wire.Reply{}, mongoerr.NotReady()
	case <-ctx.Done():
		return wire.Reply{}, cancellationError(ctx)
	}

	select {
	case res := <-sub.resultCh:
		return res.reply, res.err
	case <-ctx.Done():
		c.orphan(reqID)
		return wire.Reply{}, cancellationError(ctx)
	}
}

func cancellationError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return mongoerr.Timeout()
	}
	return mongoerr.Cancelled()
}

func (c *Conn) orphan(reqID int32) {
	c.mu.Lock()
	delete(c.inflight, reqID)
	c.mu.Unlock()
}

// Drain stops accepting new Send calls, waits for in-flight requests to
// complete (up to the configured DrainGrace), and then closes the socket.
func (c *Conn) Drain() {
	if !c.state.cas(Ready, Draining) {
		return
	}
	deadline := time.NewTimer(c.cfg.DrainGrace)
	defer deadline.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
drain:
	for {
		if c.inflightCount() == 0 {
			break drain
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			break drain
		}
	}
	c.shutdownSocket()
}

func (c *Conn) inflightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// shutdownSocket and fail both tear down the socket exactly once: writeLoop
// and readLoop run independently and can both observe a failure from the
// same socket close (one side's error wakes the other's blocked read/write),
// and Drain's shutdownSocket can race either of them. closeOnce serializes
// every path down to a single close of c.closed.
func (c *Conn) shutdownSocket() {
	c.closeOnce.Do(func() {
		c.netConn.Close()
		c.state.store(Closed)
		close(c.closed)
	})
}

// fail transitions the Connection to Failed, completes every in-flight
// caller with err, closes the socket, and then leaves the Connection in
// Closed; Failed is only a transient state. It is safe to call more than
// once, and safe to race with Drain's shutdownSocket; only the first to
// arrive has any effect.
func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.state.store(Failed)
		c.mu.Lock()
		pending := c.inflight
		c.inflight = make(map[int32]chan pendingResult)
		c.mu.Unlock()
		for _, ch := range pending {
			ch <- pendingResult{err: err}
		}
		c.netConn.Close()
		c.state.store(Closed)
		close(c.closed)
	})
}

func (c *Conn) writeLoop() {
	for {
		select {
		case sub, ok := <-c.submit:
			if !ok {
				return
			}
			b := rope.NewBuilder()
			reqID := sub.req.AppendWireMessage(b)
			frame := b.Rope().Bytes()
			if c.cfg.MaxFrameBytes > 0 && len(frame) > int(c.cfg.MaxFrameBytes) {
				// fails only this request; the Connection stays Ready
				sub.assigned <- reqID
				sub.resultCh <- pendingResult{err: &wire.FrameTooLargeError{Length: int32(len(frame)), MaxSize: c.cfg.MaxFrameBytes}}
				continue
			}
			c.mu.Lock()
			c.inflight[reqID] = sub.resultCh
			c.mu.Unlock()
			sub.assigned <- reqID
			if err := writeAll(c.netConn, frame); err != nil {
				c.log.WithError(err).Warnf("connection write failed")
				c.fail(mongoerr.WriteFailed(err))
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) readLoop() {
	for {
		h, body, err := wire.ReadFrame(c.netConn, c.cfg.MaxFrameBytes)
		if err != nil {
			if err == io.EOF {
				c.fail(mongoerr.ReadFailed(err))
				return
			}
			c.log.WithError(err).Warnf("connection read failed")
			c.fail(mongoerr.ReadFailed(err))
			return
		}
		reply, err := wire.ExpectReply(h, body, 0)
		if err != nil {
			if opErr, ok := err.(*wire.UnexpectedOpCodeError); ok {
				c.log.WithError(opErr).Warnf("discarding frame with unexpected opCode")
				continue
			}
			c.fail(mongoerr.IoError(err))
			return
		}
		c.mu.Lock()
		ch, ok := c.inflight[h.ResponseTo]
		if ok {
			delete(c.inflight, h.ResponseTo)
		}
		c.mu.Unlock()
		if !ok {
			c.log.WithRequestID(h.ResponseTo).Warnf("discarding reply with no matching in-flight request")
			continue
		}
		ch <- pendingResult{reply: reply}
	}
}

// writeAll writes p to w in full, retrying partial writes without
// reordering bytes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
