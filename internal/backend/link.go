package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"remote_imaging/internal/logger"
)

// Wire framing: a request is a decimal byte-length header line followed by
// that many bytes of YAML; a reply is a single '\n'-terminated ASCII line.

const (
	stalenessThreshold = 5 * time.Minute
	maxBackoff         = 30 * time.Second

	defaultTimeout      = 20 * time.Second
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 1 * time.Second
)

// ErrNotConnected is returned once the reconnect budget is exhausted.
var ErrNotConnected = errors.New("backend: not connected")

// Config holds the connection parameters for a Link.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration // applies symmetrically to send and receive

	// MaxReconnectAttempts and RetryBackoff tune the reconnect loop.
	// Zero values fall back to 5 attempts with a 1s base backoff.
	MaxReconnectAttempts int
	RetryBackoff         time.Duration
}

// Link manages the single persistent connection to the imaging backend.
// The backend protocol is strict request/reply with at most one request in
// flight; Exchange serializes callers so that pairing cannot be violated.
type Link struct {
	cfg Config
	log *logger.Logger

	mu           sync.Mutex
	conn         net.Conn
	reader       *bufio.Reader
	connected    bool
	lastActivity time.Time
	attempts     int
}

// NewLink builds a Link; no connection is made until the first exchange.
func NewLink(cfg Config, log *logger.Logger) *Link {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &Link{cfg: cfg, log: log}
}

// Exchange sends one request and blocks for its reply, holding the link for
// the whole request/reply pair. This is the only safe entry point for
// concurrent callers.
func (l *Link) Exchange(ctx context.Context, payload []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.sendLocked(ctx, payload); err != nil {
		return nil, err
	}
	return l.receiveLocked(ctx)
}

// Close discards the connection. The link may be reused afterwards; the next
// exchange reconnects lazily.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeConn()
	return nil
}

// Connected reports whether the link currently holds an open connection.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) sendLocked(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.ensureConnection(); err != nil {
		if err := l.reconnect(ctx); err != nil {
			return err
		}
	}

	if err := l.writeRequest(payload); err != nil {
		l.log.Errorw("backend_send_failed", "err", err, "timeout", l.cfg.Timeout)
		// Best-effort reconnect so the next exchange starts clean.
		if rerr := l.reconnect(ctx); rerr != nil {
			l.log.Warnw("backend_reconnect_failed", "err", rerr)
		}
		return fmt.Errorf("backend send: %w", err)
	}
	l.lastActivity = time.Now()
	return nil
}

func (l *Link) receiveLocked(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.connected {
		return nil, ErrNotConnected
	}

	_ = l.conn.SetReadDeadline(time.Now().Add(l.cfg.Timeout))
	line, err := l.reader.ReadString('\n')
	if err != nil {
		l.log.Errorw("backend_receive_failed", "err", err, "timeout", l.cfg.Timeout)
		if rerr := l.reconnect(ctx); rerr != nil {
			l.log.Warnw("backend_reconnect_failed", "err", rerr)
		}
		return nil, fmt.Errorf("backend receive: %w", err)
	}
	l.lastActivity = time.Now()
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// ensureConnection lazily (re)connects when the link was never connected or
// has been idle longer than the staleness threshold.
func (l *Link) ensureConnection() error {
	if l.connected && time.Since(l.lastActivity) <= stalenessThreshold {
		return nil
	}
	l.closeConn()
	return l.connect()
}

// reconnect discards the current connection and retries connecting, backing
// off min(base<<attempt, 30s) between failures, up to the attempt budget.
func (l *Link) reconnect(ctx context.Context) error {
	l.closeConn()
	for l.attempts < l.cfg.MaxReconnectAttempts {
		l.attempts++
		l.log.Warnw("backend_reconnecting", "attempt", l.attempts)

		if err := l.connect(); err == nil {
			l.log.Infow("backend_reconnected", "addr", l.addr())
			return nil
		}

		wait := l.cfg.RetryBackoff << l.attempts
		if wait > maxBackoff {
			wait = maxBackoff
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	l.log.Errorw("backend_reconnect_exhausted", "attempts", l.cfg.MaxReconnectAttempts)
	l.attempts = 0
	return ErrNotConnected
}

func (l *Link) connect() error {
	conn, err := net.DialTimeout("tcp", l.addr(), l.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", l.addr(), err)
	}
	l.conn = conn
	l.reader = bufio.NewReader(conn)
	l.connected = true
	l.attempts = 0
	l.lastActivity = time.Now()
	l.log.Infow("backend_connected", "addr", l.addr())
	return nil
}

func (l *Link) writeRequest(payload []byte) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.cfg.Timeout))
	header := strconv.Itoa(len(payload)) + "\n"
	if _, err := l.conn.Write([]byte(header)); err != nil {
		return err
	}
	_, err := l.conn.Write(payload)
	return err
}

func (l *Link) closeConn() {
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
		l.reader = nil
	}
	l.connected = false
}

func (l *Link) addr() string {
	return net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
