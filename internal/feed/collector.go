package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const defaultMaxPayloadBytes = 8 * 1024

// Collector binds the feed socket and folds incoming run-progress
// datagrams into a Store. Payloads that are oversized, malformed, or
// fail event validation are counted and dropped; the feed is advisory,
// so a dropped datagram costs the watcher at most one refresh.
type Collector struct {
	store *Store
	path  string

	MaxPayloadBytes int

	dropped atomic.Uint64

	mu     sync.Mutex
	conn   *net.UnixConn
	closed bool
}

func NewCollector(store *Store, socketPath string) *Collector {
	return &Collector{
		store:           store,
		path:            socketPath,
		MaxPayloadBytes: defaultMaxPayloadBytes,
	}
}

func (c *Collector) SocketPath() string {
	return c.path
}

// Dropped reports how many datagrams were discarded since Start.
func (c *Collector) Dropped() uint64 {
	return c.dropped.Load()
}

// Start binds the socket and consumes datagrams until ctx is done.
func (c *Collector) Start(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("feed: store is required")
	}
	if c.path == "" {
		return fmt.Errorf("feed: socket path is required")
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = defaultMaxPayloadBytes
	}

	conn, err := c.bind()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.close()
	}()

	go c.readLoop()

	return nil
}

// bind creates the socket dir, clears any stale socket, and listens.
// Dir and socket are private to the user: another account must not be
// able to publish run events into a watcher.
func (c *Collector) bind() (*net.UnixConn, error) {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("feed: create socket dir %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return nil, fmt.Errorf("feed: chmod socket dir %s: %w", dir, err)
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("feed: remove stale socket %s: %w", c.path, err)
	}

	addr, err := net.ResolveUnixAddr("unixgram", c.path)
	if err != nil {
		return nil, fmt.Errorf("feed: resolve socket addr: %w", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("feed: listen on %s: %w", c.path, err)
	}
	if err := os.Chmod(c.path, 0o600); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("feed: chmod socket %s: %w", c.path, err)
	}
	return conn, nil
}

func (c *Collector) readLoop() {
	buf := make([]byte, c.MaxPayloadBytes)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			if c.isClosed() {
				return
			}
			continue
		}

		e, ok := c.decode(buf[:n])
		if !ok {
			c.dropped.Add(1)
			continue
		}
		c.store.Upsert(e)
	}
}

// decode rejects empty and at-capacity reads (the latter may be a
// truncated datagram), then unmarshals and validates the event.
func (c *Collector) decode(payload []byte) (Event, bool) {
	if len(payload) == 0 || len(payload) >= c.MaxPayloadBytes {
		return Event{}, false
	}
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, false
	}
	if err := e.Validate(); err != nil {
		return Event{}, false
	}
	return e, true
}

func (c *Collector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Collector) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
