package feed

import (
	"encoding/json"
	"net"
	"sync"
)

// Publisher sends progress events to the feed socket. Publishing is
// fire-and-forget: when no collector is listening, sends fail silently
// and the run proceeds unaffected.
type Publisher struct {
	path string

	mu   sync.Mutex
	conn *net.UnixConn
}

func NewPublisher(socketPath string) *Publisher {
	return &Publisher{path: socketPath}
}

// Publish marshals and sends one event. The connection is dialed lazily
// and redialed after a send failure, so a collector started mid-run
// picks up subsequent events.
func (p *Publisher) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil && !p.dialLocked() {
		return
	}
	if _, err := p.conn.Write(data); err != nil {
		_ = p.conn.Close()
		p.conn = nil
		if p.dialLocked() {
			_, _ = p.conn.Write(data)
		}
	}
}

func (p *Publisher) dialLocked() bool {
	addr, err := net.ResolveUnixAddr("unixgram", p.path)
	if err != nil {
		return false
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return false
	}
	p.conn = conn
	return true
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
