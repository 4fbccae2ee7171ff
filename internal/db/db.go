package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ceotind/sharp-form-backend/internal/oxidb"
)

const (
	dialTimeout       = 5 * time.Second
	keepaliveInterval = 10 * time.Second
)

// Pool is a round-robin connection pool for OxiDB with auto-reconnect.
type Pool struct {
	host    string
	port    int
	clients []*oxidb.Client
	mu      []sync.RWMutex
	idx     uint64
	stop    chan struct{}
	once    sync.Once
}

// NewPool creates a pool of n OxiDB connections.
func NewPool(host string, port, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		host:    host,
		port:    port,
		clients: make([]*oxidb.Client, size),
		mu:      make([]sync.RWMutex, size),
		stop:    make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		c, err := oxidb.Connect(host, port, dialTimeout)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pool: connect client %d: %w", i, err)
		}
		p.clients[i] = c
	}
	// Keepalive pings prevent the server from dropping idle connections.
	go p.keepalive()
	return p, nil
}

// Get returns the next client in round-robin order.
func (p *Pool) Get() *oxidb.Client {
	n := atomic.AddUint64(&p.idx, 1)
	i := int(n % uint64(len(p.clients)))
	p.mu[i].RLock()
	defer p.mu[i].RUnlock()
	return p.clients[i]
}

// Ping checks one pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	pong, err := p.Get().Ping(ctx)
	if err != nil {
		return err
	}
	if pong != "pong" {
		return fmt.Errorf("pool: unexpected ping reply %q", pong)
	}
	return nil
}

// reconnect replaces a broken client at index i.
func (p *Pool) reconnect(i int) {
	c, err := oxidb.Connect(p.host, p.port, dialTimeout)
	if err != nil {
		log.Warn().Err(err).Int("client", i).Msg("pool: reconnect failed")
		return
	}
	p.mu[i].Lock()
	old := p.clients[i]
	p.clients[i] = c
	p.mu[i].Unlock()
	if old != nil {
		old.Close()
	}
	log.Info().Int("client", i).Msg("pool: client reconnected")
}

func (p *Pool) keepalive() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			for i := range p.clients {
				p.mu[i].RLock()
				c := p.clients[i]
				p.mu[i].RUnlock()
				ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
				_, err := c.Ping(ctx)
				cancel()
				if err != nil {
					log.Warn().Err(err).Int("client", i).Msg("pool: ping failed, reconnecting")
					p.reconnect(i)
				}
			}
		}
	}
}

// Close closes all connections.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.stop)
		for i, c := range p.clients {
			p.mu[i].Lock()
			if c != nil {
				c.Close()
			}
			p.mu[i].Unlock()
		}
	})
}
