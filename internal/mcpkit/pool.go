package mcpkit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Pool holds connected clients keyed by server name. Reads come off a
// sync.Map; singleflight collapses concurrent connection attempts for
// the same server into one.
type Pool struct {
	clients sync.Map // map[string]*Client
	group   singleflight.Group
	mu      sync.Mutex // serializes Close
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Connect returns the client for the named server, establishing the
// connection on first use.
func (p *Pool) Connect(ctx context.Context, config ServerConfig) (*Client, error) {
	if c, ok := p.clients.Load(config.Name); ok {
		return c.(*Client), nil
	}

	result, err, _ := p.group.Do(config.Name, func() (interface{}, error) {
		if c, ok := p.clients.Load(config.Name); ok {
			return c.(*Client), nil
		}

		client := NewClient(config)
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("pool connect %s: %w", config.Name, err)
		}

		p.clients.Store(config.Name, client)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Client), nil
}

// Get returns an already-connected client by name.
func (p *Pool) Get(name string) (*Client, error) {
	c, ok := p.clients.Load(name)
	if !ok {
		return nil, fmt.Errorf("mcp server %q not connected", name)
	}
	return c.(*Client), nil
}

// All returns every connected client.
func (p *Pool) All() []*Client {
	var clients []*Client
	p.clients.Range(func(_, value interface{}) bool {
		clients = append(clients, value.(*Client))
		return true
	})
	return clients
}

// Close closes every connection and empties the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	p.clients.Range(func(key, value interface{}) bool {
		name := key.(string)
		c := value.(*Client)
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
		p.clients.Delete(key)
		return true
	})
	return firstErr
}
