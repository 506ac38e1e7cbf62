package client

import (
	"context"

	"github.com/pixperk/rowlock/pkg/mutex"
)

// Mutexes returns a lock manager whose table lives behind this client.
func (c *Client) Mutexes(ctx context.Context, cfg mutex.Config) (*mutex.Manager, error) {
	return mutex.New(ctx, c, cfg)
}

// Dial connects to addr and opens the lock table named in cfg.
// Closing the returned client invalidates the manager.
func Dial(ctx context.Context, addr string, cfg mutex.Config) (*Client, *mutex.Manager, error) {
	c, err := NewClient(addr)
	if err != nil {
		return nil, nil, err
	}

	m, err := c.Mutexes(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, m, nil
}
