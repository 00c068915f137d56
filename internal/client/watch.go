package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/eventdesk/checkpoint/internal/live"
	"github.com/eventdesk/checkpoint/internal/models"
	"github.com/gorilla/websocket"
)

// liveURL maps the API base onto the websocket feed, e.g.
// http://host/api → ws://host/api/live.
func (c *Client) liveURL() string {
	u := c.baseURL + "/live"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Watch streams activities from the live feed to fn until ctx is cancelled
// or the connection drops. A cancelled ctx returns nil.
func (c *Client) Watch(ctx context.Context, fn func(models.Activity)) error {
	header := http.Header{}
	if err := c.authorize(header); err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.liveURL(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			if cerr := c.tokens.Clear(); cerr != nil {
				c.logger.Warn("clear token", "error", cerr)
			}
			return ErrUnauthorized
		}
		return fmt.Errorf("dial live feed: %w", err)
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock ReadJSON.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg live.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read live feed: %w", err)
		}
		if a, ok := live.ActivityFrom(msg); ok {
			fn(a)
		}
	}
}
