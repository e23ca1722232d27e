package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/atinyakov/GraphPaste/internal/gql"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const subscriptionID = "1"

// Subscribe runs a subscription over the graphql-ws websocket and calls
// handle for every result until ctx is done or the server completes the
// stream. The session token is sent in the connection_init payload.
func (c *Client) Subscribe(ctx context.Context, req gql.Request, handle func(Response)) error {
	dialer := ws.Dialer{Protocols: []string{"graphql-ws"}, TLSConfig: c.tls}
	conn, br, _, err := dialer.Dial(ctx, c.wsURL())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if br != nil {
		ws.PutReader(br)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	err = c.stream(conn, req, handle)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) stream(conn net.Conn, req gql.Request, handle func(Response)) error {
	init, _ := json.Marshal(map[string]string{"authToken": c.Token})
	if err := send(conn, wsMessage{Type: "connection_init", Payload: init}); err != nil {
		return err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	started := false
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			return err
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("invalid message: %w", err)
		}

		switch msg.Type {
		case "connection_ack":
			if !started {
				started = true
				if err := send(conn, wsMessage{ID: subscriptionID, Type: "start", Payload: payload}); err != nil {
					return err
				}
			}
		case "data":
			var res Response
			if err := json.Unmarshal(msg.Payload, &res); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}
			handle(res)
		case "complete":
			return nil
		case "error", "connection_error":
			var e Error
			_ = json.Unmarshal(msg.Payload, &e)
			return errors.New(e.Message)
		}
	}
}

func send(conn net.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return wsutil.WriteClientMessage(conn, ws.OpText, data)
}

func (c *Client) wsURL() string {
	switch {
	case strings.HasPrefix(c.BaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.BaseURL, "https://") + "/subscriptions"
	case strings.HasPrefix(c.BaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.BaseURL, "http://") + "/subscriptions"
	}
	return c.BaseURL + "/subscriptions"
}
