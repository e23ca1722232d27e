package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/atinyakov/GraphPaste/internal/gql"
	"github.com/atinyakov/GraphPaste/internal/middleware"
	"github.com/atinyakov/GraphPaste/internal/service"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

// Subprotocol is the websocket subprotocol spoken on /subscriptions.
const Subprotocol = "graphql-ws"

// Message types of the graphql-ws protocol.
const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionTerminate = "connection_terminate"
	msgStart               = "start"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
	msgStop                = "stop"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscriptionHandler serves GraphQL subscriptions over websocket.
type SubscriptionHandler struct {
	Executor Executor
	Logger   *zap.Logger
}

// ServeHTTP upgrades the connection and serves it until the client goes
// away. Every started operation is cancelled when the connection ends.
func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := ws.HTTPUpgrader{
		Protocol: func(p string) bool { return p == Subprotocol },
	}
	conn, _, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		h.Logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{
		conn:   conn,
		exec:   h.Executor,
		log:    h.Logger,
		caller: *service.CallerFrom(ctx),
		ctx:    ctx,
		subs:   make(map[string]context.CancelFunc),
	}
	c.serve()
	cancel()
	c.wg.Wait()
	_ = conn.Close()
}

type wsConn struct {
	conn   net.Conn
	exec   Executor
	log    *zap.Logger
	caller service.Caller
	ctx    context.Context

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

func (c *wsConn) serve() {
	for {
		data, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.write(wsMessage{Type: msgConnectionError, Payload: errorPayload("invalid message")})
			continue
		}

		switch msg.Type {
		case msgConnectionInit:
			c.init(msg.Payload)
			c.write(wsMessage{Type: msgConnectionAck})
		case msgStart:
			c.start(msg)
		case msgStop:
			c.stop(msg.ID)
		case msgConnectionTerminate:
			return
		default:
			c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("unknown message type " + msg.Type)})
		}
	}
}

// init takes the token from the connection_init payload, which browsers use
// in place of the Authorization header.
func (c *wsConn) init(payload json.RawMessage) {
	var p struct {
		AuthToken     string `json:"authToken"`
		Authorization string `json:"Authorization"`
	}
	if len(payload) == 0 || json.Unmarshal(payload, &p) != nil {
		return
	}
	switch {
	case p.AuthToken != "":
		c.caller.Token = p.AuthToken
	case p.Authorization != "":
		c.caller.Token = middleware.BearerToken(p.Authorization)
	}
}

func (c *wsConn) start(msg wsMessage) {
	var req gql.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Query == "" {
		c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("invalid payload")})
		return
	}

	c.mu.Lock()
	if _, dup := c.subs[msg.ID]; dup {
		c.mu.Unlock()
		c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("duplicate operation id")})
		return
	}
	caller := c.caller
	ctx, cancel := context.WithCancel(service.WithCaller(c.ctx, &caller))
	c.subs[msg.ID] = cancel
	c.mu.Unlock()

	results, err := c.exec.Subscribe(ctx, req)
	if err != nil {
		c.remove(msg.ID)
		cancel()
		c.write(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(err.Error())})
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for res := range results {
			if ctx.Err() != nil {
				continue
			}
			payload, err := json.Marshal(res)
			if err != nil {
				c.log.Error("failed to encode subscription result", zap.Error(err))
				continue
			}
			c.write(wsMessage{ID: msg.ID, Type: msgData, Payload: payload})
		}
		// The stream ended on the server side.
		if ctx.Err() == nil {
			c.remove(msg.ID)
			c.write(wsMessage{ID: msg.ID, Type: msgComplete})
		}
		cancel()
	}()
}

func (c *wsConn) stop(id string) {
	if cancel := c.remove(id); cancel != nil {
		cancel()
		c.write(wsMessage{ID: id, Type: msgComplete})
	}
}

func (c *wsConn) remove(id string) context.CancelFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel := c.subs[id]
	delete(c.subs, id)
	return cancel
}

func (c *wsConn) write(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteServerMessage(c.conn, ws.OpText, data); err != nil {
		c.log.Debug("websocket write failed", zap.Error(err))
	}
}

func errorPayload(message string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"message": message})
	return data
}
