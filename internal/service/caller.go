package service

import (
	"context"

	"github.com/atinyakov/GraphPaste/internal/models"
)

// Caller describes the origin of the operation being served. The transport
// fills the request fields, the executor the operation fields and Admit the
// resolved user.
type Caller struct {
	Token     string
	IPAddress string
	UserAgent string
	Headers   map[string]string

	Operation     string
	OperationType string

	User *models.User
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored in ctx, or an anonymous caller.
func CallerFrom(ctx context.Context) *Caller {
	if c, ok := ctx.Value(callerKey{}).(*Caller); ok && c != nil {
		return c
	}
	return &Caller{}
}

func (c *Caller) userID() *int64 {
	if c.User == nil {
		return nil
	}
	id := c.User.ID
	return &id
}
