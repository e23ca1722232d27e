// Package http provides the HTTP and WebSocket transport of the GraphQL
// service.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/atinyakov/GraphPaste/internal/gql"
	"github.com/graphql-go/graphql"
)

// Executor defines the GraphQL operations required by the handlers.
type Executor interface {
	// Execute runs one query or mutation.
	Execute(ctx context.Context, req gql.Request) *graphql.Result
	// ExecuteBatch runs several operations in order.
	ExecuteBatch(ctx context.Context, reqs []gql.Request) []*graphql.Result
	// Subscribe starts a subscription whose results stream until ctx is done.
	Subscribe(ctx context.Context, req gql.Request) (<-chan *graphql.Result, error)
}

// GraphQLHandler serves GraphQL over plain HTTP.
type GraphQLHandler struct {
	Executor Executor
}

// Post handles POST /graphql. The body is a JSON request object, a JSON
// array of request objects (executed as a batch), or with Content-Type
// application/graphql the bare query document.
func (h *GraphQLHandler) Post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/graphql" {
		writeJSON(w, h.Executor.Execute(r.Context(), gql.Request{Query: string(body)}))
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []gql.Request
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		writeJSON(w, h.Executor.ExecuteBatch(r.Context(), reqs))
		return
	}

	var req gql.Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "missing query", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.Executor.Execute(r.Context(), req))
}

// Get handles GET /graphql?query=...&operationName=...&variables=....
// Mutations are executed too.
func (h *GraphQLHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := gql.Request{
		Query:         q.Get("query"),
		OperationName: q.Get("operationName"),
	}
	if req.Query == "" {
		http.Error(w, "missing query", http.StatusBadRequest)
		return
	}
	if vars := q.Get("variables"); vars != "" {
		if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
			http.Error(w, "invalid variables", http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, h.Executor.Execute(r.Context(), req))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
