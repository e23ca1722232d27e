package gql

import (
	"context"
	"errors"
	"time"

	"github.com/atinyakov/GraphPaste/internal/metrics"
	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/atinyakov/GraphPaste/internal/service"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"go.uber.org/zap"
)

// ErrSubscriptionTransport is returned for subscriptions sent to Execute.
var ErrSubscriptionTransport = errors.New("subscriptions are served over the websocket endpoint")

// Request is one GraphQL operation as sent by clients.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// Executor runs operations against the schema. Each operation is admitted
// separately, so a batch counts once per entry.
type Executor struct {
	schema   graphql.Schema
	resolver Resolver
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewExecutor builds the schema over r. m may be nil.
func NewExecutor(r Resolver, log *zap.Logger, m *metrics.Metrics) (*Executor, error) {
	schema, err := NewSchema(r)
	if err != nil {
		return nil, err
	}
	return &Executor{schema: schema, resolver: r, log: log, metrics: m}, nil
}

// operation returns the kind and name of the operation req selects. Kind is
// empty when the document does not parse; execution reports that error.
func operation(req Request) (kind, name string) {
	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return "", req.OperationName
	}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		opName := ""
		if op.Name != nil {
			opName = op.Name.Value
		}
		if req.OperationName != "" && opName != req.OperationName {
			continue
		}
		return op.Operation, opName
	}
	return "", req.OperationName
}

// begin annotates a per-operation copy of the caller in ctx and admits it.
func (e *Executor) begin(ctx context.Context, req Request) (context.Context, string, error) {
	kind, name := operation(req)
	caller := *service.CallerFrom(ctx)
	caller.Operation = name
	caller.OperationType = kind
	ctx = service.WithCaller(ctx, &caller)

	if err := e.resolver.Admit(ctx); err != nil {
		return ctx, kind, err
	}
	return ctx, kind, nil
}

func errorResult(err error) *graphql.Result {
	return &graphql.Result{
		Errors: []gqlerrors.FormattedError{
			gqlerrors.FormatError(gqlerrors.NewError(err.Error(), nil, "", nil, nil, resolveError{err})),
		},
	}
}

// Execute runs a query or mutation.
func (e *Executor) Execute(ctx context.Context, req Request) *graphql.Result {
	start := time.Now()
	ctx, kind, err := e.begin(ctx, req)
	if err == nil && kind == models.OperationSubscription {
		err = ErrSubscriptionTransport
	}

	var res *graphql.Result
	if err != nil {
		res = errorResult(err)
	} else {
		res = graphql.Do(graphql.Params{
			Schema:         e.schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        ctx,
		})
	}

	e.observe(ctx, kind, res, time.Since(start))
	return res
}

// ExecuteBatch runs the operations in order and returns one result each.
func (e *Executor) ExecuteBatch(ctx context.Context, reqs []Request) []*graphql.Result {
	results := make([]*graphql.Result, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, e.Execute(ctx, req))
	}
	return results
}

type pasteEventsKey struct{}

// pasteEvents returns the listener registered by Executor.Subscribe, if any.
func pasteEvents(ctx context.Context) (<-chan models.Paste, bool) {
	events, ok := ctx.Value(pasteEventsKey{}).(<-chan models.Paste)
	return events, ok
}

// Subscribe starts a subscription. The event listener is registered before
// Subscribe returns, so every paste created afterwards is delivered. The
// returned channel yields one result per event and is closed once ctx is
// done or the operation fails; the caller must drain it.
func (e *Executor) Subscribe(ctx context.Context, req Request) (<-chan *graphql.Result, error) {
	ctx, kind, err := e.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	if kind != models.OperationSubscription {
		return nil, errors.New("operation is not a subscription")
	}
	e.log.Debug("subscription started",
		zap.String("operation", service.CallerFrom(ctx).Operation),
		zap.String("ip", service.CallerFrom(ctx).IPAddress),
	)
	e.metrics.ObserveOperation(kind, false, 0)

	ctx, cancel := context.WithCancel(ctx)
	ctx = context.WithValue(ctx, pasteEventsKey{}, e.resolver.SubscribePasteCreated(ctx))

	in := graphql.Subscribe(graphql.Params{
		Schema:         e.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})

	// Releases the listener when execution ends early, e.g. on a
	// validation error.
	out := make(chan *graphql.Result)
	go func() {
		defer cancel()
		defer close(out)
		for res := range in {
			out <- res
		}
	}()
	return out, nil
}

func (e *Executor) observe(ctx context.Context, kind string, res *graphql.Result, elapsed time.Duration) {
	if kind == "" {
		kind = "invalid"
	}
	failed := res.HasErrors()
	e.metrics.ObserveOperation(kind, failed, elapsed)

	caller := service.CallerFrom(ctx)
	fields := []zap.Field{
		zap.String("type", kind),
		zap.String("operation", caller.Operation),
		zap.String("ip", caller.IPAddress),
		zap.Duration("duration", elapsed),
	}
	if failed {
		fields = append(fields, zap.String("error", res.Errors[0].Message))
		e.log.Info("operation failed", fields...)
		return
	}
	e.log.Debug("operation executed", fields...)
}
