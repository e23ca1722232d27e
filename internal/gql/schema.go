// Package gql binds the paste service to a GraphQL schema and executes
// operations against it.
package gql

import (
	"context"
	"errors"

	apperr "github.com/atinyakov/GraphPaste/internal/errors"
	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/atinyakov/GraphPaste/internal/service"
	"github.com/graphql-go/graphql"
)

// Resolver is the set of operations the schema dispatches to.
type Resolver interface {
	Admit(ctx context.Context) error

	Users(ctx context.Context) ([]models.User, error)
	User(ctx context.Context, id int64) (*models.User, error)
	Me(ctx context.Context) (*models.User, error)
	Pastes(ctx context.Context, f service.PastesFilter) ([]models.Paste, error)
	Paste(ctx context.Context, l service.PasteLookup) (*models.Paste, error)
	PasteVersions(ctx context.Context, pasteID int64) ([]models.PasteVersion, error)
	Audits(ctx context.Context, limit int) ([]models.Audit, error)
	ServerMode(ctx context.Context) (*models.ServerMode, error)

	CreateUser(ctx context.Context, in service.CreateUserInput) (*models.User, error)
	CreatePaste(ctx context.Context, in service.CreatePasteInput) (*models.Paste, error)
	UpdatePaste(ctx context.Context, in service.UpdatePasteInput) (*models.Paste, error)
	DeletePaste(ctx context.Context, id int64) (bool, error)
	Login(ctx context.Context, in service.LoginInput) (service.TokenPair, error)
	Authenticate(ctx context.Context, in service.LoginInput) (*service.AuthResult, error)
	Logout(ctx context.Context) (bool, error)
	SetDifficulty(ctx context.Context, mode string) (*models.ServerMode, error)

	SubscribePasteCreated(ctx context.Context) <-chan models.Paste
}

// resolveError exposes the code of a typed service error in the GraphQL
// error extensions, also when the typed error is wrapped.
type resolveError struct{ err error }

func (e resolveError) Error() string { return e.err.Error() }

func (e resolveError) Unwrap() error { return e.err }

func (e resolveError) Extensions() map[string]interface{} {
	var typed *apperr.Error
	if errors.As(e.err, &typed) {
		return typed.Extensions()
	}
	return nil
}

func wrap[T any](v T, err error) (interface{}, error) {
	if err != nil {
		return nil, resolveError{err}
	}
	return v, nil
}

type builder struct {
	r Resolver

	user         *graphql.Object
	paste        *graphql.Object
	pasteVersion *graphql.Object
	audit        *graphql.Object
	serverMode   *graphql.Object
}

// NewSchema builds the schema over r.
func NewSchema(r Resolver) (graphql.Schema, error) {
	b := &builder{r: r}
	b.user = b.userType()
	b.pasteVersion = b.pasteVersionType()
	b.paste = b.pasteType()
	b.audit = b.auditType()
	b.serverMode = b.serverModeType()

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:        b.query(),
		Mutation:     b.mutation(),
		Subscription: b.subscription(),
	})
}

func (b *builder) query() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"users": {
				Type: graphql.NewList(b.user),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return wrap(b.r.Users(p.Context))
				},
			},
			"user": {
				Type: b.user,
				Args: graphql.FieldConfigArgument{
					"id": {Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, ok := intArg(p.Args, "id")
					if !ok {
						return nil, nil
					}
					return wrap(b.r.User(p.Context, int64(id)))
				},
			},
			"me": {
				Type: b.user,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return wrap(b.r.Me(p.Context))
				},
			},
			"pastes": {
				Type: graphql.NewList(b.paste),
				Args: graphql.FieldConfigArgument{
					"public": {Type: graphql.Boolean},
					"limit":  {Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return wrap(b.r.Pastes(p.Context, pastesFilter(p.Args)))
				},
			},
			"paste": {
				Type: b.paste,
				Args: graphql.FieldConfigArgument{
					"id":    {Type: graphql.Int},
					"title": {Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return wrap(b.r.Paste(p.Context, pasteLookup(p.Args)))
				},
			},
			"audits": {
				Type: graphql.NewList(b.audit),
				Args: graphql.FieldConfigArgument{
					"limit": {Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit, _ := intArg(p.Args, "limit")
					return wrap(b.r.Audits(p.Context, limit))
				},
			},
			"serverMode": {
				Type: b.serverMode,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return wrap(b.r.ServerMode(p.Context))
				},
			},
		},
	})
}

func (b *builder) mutation() *graphql.Object {
	userInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "UserInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"username": {Type: graphql.NewNonNull(graphql.String)},
			"email":    {Type: graphql.NewNonNull(graphql.String)},
			"password": {Type: graphql.NewNonNull(graphql.String)},
		},
	})
	payload := func(name, key string, t graphql.Output) *graphql.Object {
		return graphql.NewObject(graphql.ObjectConfig{
			Name:   name,
			Fields: graphql.Fields{key: {Type: t}},
		})
	}
	login := graphql.NewObject(graphql.ObjectConfig{
		Name: "Login",
		Fields: graphql.Fields{
			"accessToken":  {Type: graphql.String},
			"refreshToken": {Type: graphql.String},
		},
	})
	authenticate := graphql.NewObject(graphql.ObjectConfig{
		Name: "Authenticate",
		Fields: graphql.Fields{
			"sessionToken": {Type: graphql.String},
			"expiresAt":    {Type: graphql.DateTime},
			"accessToken":  {Type: graphql.String},
			"refreshToken": {Type: graphql.String},
		},
	})

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createUser": {
				Type: payload("CreateUser", "user", b.user),
				Args: graphql.FieldConfigArgument{
					"userData": {Type: graphql.NewNonNull(userInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					user, err := b.r.CreateUser(p.Context, createUserInput(p.Args))
					if err != nil {
						return nil, resolveError{err}
					}
					return map[string]interface{}{"user": user}, nil
				},
			},
			"createPaste": {
				Type: payload("CreatePaste", "paste", b.paste),
				Args: graphql.FieldConfigArgument{
					"title":     {Type: graphql.NewNonNull(graphql.String)},
					"content":   {Type: graphql.NewNonNull(graphql.String)},
					"public":    {Type: graphql.Boolean, DefaultValue: false},
					"burn":      {Type: graphql.Boolean, DefaultValue: false},
					"language":  {Type: graphql.String},
					"metadata":  {Type: JSON},
					"expiresIn": {Type: graphql.Int, Description: "Lifetime in seconds"},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					in, err := createPasteInput(p.Args)
					if err != nil {
						return nil, resolveError{err}
					}
					paste, err := b.r.CreatePaste(p.Context, in)
					if err != nil {
						return nil, resolveError{err}
					}
					return map[string]interface{}{"paste": paste}, nil
				},
			},
			"updatePaste": {
				Type: payload("UpdatePaste", "paste", b.paste),
				Args: graphql.FieldConfigArgument{
					"id":      {Type: graphql.NewNonNull(graphql.Int)},
					"title":   {Type: graphql.String},
					"content": {Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					paste, err := b.r.UpdatePaste(p.Context, updatePasteInput(p.Args))
					if err != nil {
						return nil, resolveError{err}
					}
					return map[string]interface{}{"paste": paste}, nil
				},
			},
			"deletePaste": {
				Type: payload("DeletePaste", "result", graphql.Boolean),
				Args: graphql.FieldConfigArgument{
					"id": {Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := intArg(p.Args, "id")
					ok, err := b.r.DeletePaste(p.Context, int64(id))
					if err != nil {
						return nil, resolveError{err}
					}
					return map[string]interface{}{"result": ok}, nil
				},
			},
			"login": {
				Type: login,
				Args: graphql.FieldConfigArgument{
					"username": {Type: graphql.String},
					"password": {Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pair, err := b.r.Login(p.Context, loginInput(p.Args))
					if err != nil {
						return nil, resolveError{err}
					}
					return map[string]interface{}{
						"accessToken":  pair.AccessToken,
						"refreshToken": pair.RefreshToken,
					}, nil
				},
			},
			"authenticate": {
				Type: authenticate,
				Args: graphql.FieldConfigArgument{
					"username": {Type: graphql.NewNonNull(graphql.String)},
					"password": {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res, err := b.r.Authenticate(p.Context, loginInput(p.Args))
					if err != nil {
						return nil, resolveError{err}
					}
					return map[string]interface{}{
						"sessionToken": res.Session.Token,
						"expiresAt":    res.Session.ExpiresAt,
						"accessToken":  res.AccessToken,
						"refreshToken": res.RefreshToken,
					}, nil
				},
			},
			"logout": {
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return wrap(b.r.Logout(p.Context))
				},
			},
			"setDifficulty": {
				Type: b.serverMode,
				Args: graphql.FieldConfigArgument{
					"mode": {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					mode, _ := p.Args["mode"].(string)
					return wrap(b.r.SetDifficulty(p.Context, mode))
				},
			},
		},
	})
}

// subscription streams created pastes. Subscribe bridges the service channel
// into the channel type the executor consumes and Resolve returns each event.
func (b *builder) subscription() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Subscription",
		Fields: graphql.Fields{
			"pasteCreated": {
				Type: b.paste,
				Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
					ctx := p.Context
					events, ok := pasteEvents(ctx)
					if !ok {
						events = b.r.SubscribePasteCreated(ctx)
					}
					out := make(chan interface{})
					go func() {
						defer close(out)
						for paste := range events {
							select {
							case out <- paste:
							case <-ctx.Done():
								return
							}
						}
					}()
					return out, nil
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source, nil
				},
			},
		},
	})
}
