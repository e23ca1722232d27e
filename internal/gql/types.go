package gql

import (
	"time"

	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/graphql-go/graphql"
)

// field builds a resolver reading from a T or *T source.
func field[T any](fn func(*T) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch src := p.Source.(type) {
		case *T:
			if src == nil {
				return nil, nil
			}
			return fn(src), nil
		case T:
			return fn(&src), nil
		}
		return nil, nil
	}
}

func optInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func (b *builder) userType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":       {Type: graphql.ID, Resolve: field(func(u *models.User) interface{} { return u.ID })},
			"username": {Type: graphql.String, Resolve: field(func(u *models.User) interface{} { return u.Username })},
			"email":    {Type: graphql.String, Resolve: field(func(u *models.User) interface{} { return u.Email })},
			"isAdmin":  {Type: graphql.Boolean, Resolve: field(func(u *models.User) interface{} { return u.IsAdmin })},
			"createdAt": {Type: graphql.DateTime, Resolve: field(func(u *models.User) interface{} {
				return u.CreatedAt
			})},
			"lastLogin": {Type: graphql.DateTime, Resolve: field(func(u *models.User) interface{} {
				return optTime(u.LastLogin)
			})},
			"failedLoginAttempts": {Type: graphql.Int, Resolve: field(func(u *models.User) interface{} {
				return u.FailedLoginAttempts
			})},
			"lockedUntil": {Type: graphql.DateTime, Resolve: field(func(u *models.User) interface{} {
				return optTime(u.LockedUntil)
			})},
			"resetToken": {Type: graphql.String, Resolve: field(func(u *models.User) interface{} {
				return optString(u.ResetToken)
			})},
			"resetTokenExpires": {Type: graphql.DateTime, Resolve: field(func(u *models.User) interface{} {
				return optTime(u.ResetTokenExpires)
			})},
			"lastRequest": {Type: graphql.DateTime, Resolve: field(func(u *models.User) interface{} {
				return optTime(u.LastRequest)
			})},
			"requestCount": {Type: graphql.Int, Resolve: field(func(u *models.User) interface{} {
				return u.RequestCount
			})},
		},
	})
}

func (b *builder) pasteVersionType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "PasteVersion",
		Fields: graphql.Fields{
			"id":      {Type: graphql.ID, Resolve: field(func(v *models.PasteVersion) interface{} { return v.ID })},
			"pasteId": {Type: graphql.Int, Resolve: field(func(v *models.PasteVersion) interface{} { return v.PasteID })},
			"content": {Type: graphql.String, Resolve: field(func(v *models.PasteVersion) interface{} { return v.Content })},
			"version": {Type: graphql.Int, Resolve: field(func(v *models.PasteVersion) interface{} { return v.Version })},
			"createdAt": {Type: graphql.DateTime, Resolve: field(func(v *models.PasteVersion) interface{} {
				return v.CreatedAt
			})},
		},
	})
}

// pasteType exposes every stored column, including the creator's address.
func (b *builder) pasteType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Paste",
		Fields: graphql.Fields{
			"id":      {Type: graphql.ID, Resolve: field(func(p *models.Paste) interface{} { return p.ID })},
			"title":   {Type: graphql.String, Resolve: field(func(p *models.Paste) interface{} { return p.Title })},
			"content": {Type: graphql.String, Resolve: field(func(p *models.Paste) interface{} { return p.Content })},
			"public":  {Type: graphql.Boolean, Resolve: field(func(p *models.Paste) interface{} { return p.Public })},
			"burn":    {Type: graphql.Boolean, Resolve: field(func(p *models.Paste) interface{} { return p.Burn })},
			"createdAt": {Type: graphql.DateTime, Resolve: field(func(p *models.Paste) interface{} {
				return p.CreatedAt
			})},
			"expiresAt": {Type: graphql.DateTime, Resolve: field(func(p *models.Paste) interface{} {
				return optTime(p.ExpiresAt)
			})},
			"language": {Type: graphql.String, Resolve: field(func(p *models.Paste) interface{} { return p.Language })},
			"size":     {Type: graphql.Int, Resolve: field(func(p *models.Paste) interface{} { return p.Size })},
			"version":  {Type: graphql.Int, Resolve: field(func(p *models.Paste) interface{} { return p.Version })},
			"metadata": {Type: JSON, Resolve: field(func(p *models.Paste) interface{} { return p.Metadata })},
			"ownerId":  {Type: graphql.Int, Resolve: field(func(p *models.Paste) interface{} { return optInt64(p.OwnerID) })},
			"userId":   {Type: graphql.Int, Resolve: field(func(p *models.Paste) interface{} { return optInt64(p.UserID) })},
			"ipAddr":   {Type: graphql.String, Resolve: field(func(p *models.Paste) interface{} { return p.IPAddress })},
			"userAgent": {Type: graphql.String, Resolve: field(func(p *models.Paste) interface{} {
				return p.UserAgent
			})},
			"owner": {
				Type: b.user,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					paste := pasteSource(p.Source)
					if paste == nil || paste.OwnerID == nil {
						return nil, nil
					}
					return wrap(b.r.User(p.Context, *paste.OwnerID))
				},
			},
			"versions": {
				Type: graphql.NewList(b.pasteVersion),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					paste := pasteSource(p.Source)
					if paste == nil {
						return nil, nil
					}
					return wrap(b.r.PasteVersions(p.Context, paste.ID))
				},
			},
		},
	})
}

func pasteSource(src interface{}) *models.Paste {
	switch p := src.(type) {
	case *models.Paste:
		return p
	case models.Paste:
		return &p
	}
	return nil
}

func (b *builder) auditType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Audit",
		Fields: graphql.Fields{
			"id":      {Type: graphql.ID, Resolve: field(func(a *models.Audit) interface{} { return a.ID })},
			"pasteId": {Type: graphql.Int, Resolve: field(func(a *models.Audit) interface{} { return optInt64(a.PasteID) })},
			"userId":  {Type: graphql.Int, Resolve: field(func(a *models.Audit) interface{} { return optInt64(a.UserID) })},
			"action":  {Type: graphql.String, Resolve: field(func(a *models.Audit) interface{} { return a.Action })},
			"timestamp": {Type: graphql.DateTime, Resolve: field(func(a *models.Audit) interface{} {
				return a.Timestamp
			})},
			"ipAddress": {Type: graphql.String, Resolve: field(func(a *models.Audit) interface{} { return a.IPAddress })},
			"userAgent": {Type: graphql.String, Resolve: field(func(a *models.Audit) interface{} { return a.UserAgent })},
			"requestHeaders": {Type: JSON, Resolve: field(func(a *models.Audit) interface{} {
				return a.RequestHeaders
			})},
			"graphqlOperation": {Type: graphql.String, Resolve: field(func(a *models.Audit) interface{} {
				return a.Operation
			})},
			"operationType": {Type: graphql.String, Resolve: field(func(a *models.Audit) interface{} {
				return a.OperationType
			})},
			"securityLevel": {Type: graphql.String, Resolve: field(func(a *models.Audit) interface{} {
				return a.SecurityLevel
			})},
		},
	})
}

func (b *builder) serverModeType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "ServerMode",
		Fields: graphql.Fields{
			"id":   {Type: graphql.ID, Resolve: field(func(m *models.ServerMode) interface{} { return m.ID })},
			"mode": {Type: graphql.String, Resolve: field(func(m *models.ServerMode) interface{} { return m.Mode })},
			"updatedAt": {Type: graphql.DateTime, Resolve: field(func(m *models.ServerMode) interface{} {
				return m.UpdatedAt
			})},
			"rateLimit": {Type: graphql.Int, Resolve: field(func(m *models.ServerMode) interface{} { return m.RateLimit })},
			"maxPasteSize": {Type: graphql.Int, Resolve: field(func(m *models.ServerMode) interface{} {
				return m.MaxPasteSize
			})},
			"maxFileSize": {Type: graphql.Int, Resolve: field(func(m *models.ServerMode) interface{} {
				return m.MaxFileSize
			})},
			"allowedFileTypes": {Type: graphql.String, Resolve: field(func(m *models.ServerMode) interface{} {
				return m.AllowedFileTypes
			})},
			"logLevel": {Type: graphql.String, Resolve: field(func(m *models.ServerMode) interface{} { return m.LogLevel })},
			"securityConfig": {Type: JSON, Resolve: field(func(m *models.ServerMode) interface{} {
				return m.SecurityConfig
			})},
		},
	})
}
