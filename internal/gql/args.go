package gql

import (
	"time"

	apperr "github.com/atinyakov/GraphPaste/internal/errors"
	"github.com/atinyakov/GraphPaste/internal/service"
)

// Argument decoding. Values arrive already coerced by the schema, so only
// presence and the JSON shapes need checking.

func intArg(args map[string]interface{}, name string) (int, bool) {
	v, ok := args[name].(int)
	return v, ok
}

func stringArg(args map[string]interface{}, name string) (string, bool) {
	v, ok := args[name].(string)
	return v, ok
}

func boolArg(args map[string]interface{}, name string) bool {
	v, _ := args[name].(bool)
	return v
}

func createUserInput(args map[string]interface{}) service.CreateUserInput {
	data, _ := args["userData"].(map[string]interface{})
	username, _ := stringArg(data, "username")
	email, _ := stringArg(data, "email")
	password, _ := stringArg(data, "password")
	return service.CreateUserInput{Username: username, Email: email, Password: password}
}

func createPasteInput(args map[string]interface{}) (service.CreatePasteInput, error) {
	title, _ := stringArg(args, "title")
	content, _ := stringArg(args, "content")
	language, _ := stringArg(args, "language")
	in := service.CreatePasteInput{
		Title:    title,
		Content:  content,
		Public:   boolArg(args, "public"),
		Burn:     boolArg(args, "burn"),
		Language: language,
	}

	if raw, ok := args["metadata"]; ok && raw != nil {
		meta, ok := raw.(map[string]interface{})
		if !ok {
			return in, apperr.Invalid("metadata must be a JSON object")
		}
		in.Metadata = meta
	}
	if secs, ok := intArg(args, "expiresIn"); ok {
		if secs < 0 {
			return in, apperr.Invalid("expiresIn must not be negative")
		}
		in.ExpiresIn = time.Duration(secs) * time.Second
	}
	return in, nil
}

func updatePasteInput(args map[string]interface{}) service.UpdatePasteInput {
	id, _ := intArg(args, "id")
	in := service.UpdatePasteInput{ID: int64(id)}
	if title, ok := stringArg(args, "title"); ok {
		in.Title = &title
	}
	if content, ok := stringArg(args, "content"); ok {
		in.Content = &content
	}
	return in
}

func loginInput(args map[string]interface{}) service.LoginInput {
	username, _ := stringArg(args, "username")
	password, _ := stringArg(args, "password")
	return service.LoginInput{Username: username, Password: password}
}

func pastesFilter(args map[string]interface{}) service.PastesFilter {
	var f service.PastesFilter
	if public, ok := args["public"].(bool); ok {
		f.Public = &public
	}
	if limit, ok := intArg(args, "limit"); ok && limit > 0 {
		f.Limit = limit
	}
	return f
}

func pasteLookup(args map[string]interface{}) service.PasteLookup {
	var l service.PasteLookup
	if id, ok := intArg(args, "id"); ok {
		l.ID = int64(id)
	}
	l.Title, _ = stringArg(args, "title")
	return l
}
