// Package client implements a small GraphQL client for the paste service,
// used by the interactive training shell.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/GraphPaste/internal/certgen"
	"github.com/atinyakov/GraphPaste/internal/gql"
)

// Error is one entry of a GraphQL errors array.
type Error struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Response is a decoded GraphQL response.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors,omitempty"`
}

// Err returns the first error of the response as a Go error.
func (r *Response) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	if code, ok := r.Errors[0].Extensions["code"].(string); ok {
		return fmt.Errorf("%s (%s)", r.Errors[0].Message, code)
	}
	return fmt.Errorf("%s", r.Errors[0].Message)
}

// Client sends operations to one server. Token, when set, is sent as a
// bearer token.
type Client struct {
	BaseURL string
	Token   string

	http *http.Client
	tls  *tls.Config
}

// New creates a client for baseURL. caFile, when set, is the CA bundle
// trusted for https; otherwise the system roots are used.
func New(baseURL, caFile string) (*Client, error) {
	c := &Client{BaseURL: strings.TrimRight(baseURL, "/")}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if caFile != "" {
		pool, err := certgen.LoadCertPool(caFile)
		if err != nil {
			return nil, err
		}
		c.tls = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		transport.TLSClientConfig = c.tls
	}
	c.http = &http.Client{Transport: transport, Timeout: 10 * time.Second}
	return c, nil
}

// Do executes one query or mutation.
func (c *Client) Do(ctx context.Context, req gql.Request) (*Response, error) {
	var out Response
	if err := c.post(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DoBatch sends several operations in one request.
func (c *Client) DoBatch(ctx context.Context, reqs []gql.Request) ([]Response, error) {
	var out []Response
	if err := c.post(ctx, reqs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/graphql", bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Authenticate runs the lockout-protected login and keeps the session token.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	resp, err := c.Do(ctx, gql.Request{
		Query: `mutation Authenticate($u: String!, $p: String!) {
			authenticate(username: $u, password: $p) { sessionToken }
		}`,
		Variables: map[string]interface{}{"u": username, "p": password},
	})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	var data struct {
		Authenticate struct {
			SessionToken string `json:"sessionToken"`
		} `json:"authenticate"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	c.Token = data.Authenticate.SessionToken
	return nil
}
