// File: router/trx.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/subprotocol"
)

// ErrBadRoute reports a route payload without a uri.
var ErrBadRoute = errors.New("route payload must be an object with a string uri")

// Trx is the transaction passed along a handler chain. URI and Body are the
// client's values; Path, Query and Params are derived from URI by the router.
type Trx struct {
	URI    string
	Body   any
	Path   string
	Query  map[string]any
	Params map[string]any

	Env  *subprotocol.Envelope
	Conn *session.Conn

	// Values is scratch space shared by the handlers of one chain.
	Values map[string]any
}

// NewTrx builds a transaction for uri with the query string parsed.
func NewTrx(uri string, body any) *Trx {
	trx := &Trx{
		URI:    uri,
		Body:   body,
		Params: map[string]any{},
		Values: map[string]any{},
	}
	trx.setURI(uri)
	return trx
}

// FromEnvelope builds a transaction from a route command payload
// {"uri": ..., "body": ...}.
func FromEnvelope(env *subprotocol.Envelope, c *session.Conn) (*Trx, error) {
	m, ok := env.Payload.(map[string]any)
	if !ok {
		return nil, ErrBadRoute
	}
	uri, ok := m["uri"].(string)
	if !ok {
		return nil, ErrBadRoute
	}
	trx := NewTrx(uri, m["body"])
	trx.Env = env
	trx.Conn = c
	return trx, nil
}

func (t *Trx) setURI(uri string) {
	path, rawQuery, _ := strings.Cut(uri, "?")
	t.Path = normalizePath(path)
	t.Query = map[string]any{}
	if rawQuery == "" {
		return
	}
	vals, err := url.ParseQuery(rawQuery)
	if err != nil {
		return
	}
	for k, vs := range vals {
		if len(vs) > 0 {
			t.Query[k] = typed(vs[0])
		}
	}
}

// Param returns a route parameter rendered as a string.
func (t *Trx) Param(name string) string {
	v, ok := t.Params[name]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func normalizePath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// typed converts a uri value to a number, bool, JSON value or string.
func typed(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null", "undefined":
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}
