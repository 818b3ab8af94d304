// File: router/router.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Exe when no route matches and no not-found
// chain is defined.
var ErrNotFound = errors.New("route not found")

// ErrRedirectLoop is returned when redirects do not settle.
var ErrRedirectLoop = errors.New("too many route redirects")

const maxRedirects = 10

// Handler is one step of a chain. A non-nil error stops the chain.
type Handler func(ctx context.Context, trx *Trx) error

type route struct {
	pattern    string
	re         *regexp.Regexp
	paramNames []string
	handlers   []Handler
	redirectTo string
}

// Router holds routes in definition order.
type Router struct {
	mu       sync.RWMutex
	routes   []*route
	notFound []Handler
	always   []Handler
	log      zerolog.Logger
}

// New returns an empty router logging to log.
func New(log zerolog.Logger) *Router {
	return &Router{log: log.With().Str("component", "router").Logger()}
}

// Def defines a route. Patterns containing ":name" segments capture those
// segments into Trx.Params; other patterns are regular expressions matched
// against the whole path. Matching is case-insensitive and ignores leading
// and trailing slashes.
func (r *Router) Def(pattern string, handlers ...Handler) *Router {
	rt, err := compile(pattern)
	if err != nil {
		r.log.Error().Err(err).Str("pattern", pattern).Msg("route not defined")
		return r
	}
	rt.handlers = handlers
	r.add(rt)
	return r
}

// Redirect rewrites uris matching from to the route to before matching again.
func (r *Router) Redirect(from, to string) *Router {
	rt, err := compile(from)
	if err != nil {
		r.log.Error().Err(err).Str("pattern", from).Msg("redirect not defined")
		return r
	}
	rt.redirectTo = to
	r.add(rt)
	return r
}

// NotFound sets the chain executed when nothing matches.
func (r *Router) NotFound(handlers ...Handler) *Router {
	r.mu.Lock()
	r.notFound = append([]Handler(nil), handlers...)
	r.mu.Unlock()
	return r
}

// Do appends handlers executed for every transaction after the matched chain.
func (r *Router) Do(handlers ...Handler) *Router {
	r.mu.Lock()
	r.always = append(r.always, handlers...)
	r.mu.Unlock()
	return r
}

func (r *Router) add(rt *route) {
	r.mu.Lock()
	r.routes = append(r.routes, rt)
	r.mu.Unlock()
}

// Exe runs the first matching route's chain, or the not-found chain, and
// then the Do chain. The first handler error ends execution.
func (r *Router) Exe(ctx context.Context, trx *Trx) (*Trx, error) {
	r.mu.RLock()
	routes := r.routes
	notFound := r.notFound
	always := r.always
	r.mu.RUnlock()

	chain, err := r.resolve(routes, trx)
	switch {
	case errors.Is(err, ErrNotFound) && len(notFound) > 0:
		chain = notFound
	case err != nil:
		r.log.Debug().Err(err).Str("uri", trx.URI).Msg("route unresolved")
		return trx, err
	}

	if err := run(ctx, chain, trx); err != nil {
		return trx, err
	}
	if err := run(ctx, always, trx); err != nil {
		return trx, err
	}
	return trx, nil
}

func (r *Router) resolve(routes []*route, trx *Trx) ([]Handler, error) {
	for hops := 0; hops <= maxRedirects; hops++ {
		rt, params := match(routes, trx.Path)
		if rt == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, trx.URI)
		}
		if rt.redirectTo == "" {
			trx.Params = params
			r.log.Debug().Str("uri", trx.URI).Str("pattern", rt.pattern).Msg("route matched")
			return rt.handlers, nil
		}
		r.log.Debug().Str("from", trx.URI).Str("to", rt.redirectTo).Msg("route redirected")
		trx.URI = rt.redirectTo
		trx.setURI(rt.redirectTo)
	}
	return nil, ErrRedirectLoop
}

func run(ctx context.Context, chain []Handler, trx *Trx) error {
	for _, h := range chain {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h(ctx, trx); err != nil {
			return err
		}
	}
	return nil
}

func match(routes []*route, path string) (*route, map[string]any) {
	for _, rt := range routes {
		m := rt.re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		params := make(map[string]any, len(rt.paramNames))
		for i, name := range rt.paramNames {
			v := m[i+1]
			if u, err := url.PathUnescape(v); err == nil {
				v = u
			}
			params[name] = typed(v)
		}
		return rt, params
	}
	return nil, nil
}

// compile turns a route pattern into an anchored case-insensitive regexp.
func compile(pattern string) (*route, error) {
	p := normalizePath(pattern)
	parts := strings.Split(p, "/")
	var names []string
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			names = append(names, strings.TrimPrefix(part, ":"))
			parts[i] = `([^/]+)`
			continue
		}
		parts[i] = nonCapturing(part)
	}
	re, err := regexp.Compile("(?i)^" + strings.Join(parts, "/") + "$")
	if err != nil {
		return nil, err
	}
	return &route{pattern: pattern, re: re, paramNames: names}, nil
}

// nonCapturing rewrites "(" groups in a static segment so they do not shift
// parameter indexes.
func nonCapturing(part string) string {
	var sb strings.Builder
	for i := 0; i < len(part); i++ {
		ch := part[i]
		if ch == '\\' && i+1 < len(part) {
			sb.WriteByte(ch)
			sb.WriteByte(part[i+1])
			i++
			continue
		}
		sb.WriteByte(ch)
		if ch == '(' && (i+1 >= len(part) || part[i+1] != '?') {
			sb.WriteString("?:")
		}
	}
	return sb.String()
}
