// File: router/router_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rws/subprotocol"
)

func record(name string, seen *[]string) Handler {
	return func(ctx context.Context, trx *Trx) error {
		*seen = append(*seen, name)
		return nil
	}
}

func TestExactAndRegexRoutes(t *testing.T) {
	var seen []string
	r := New(zerolog.Nop())
	r.Def("/", record("root-a", &seen), record("root-b", &seen))
	r.Def("/shop/list", record("list", &seen))
	r.Def("/shop/get.+/[0-9]+", record("regex", &seen))

	_, err := r.Exe(context.Background(), NewTrx("/", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"root-a", "root-b"}, seen)

	seen = nil
	_, err = r.Exe(context.Background(), NewTrx("/shop/list/", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, seen)

	seen = nil
	_, err = r.Exe(context.Background(), NewTrx("/shop/getnames/12345", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"regex"}, seen)
}

func TestParamRoutes(t *testing.T) {
	r := New(zerolog.Nop())
	var got *Trx
	capture := func(ctx context.Context, trx *Trx) error { got = trx; return nil }
	r.Def("/shop/register/:name/:year/:employed", capture)
	r.Def("/shop/shop(s)?/w{3}/:name/:year", capture)
	r.Def("/SHOP/shop\\d+/:myJSON", capture)

	_, err := r.Exe(context.Background(), NewTrx("/shop/register/john/23/true?x=123&y=abc&z=false", nil))
	require.NoError(t, err)
	assert.Equal(t, "john", got.Params["name"])
	assert.Equal(t, int64(23), got.Params["year"])
	assert.Equal(t, true, got.Params["employed"])
	assert.Equal(t, int64(123), got.Query["x"])
	assert.Equal(t, "abc", got.Query["y"])
	assert.Equal(t, false, got.Query["z"])

	_, err = r.Exe(context.Background(), NewTrx("/shop/shops/www/CloudShop/1971", nil))
	require.NoError(t, err)
	assert.Equal(t, "CloudShop", got.Params["name"])
	assert.Equal(t, "1971", got.Param("year"))

	_, err = r.Exe(context.Background(), NewTrx(`/shop/shop567/{"a": 22}`, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(22)}, got.Params["myJSON"])
}

func TestFirstMatchWins(t *testing.T) {
	var seen []string
	r := New(zerolog.Nop())
	r.Def("/users/:id", record("param", &seen))
	r.Def("/users/.+", record("regex", &seen))

	_, err := r.Exe(context.Background(), NewTrx("/users/7", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"param"}, seen)
}

func TestRedirectNotFoundAndDo(t *testing.T) {
	var seen []string
	r := New(zerolog.Nop())
	r.Def("/", record("root", &seen))
	r.Redirect("/someurl", "/")
	r.Def("/shop/notfound", record("shop-notfound", &seen)).Redirect("/shop/.+", "/shop/notfound")
	r.Do(record("always", &seen))

	_, err := r.Exe(context.Background(), NewTrx("/someurl", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "always"}, seen)

	seen = nil
	trx, err := r.Exe(context.Background(), NewTrx("/shop/badurl", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"shop-notfound", "always"}, seen)
	assert.Equal(t, "/shop/notfound", trx.URI)

	seen = nil
	_, err = r.Exe(context.Background(), NewTrx("/badurl", nil))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, seen)

	r.NotFound(record("404", &seen))
	_, err = r.Exe(context.Background(), NewTrx("/badurl", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"404", "always"}, seen)
}

func TestRedirectLoop(t *testing.T) {
	r := New(zerolog.Nop())
	r.Redirect("/a", "/b").Redirect("/b", "/a")
	_, err := r.Exe(context.Background(), NewTrx("/a", nil))
	assert.ErrorIs(t, err, ErrRedirectLoop)
}

func TestHandlerErrorStopsChain(t *testing.T) {
	var seen []string
	boom := errors.New("boom")
	r := New(zerolog.Nop())
	r.Def("/x",
		record("first", &seen),
		func(context.Context, *Trx) error { return boom },
		record("never", &seen))
	r.Do(record("always", &seen))

	_, err := r.Exe(context.Background(), NewTrx("/x", nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, seen)
}

func TestCanceledContext(t *testing.T) {
	r := New(zerolog.Nop())
	r.Def("/x", func(context.Context, *Trx) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Exe(ctx, NewTrx("/x", nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromEnvelope(t *testing.T) {
	env := &subprotocol.Envelope{
		ID:      1,
		From:    42,
		Cmd:     subprotocol.CmdRoute,
		Payload: map[string]any{"uri": "shop/login?username=peter", "body": map[string]any{"a": 1}},
	}
	trx, err := FromEnvelope(env, nil)
	require.NoError(t, err)
	assert.Equal(t, "shop/login", trx.Path)
	assert.Equal(t, "peter", trx.Query["username"])
	assert.Equal(t, map[string]any{"a": 1}, trx.Body)
	assert.Same(t, env, trx.Env)

	_, err = FromEnvelope(&subprotocol.Envelope{Payload: "shop/login"}, nil)
	assert.ErrorIs(t, err, ErrBadRoute)
	_, err = FromEnvelope(&subprotocol.Envelope{Payload: map[string]any{"body": 1}}, nil)
	assert.ErrorIs(t, err, ErrBadRoute)
}
