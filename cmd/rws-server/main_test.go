// File: cmd/rws-server/main_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rws/router"
	"github.com/momentics/hioload-rws/server"
)

func TestStateHandler(t *testing.T) {
	srv, err := server.New(nil, server.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	stateHandler(srv)(rec, httptest.NewRequest(http.MethodGet, "/debug/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "jsonRWS", body["config"]["subprotocol"])
	assert.Equal(t, "hioload-rws", body["server"]["name"])
	assert.Contains(t, body["stats"], "connections")
}

func TestLoginRouteNeedsUsername(t *testing.T) {
	srv, err := server.New(nil, server.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	rt := newRouter(zerolog.Nop(), srv)
	_, err = rt.Exe(context.Background(), router.NewTrx("/shop/login", nil))
	assert.EqualError(t, err, "username is required")
}

func TestEnvOr(t *testing.T) {
	t.Setenv("RWS_TEST_VALUE", "x")
	assert.Equal(t, "x", envOr("RWS_TEST_VALUE", "y"))
	assert.Equal(t, "y", envOr("RWS_TEST_MISSING", "y"))
}
