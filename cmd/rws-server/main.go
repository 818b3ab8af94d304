// File: cmd/rws-server/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// rws-server runs the websocket server behind a gorilla/mux HTTP listener.
// Configuration comes from RWS_* environment variables, optionally loaded
// from a .env file:
//
//	RWS_ADDR        listen address (default ":3000")
//	RWS_WS_PATH     websocket endpoint (default "/")
//	RWS_AUTH_KEY    expected "authkey" query value; empty admits anonymous clients
//	RWS_LOG_LEVEL   debug, info, warn, error
//	RWS_LOG_PRETTY  console log output
//
// plus the server options read by server.ConfigFromEnv.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rws/internal/logging"
	"github.com/momentics/hioload-rws/router"
	"github.com/momentics/hioload-rws/server"
	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/subprotocol"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := server.ConfigFromEnv("RWS")
	pretty, _ := strconv.ParseBool(os.Getenv("RWS_LOG_PRETTY"))
	log := logging.New(logging.Options{
		Level:  os.Getenv("RWS_LOG_LEVEL"),
		Debug:  cfg != nil && cfg.Debug,
		Pretty: pretty,
	})
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	authKey := os.Getenv("RWS_AUTH_KEY")
	srv, err := server.New(cfg, server.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("server init failed")
	}
	rt := newRouter(log, srv)
	srv.OnConnection(func(c *session.Conn) {
		c.Authenticate(authKey)
		if c.Auth().Passed() {
			srv.SendID(c)
		}
	})
	srv.OnRoute(func(env *subprotocol.Envelope, c *session.Conn) {
		trx, err := router.FromEnvelope(env, c)
		if err != nil {
			srv.SendError(err, c)
			return
		}
		if _, err := rt.Exe(context.Background(), trx); err != nil {
			srv.SendError(err, c)
		}
	})

	addr := envOr("RWS_ADDR", ":3000")
	wsPath := envOr("RWS_WS_PATH", "/")

	r := mux.NewRouter()
	r.HandleFunc("/debug/state", stateHandler(srv)).Methods(http.MethodGet)
	r.Handle(wsPath, srv)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { server.WriteWelcome(w) })

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Str("path", wsPath).Msg("http listener started")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http listener failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("websocket shutdown")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func stateHandler(srv *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"server": srv.Info(),
			"config": srv.Control().GetConfig(),
			"stats":  srv.Control().Stats(),
		})
	}
}

// newRouter defines the sample routes served to "route" commands.
func newRouter(log zerolog.Logger, srv *server.Server) *router.Router {
	rt := router.New(log)
	rt.Def("/shop/login", func(_ context.Context, trx *router.Trx) error {
		user, _ := trx.Query["username"].(string)
		if user == "" {
			return errors.New("username is required")
		}
		trx.Conn.Store().Set("user", user)
		nick := srv.Storage().SetNickname(trx.Conn, user)
		trx.Conn.SendSelf(trx.Env.Reply("logged in as " + nick))
		return nil
	})
	rt.Def("/shop/users/:name/:age", func(_ context.Context, trx *router.Trx) error {
		trx.Conn.SendSelf(trx.Env.Reply(trx.Params))
		return nil
	})
	rt.NotFound(func(_ context.Context, trx *router.Trx) error {
		trx.Conn.SendSelf(trx.Env.Reply("route not found: " + trx.URI))
		return nil
	})
	rt.Do(func(_ context.Context, trx *router.Trx) error {
		log.Debug().Str("uri", trx.URI).Int64("conn_id", trx.Conn.ID).Msg("route executed")
		return nil
	})
	return rt
}
