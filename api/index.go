package handler

import (
	"context"
	"net/http"

	"github.com/wadjakorntonsri/nfc-links/pkg/app"
	"github.com/wadjakorntonsri/nfc-links/pkg/config"
	"github.com/wadjakorntonsri/nfc-links/pkg/logger"
)

var mux http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat, "nfc-links")
	if err != nil {
		panic(err)
	}

	// Note: On Vercel, a local sqlite file is ephemeral unless DATABASE_URL
	// points at Turso or Postgres.
	a, err := app.New(context.Background(), cfg, zl)
	if err != nil {
		panic(err)
	}
	mux = a.Handler
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
