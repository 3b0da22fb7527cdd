// Package kbbot exposes the Slack events handler as a Google Cloud Function.
// Deploy with --entry-point=SlackBot. Configuration comes from the
// environment; the knowledge base defaults to /tmp/kbbot/knowledge.db unless
// KBBOT_DB_PATH is set.
package kbbot

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"kbbot/internal/bootstrap"
)

func init() {
	functions.HTTP("SlackBot", SlackBot)
}

var (
	initOnce sync.Once
	handler  http.Handler
	initErr  error
)

// SlackBot hands each request to the Slack app. The app is built on the first
// request of each instance and reused afterwards.
func SlackBot(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		var (
			b      *bootstrap.Bot
			logger *slog.Logger
		)
		b, logger, initErr = bootstrap.FromEnv(context.Background())
		if initErr != nil {
			logger.Error("kbbot init failed", "err", initErr)
			return
		}
		handler = b.App
	})
	if initErr != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	handler.ServeHTTP(w, r)
}
