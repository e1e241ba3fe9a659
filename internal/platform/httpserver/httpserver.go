package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"homeledger/internal/platform/config"
)

const minWriteTimeout = 15 * time.Second

// New builds the API server. The write timeout leaves room for a full
// transaction plus encoding; net/http's own errors are logged at warn.
func New(cfg config.Server, handler http.Handler, logger *slog.Logger) *http.Server {
	writeTimeout := max(3*cfg.TxTimeout, minWriteTimeout)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
