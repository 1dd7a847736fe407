// Package api serves a small HTTP control surface for the station: the
// queue view for desk widgets and the same signals the host bridge sends.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"circrfid/action"
	"circrfid/host"
	"circrfid/queue"
)

// Config holds the control API settings. An empty Listen disables it.
type Config struct {
	Listen string `yaml:"listen"` // e.g. "127.0.0.1:8087"
}

// Viewer reads the queue for display.
type Viewer interface {
	View(ctx context.Context) (queue.View, error)
}

// Sender hands a signal to the engine loop.
type Sender func(ctx context.Context, s host.Signal) error

// NewRouter builds the control API routes.
func NewRouter(v Viewer, send Sender, log *zap.Logger) *mux.Router {
	h := &handlers{view: v, send: send, log: log.Named("api")}

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")
	r.HandleFunc("/queue", h.getQueue).Methods("GET")
	r.HandleFunc("/queue/{barcode}", h.barcode(host.SignalRemove)).Methods("DELETE")
	r.HandleFunc("/queue/{barcode}/processed", h.barcode(host.SignalProcessed)).Methods("POST")
	r.HandleFunc("/reset", h.simple(host.SignalReset)).Methods("POST")
	r.HandleFunc("/continue", h.simple(host.SignalContinue)).Methods("POST")
	r.HandleFunc("/dismiss", h.simple(host.SignalDismiss)).Methods("POST")
	r.HandleFunc("/page", h.page).Methods("POST")
	r.HandleFunc("/switch/{mode}", h.switchMode).Methods("POST")
	return r
}

type handlers struct {
	view Viewer
	send Sender
	log  *zap.Logger
}

func (h *handlers) getQueue(w http.ResponseWriter, r *http.Request) {
	v, err := h.view.View(r.Context())
	if err != nil {
		h.log.Warn("read queue", zap.Error(err))
		http.Error(w, "queue unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) barcode(t host.SignalType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.dispatch(w, r, host.Signal{Type: t, Barcode: mux.Vars(r)["barcode"]})
	}
}

func (h *handlers) simple(t host.SignalType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.dispatch(w, r, host.Signal{Type: t})
	}
}

func (h *handlers) page(w http.ResponseWriter, r *http.Request) {
	var p action.Page
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid page: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.dispatch(w, r, host.Signal{Type: host.SignalPage, Page: &p})
}

func (h *handlers) switchMode(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, host.Signal{
		Type:  host.SignalSwitch,
		Mode:  mux.Vars(r)["mode"],
		Field: r.URL.Query().Get("field"),
	})
}

func (h *handlers) dispatch(w http.ResponseWriter, r *http.Request, s host.Signal) {
	if err := s.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.send(r.Context(), s); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "signal": string(s.Type)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ChannelSender returns a Sender that delivers into signals, giving up
// when the request or the given wait expires.
func ChannelSender(signals chan<- host.Signal, wait time.Duration) Sender {
	return func(ctx context.Context, s host.Signal) error {
		ctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		select {
		case signals <- s:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("engine busy: %w", ctx.Err())
		}
	}
}

// Serve runs the API on cfg.Listen until ctx is done.
func Serve(ctx context.Context, cfg Config, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Named("api").Info("control api listening", zap.String("addr", cfg.Listen))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
