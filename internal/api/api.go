// internal/api/api.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tamzrod/rfid-monitor/internal/anchor"
	"github.com/tamzrod/rfid-monitor/internal/events"
	"github.com/tamzrod/rfid-monitor/internal/status"
	"github.com/tamzrod/rfid-monitor/internal/tags"
)

// Line is what the API needs from one monitored line. *monitor.Line satisfies it.
type Line interface {
	ID() string
	Connected() bool
	PollCount() uint64
	Status() status.Snapshot
	Devices() []anchor.Descriptor

	PollNow(ctx context.Context) ([]tags.Record, error)
	PollAndMerge(ctx context.Context) (tags.Snapshot, error)
	History() tags.Snapshot

	Interval() time.Duration
	SetInterval(d time.Duration) error
	TagIdle() time.Duration
	SetTagIdle(d time.Duration) error

	Console(ctx context.Context, args []string) ([]string, error)
}

// Subscriber is the event source of /api/events. *events.Hub satisfies it.
type Subscriber interface {
	Subscribe(buf int) (uuid.UUID, <-chan events.Event)
	Unsubscribe(id uuid.UUID)
}

// Server is the HTTP/JSON collaborator interface.
type Server struct {
	lines []Line
	byID  map[string]Line
	hub   Subscriber
	log   zerolog.Logger

	router   *mux.Router
	upgrader websocket.Upgrader
}

func New(lines []Line, hub Subscriber, log zerolog.Logger) *Server {
	s := &Server{
		lines: lines,
		byID:  make(map[string]Line, len(lines)),
		hub:   hub,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, l := range lines {
		s.byID[l.ID()] = l
	}
	s.router = s.makeRouter()
	return s
}

func (s *Server) makeRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/lines", s.handleLines).Methods(http.MethodGet)
	r.HandleFunc("/api/lines/{line}/devices", s.withLine(s.handleDevices)).Methods(http.MethodGet)
	r.HandleFunc("/api/lines/{line}/tags/poll", s.withLine(s.handlePollNow)).Methods(http.MethodGet)
	r.HandleFunc("/api/lines/{line}/tags/history", s.withLine(s.handleHistory)).Methods(http.MethodGet)
	r.HandleFunc("/api/lines/{line}/tags", s.withLine(s.handlePollAndMerge)).Methods(http.MethodGet)
	r.HandleFunc("/api/lines/{line}/interval", s.withLine(s.handleGetInterval)).Methods(http.MethodGet)
	r.HandleFunc("/api/lines/{line}/interval", s.withLine(s.handleSetInterval)).Methods(http.MethodPut)
	r.HandleFunc("/api/lines/{line}/console", s.withLine(s.handleConsole)).Methods(http.MethodPost)
	if s.hub != nil {
		r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	}
	return r
}

// Handler returns the routed handler (tests use it with httptest).
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done. Request contexts derive from ctx,
// so open event streams end with it.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withLine resolves {line} or answers 404.
func (s *Server) withLine(h func(w http.ResponseWriter, r *http.Request, l Line)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["line"]
		l, ok := s.byID[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Reason: "unknown line", Error: id})
			return
		}
		h(w, r, l)
	}
}

type errorBody struct {
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("malformed JSON: " + err.Error())
	}
	return nil
}
