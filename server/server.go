package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"meteo/logger"
	"meteo/manager"
)

const maxSearchBody = 4 << 10

// Querier is the part of manager.Service the handlers need.
type Querier interface {
	Query(ctx context.Context, city string) manager.Outcome
	Dispatch(ctx context.Context, city string) string
}

// Handler exposes the weather service and its current outcome over HTTP.
type Handler struct {
	service  Querier
	state    *manager.State
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(service Querier, state *manager.State, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		state:   state,
		logger:  log.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/weather", h.GetWeather)
		r.Post("/search", h.Search)
		r.Get("/outcome", h.GetOutcome)
	})

	r.Get("/ws", h.Stream)

	return r
}

// GetWeather runs one query synchronously: GET /api/weather?city=Paris
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	outcome := h.service.Query(r.Context(), r.URL.Query().Get("city"))
	writeJSON(w, statusFor(outcome), newOutcomeView(outcome))
}

type searchRequest struct {
	City string `json:"city"`
}

// Search dispatches a background query and returns its id. The outcome
// lands in the shared state and is pushed to websocket clients.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	id := h.service.Dispatch(r.Context(), req.City)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (h *Handler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	outcome, ok := h.state.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeView(outcome))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug("request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Duration("took", time.Since(start)))
	})
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down within shutdownTimeout.
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, log *logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

type reportView struct {
	Description        string `json:"description"`
	TemperatureCelsius int    `json:"temperature_celsius"`
}

type failureView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type outcomeView struct {
	ID      string       `json:"id"`
	City    string       `json:"city"`
	OK      bool         `json:"ok"`
	Report  *reportView  `json:"report,omitempty"`
	Failure *failureView `json:"failure,omitempty"`
	At      time.Time    `json:"at"`
}

func newOutcomeView(o manager.Outcome) outcomeView {
	v := outcomeView{
		ID:   o.ID,
		City: o.City,
		OK:   o.OK(),
		At:   o.At,
	}
	if o.Report != nil {
		v.Report = &reportView{
			Description:        o.Report.Description,
			TemperatureCelsius: o.Report.TemperatureCelsius,
		}
	}
	if o.Failure != nil {
		v.Failure = &failureView{
			Kind:    o.Failure.Kind.String(),
			Message: o.Failure.Message(),
		}
	}
	return v
}

func statusFor(o manager.Outcome) int {
	if o.Failure == nil {
		return http.StatusOK
	}

	switch o.Failure.Kind {
	case manager.InvalidInput:
		return http.StatusBadRequest
	case manager.NetworkError, manager.EmptyResponse:
		return http.StatusBadGateway
	case manager.DecodeError:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
