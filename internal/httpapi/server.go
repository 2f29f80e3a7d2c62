package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tutord/internal/dispatcher"
	"tutord/internal/protocol"
	"tutord/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Classify(ctx context.Context, question string, opts dispatcher.Options) (string, error)
	Answer(ctx context.Context, question string, opts dispatcher.Options) (string, error)
	Ask(ctx context.Context, question string, opts dispatcher.Options) (types.AskResponse, error)
	Status() types.StatusResponse
	Ready() bool
}

// EventSource feeds GET /v1/events. Optional.
type EventSource interface {
	Subscribe(buffer int) (<-chan protocol.Event, func())
}

// NewMux builds the HTTP router. events may be nil, in which case the events
// feed is not mounted.
func NewMux(svc Service, events EventSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		// The events feed must not sit behind the compressor, which buffers.
		if events != nil {
			r.Get("/events", eventsHandler(events))
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Post("/classify", classifyHandler(svc))
			r.Post("/answer", answerHandler(svc))
			r.Post("/ask", askHandler(svc))
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// classifyHandler godoc
// @Summary      Classify a question
// @Description  Returns the category label of the question.
// @Tags         tutor
// @Accept       json
// @Produce      json
// @Param        request  body      types.ClassifyRequest  true  "Question"
// @Success      200      {object}  types.ClassifyResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Failure      504      {object}  types.ErrorResponse
// @Router       /v1/classify [post]
func classifyHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ClassifyRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		category, err := svc.Classify(ctx, req.Question, dispatcher.Options{Timeout: millis(req.TimeoutMS)})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ClassifyResponse{Category: category})
	}
}

// answerHandler godoc
// @Summary      Answer a question
// @Description  Generates a short answer, optionally conditioned on a category.
// @Tags         tutor
// @Accept       json
// @Produce      json
// @Param        request  body      types.AnswerRequest  true  "Question"
// @Success      200      {object}  types.AnswerResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Failure      504      {object}  types.ErrorResponse
// @Router       /v1/answer [post]
func answerHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.AnswerRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}
		if req.MaxNewTokens < 0 {
			writeJSONError(w, http.StatusBadRequest, "max_new_tokens must not be negative")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		answer, err := svc.Answer(ctx, req.Question, dispatcher.Options{
			Timeout:      millis(req.TimeoutMS),
			MaxNewTokens: req.MaxNewTokens,
			Category:     req.Category,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.AnswerResponse{Answer: answer})
	}
}

// askHandler godoc
// @Summary      Classify, then answer
// @Description  Runs classification and feeds the category into the answer request.
// @Tags         tutor
// @Accept       json
// @Produce      json
// @Param        request  body      types.AskRequest  true  "Question"
// @Success      200      {object}  types.AskResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Failure      504      {object}  types.ErrorResponse
// @Router       /v1/ask [post]
func askHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.AskRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		resp, err := svc.Ask(ctx, req.Question, dispatcher.Options{
			Timeout:      millis(req.TimeoutMS),
			MaxNewTokens: req.MaxNewTokens,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// eventsHandler godoc
// @Summary      Stream engine events
// @Description  Streams every event the dispatcher observes as NDJSON until the client disconnects.
// @Tags         tutor
// @Produce      application/x-ndjson
// @Success      200
// @Router       /v1/events [get]
func eventsHandler(src EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, cancel := src.Subscribe(eventBuffer)
		defer cancel()

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}

		ctx, stop := joinContexts(serverBaseCtx, r.Context())
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				line, err := protocol.EncodeEvent(ev)
				if err != nil {
					continue
				}
				if _, err := w.Write(append(line, '\n')); err != nil {
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
	}
}

// decodeRequest enforces the JSON content type and body limit. On failure it
// writes the error response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func millis(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
