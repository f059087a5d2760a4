// Package httpapi is the gateway's HTTP surface: route bindings, CORS, and
// the single top-level error formatter.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"

	"github.com/gratheon/graphql-gateway/federation/planner"
	"github.com/gratheon/graphql-gateway/internal/apierr"
	"github.com/gratheon/graphql-gateway/internal/auth"
	"github.com/gratheon/graphql-gateway/internal/observability"
	"github.com/gratheon/graphql-gateway/internal/scope"
	"github.com/gratheon/graphql-gateway/internal/supergraph"
)

// RequestCompleteFunc is invoked after every POST /graphql request
// completes, for optional downstream reporting (query logging, metrics).
// operationName is the top-level field name when the query parsed far
// enough to determine one, durationMs the wall-clock handling time, and
// subgraphFanout the number of distinct subgraphs the plan dispatched to.
type RequestCompleteFunc func(r *http.Request, requestID string, identity auth.Context, operationName string, durationMs int64, subgraphFanout int, requestErr error)

// Handler builds the gateway's top-level http.Handler.
type Handler struct {
	manager      *supergraph.Manager
	authPipeline *auth.Pipeline
	logger       *slog.Logger
	onComplete   RequestCompleteFunc
}

// New builds the HTTP surface. onComplete may be nil.
func New(manager *supergraph.Manager, authPipeline *auth.Pipeline, onComplete RequestCompleteFunc) http.Handler {
	h := &Handler{
		manager:      manager,
		authPipeline: authPipeline,
		logger:       slog.Default().With("component", "httpapi"),
		onComplete:   onComplete,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /graphql", h.handlePlayground)
	mux.HandleFunc("POST /graphql", h.handleGraphQL)
	mux.HandleFunc("GET /schema.graphql", h.handleSchema)
	mux.HandleFunc("/", h.handleNotFound)

	return withCORS(withRequestID(mux))
}

var localOriginPattern = regexp.MustCompile(`^https?://(localhost|0\.0\.0\.0)(:\d+)?$`)

// withCORS allows credentialed requests from *.gratheon.com, any
// localhost/0.0.0.0 port (local development), and the desktop app's
// tauri://localhost origin.
func withCORS(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "tauri://localhost" {
				return true
			}
			if localOriginPattern.MatchString(origin) {
				return true
			}
			return strings.HasSuffix(origin, ".gratheon.com")
		},
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type", "token", "X-Share-Token", "Authorization"},
		AllowCredentials:   true,
		OptionsSuccessStatus: http.StatusNoContent,
	})
	return c.Handler(next)
}

type requestIDKey struct{}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not found!", http.StatusNotFound)
}

func (h *Handler) handlePlayground(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(playgroundHTML))
}

const playgroundHTML = `<!DOCTYPE html>
<html>
<head><title>graphql-gateway</title></head>
<body>
<p>POST a GraphQL operation to this endpoint.</p>
</body>
</html>`

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	current := h.manager.Current()
	if current == nil {
		http.Error(w, "supergraph not yet published", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(current.SDL))
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func (h *Handler) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	defer observability.Recover(h.logger)

	start := time.Now()
	requestID := requestIDFromContext(r.Context())

	identity := h.authPipeline.Resolve(r)

	var reqErr error
	var operationName string
	var fanout int
	if h.onComplete != nil {
		defer func() {
			durationMs := time.Since(start).Milliseconds()
			h.onComplete(r, requestID, identity, operationName, durationMs, fanout, reqErr)
		}()
	}

	if authErr, failed := identity.Err(); failed {
		reqErr = authErr
		writeError(w, authErr)
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reqErr = apierr.Wrap(apierr.KindInternal, "failed to decode request body", err)
		writeError(w, reqErr.(*apierr.Error))
		return
	}

	l := lexer.New(req.Query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		reqErr = apierr.New(apierr.KindInternal, "failed to parse operation")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"errors": p.Errors()})
		return
	}

	if name, ok := scope.OperationFieldName(doc); ok {
		operationName = name
	}

	if shareScopes, ok := identity.ShareScopes(); ok {
		if !scope.Allow(doc, req.Variables, shareScopes) {
			reqErr = apierr.New(apierr.KindForbidden, "scope denied")
			writeGraphQLErrors(w, http.StatusForbidden, "Forbidden: Operation not allowed by share token scope.")
			return
		}
	}

	current := h.manager.Current()
	if current == nil || current.Engine == nil {
		reqErr = apierr.New(apierr.KindCompositionFailure, "no supergraph available")
		writeError(w, reqErr.(*apierr.Error))
		return
	}

	plan, err := current.Engine.Planner.Plan(doc, req.Variables)
	if err != nil {
		reqErr = apierr.Wrap(apierr.KindInternal, "failed to plan operation", err)
		writeGraphQLErrors(w, http.StatusInternalServerError, err.Error())
		return
	}
	fanout = subgraphFanout(plan)

	resp, err := current.Engine.Executor.Execute(r.Context(), plan, req.Variables, identity)
	if err != nil {
		reqErr = apierr.Wrap(apierr.KindSubgraphFailure, "execution failed", err)
		writeGraphQLErrors(w, http.StatusOK, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// subgraphFanout counts the distinct subgraphs a plan dispatches to.
func subgraphFanout(plan *planner.PlanV2) int {
	if plan == nil {
		return 0
	}
	seen := make(map[string]struct{}, len(plan.Steps))
	for _, step := range plan.Steps {
		if step == nil || step.SubGraph == nil {
			continue
		}
		seen[step.SubGraph.Name] = struct{}{}
	}
	return len(seen)
}

// httpStatusError is implemented by *apierr.Error; the formatter dispatches
// on it rather than a type switch.
type httpStatusError interface {
	error
	HTTPStatus() int
}

func writeError(w http.ResponseWriter, err httpStatusError) {
	status := err.HTTPStatus()
	writeGraphQLErrors(w, status, err.Error())
}

func writeGraphQLErrors(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]interface{}{{"message": message}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
