// Package api is the JSON-over-HTTP surface of the ledger. Handlers only
// decode requests, attach the authenticated identity to the context and map
// results onto status codes; every operation runs through service.Endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/pkg/idgen"

	"github.com/hazyhaar/proofledger/internal/auth"
	"github.com/hazyhaar/proofledger/internal/chain"
	"github.com/hazyhaar/proofledger/internal/identity"
	"github.com/hazyhaar/proofledger/internal/service"
	"github.com/hazyhaar/proofledger/pkg/audit"
	"github.com/hazyhaar/proofledger/pkg/kit"
	"github.com/hazyhaar/proofledger/pkg/trace"
)

// maxBodySize is the maximum HTTP body size for any request.
const maxBodySize = 64 * 1024

// LoginRateLimiter is the rate limiter for POST /api/login (10 req/60s).
var LoginRateLimiter = NewRateLimiter(10, 60*time.Second)

type API struct {
	ep          service.Endpoints
	auth        *auth.Auth
	clock       chain.Clock
	metrics     http.Handler
	metricsPath string
	audit       AuditReader
	traces      TraceSummarizer
}

// AuditReader is the query side of the persistent audit trail.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// TraceSummarizer reports on the SQL trace table.
type TraceSummarizer interface {
	Summarize(ctx context.Context, slowest int) (trace.Summary, error)
}

func New(ep service.Endpoints, a *auth.Auth, clock chain.Clock) *API {
	return &API{ep: ep, auth: a, clock: clock}
}

// SetMetricsHandler mounts h on GET path, "/metrics" when path is empty.
func (a *API) SetMetricsHandler(path string, h http.Handler) {
	if path == "" {
		path = "/metrics"
	}
	a.metrics, a.metricsPath = h, path
}

// SetAuditReader enables GET /api/audit.
func (a *API) SetAuditReader(r AuditReader) {
	a.audit = r
}

// SetTraceSummarizer adds SQL trace figures to the integrity report.
func (a *API) SetTraceSummarizer(t TraceSummarizer) {
	a.traces = t
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Auth
	mux.HandleFunc("POST /api/login", RateLimitMiddleware(LoginRateLimiter, a.handleLogin))

	// Participants
	mux.HandleFunc("POST /api/register", a.authed(a.handleRegister))
	mux.HandleFunc("GET /api/users/{id}", a.handleGetUser)

	// Submissions
	mux.HandleFunc("POST /api/submissions", a.authed(a.handleSubmit))
	mux.HandleFunc("GET /api/submissions/{submitter}/{seq}", a.handleGetSubmission)
	mux.HandleFunc("POST /api/submissions/{submitter}/{seq}/verify", a.authed(a.handleVerify))
	mux.HandleFunc("GET /api/submissions/{submitter}/{seq}/verification", a.handleGetVerification)
	mux.HandleFunc("POST /api/submissions/{submitter}/{seq}/challenge", a.authed(a.handleChallenge))
	mux.HandleFunc("GET /api/submissions/{submitter}/{seq}/challenge", a.handleGetChallenge)
	mux.HandleFunc("POST /api/submissions/{submitter}/{seq}/resolve", a.authed(a.handleResolve))

	// Rewards
	mux.HandleFunc("POST /api/rewards/{seq}/claim", a.authed(a.handleClaim))
	mux.HandleFunc("GET /api/rewards/{submitter}/{seq}", a.handleIsClaimed)

	// Configuration
	mux.HandleFunc("GET /api/config", a.handleGetConfig)
	mux.HandleFunc("PUT /api/config/{param}", a.authed(a.handleSetConfig))

	// Operations
	mux.HandleFunc("GET /api/events", a.handleEvents)
	mux.HandleFunc("GET /api/invariants", a.handleInvariants)
	mux.HandleFunc("GET /api/integrity", a.handleIntegrity)
	if a.audit != nil {
		mux.HandleFunc("GET /api/audit", a.authed(a.handleAudit))
	}
	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET "+a.metricsPath, a.metrics)
	}
}

// Handler returns the routed mux wrapped with the standard middlewares.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return RequestLogger(SecurityHeaders(mux))
}

// requestContext tags the context with transport and request IDs and, when a
// valid bearer token is present, the caller identity.
func (a *API) requestContext(r *http.Request) context.Context {
	ctx := kit.WithTransport(r.Context(), "http")
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = "req_" + idgen.New()
	}
	ctx = kit.WithRequestID(ctx, reqID)
	ctx = kit.WithTraceID(ctx, reqID)
	if claims := a.auth.ExtractClaims(r); claims != nil {
		ctx = kit.WithUserID(ctx, claims.Identity)
	}
	return ctx
}

// authed rejects requests without a valid token before they reach the
// ledger. The handler finds the tagged context on r.
func (a *API) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := a.requestContext(r)
		if kit.GetUserID(ctx) == "" {
			jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(ctx))
	}
}

func (a *API) run(ctx context.Context, w http.ResponseWriter, ep kit.Endpoint, req any, status int) {
	resp, err := ep(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResp(w, status, resp)
}

// --- Auth ---

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := identity.Normalize(req.Identity)
	if err != nil {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := a.auth.Login(id, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			jsonError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		slog.Error("token generation failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{
		"identity": string(id),
		"token":    token,
	})
}

// --- Participants ---

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a.run(ctx, w, a.ep.Register, nil, http.StatusCreated)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	a.run(a.requestContext(r), w, a.ep.GetUser, &service.IdentityRequest{Identity: r.PathValue("id")}, http.StatusOK)
}

// --- Submissions ---

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req service.SubmitProofRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.run(ctx, w, a.ep.SubmitProof, &req, http.StatusCreated)
}

func (a *API) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	key, ok := submissionPath(w, r)
	if !ok {
		return
	}
	resp, err := a.ep.GetSubmission(a.requestContext(r), &key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !resp.(service.SubmissionResponse).Found {
		jsonError(w, "submission not found", http.StatusNotFound)
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := submissionPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Vote *bool `json:"vote"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Vote == nil {
		jsonError(w, "vote is required", http.StatusBadRequest)
		return
	}
	a.run(ctx, w, a.ep.Verify, &service.VoteRequest{SubmissionRequest: key, Vote: *body.Vote}, http.StatusOK)
}

func (a *API) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	key, ok := submissionPath(w, r)
	if !ok {
		return
	}
	resp, err := a.ep.GetVerification(a.requestContext(r), &key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !resp.(service.VerificationResponse).Found {
		jsonError(w, "verification not found", http.StatusNotFound)
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

func (a *API) handleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := submissionPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	a.run(ctx, w, a.ep.Challenge, &service.ChallengeRequest{SubmissionRequest: key, Reason: body.Reason}, http.StatusCreated)
}

func (a *API) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	key, ok := submissionPath(w, r)
	if !ok {
		return
	}
	resp, err := a.ep.GetChallenge(a.requestContext(r), &key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !resp.(service.ChallengeResponse).Found {
		jsonError(w, "challenge not found", http.StatusNotFound)
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := submissionPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Vote *bool `json:"vote"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Vote == nil {
		jsonError(w, "vote is required", http.StatusBadRequest)
		return
	}
	a.run(ctx, w, a.ep.ResolveChallenge, &service.VoteRequest{SubmissionRequest: key, Vote: *body.Vote}, http.StatusOK)
}

// --- Rewards ---

func (a *API) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	seq, err := strconv.ParseUint(r.PathValue("seq"), 10, 64)
	if err != nil {
		jsonError(w, "invalid sequence number", http.StatusBadRequest)
		return
	}
	a.run(ctx, w, a.ep.ClaimReward, &service.ClaimRequest{Seq: seq}, http.StatusOK)
}

func (a *API) handleIsClaimed(w http.ResponseWriter, r *http.Request) {
	key, ok := submissionPath(w, r)
	if !ok {
		return
	}
	a.run(a.requestContext(r), w, a.ep.IsRewardClaimed, &key, http.StatusOK)
}

// --- Configuration ---

func (a *API) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	a.run(a.requestContext(r), w, a.ep.GetConfig, nil, http.StatusOK)
}

func (a *API) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	value, ok := scalar(body.Value)
	if !ok {
		jsonError(w, "value must be a string or an integer", http.StatusBadRequest)
		return
	}
	a.run(ctx, w, a.ep.SetParam, &service.SetParamRequest{Param: r.PathValue("param"), Value: value}, http.StatusOK)
}

// --- Operations ---

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := a.audit.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("reading audit log", "error", err)
		jsonError(w, "audit log unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	jsonResp(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req service.EventsRequest
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			jsonError(w, "invalid after", http.StatusBadRequest)
			return
		}
		req.After = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		req.Limit = n
	}
	a.run(a.requestContext(r), w, a.ep.Events, &req, http.StatusOK)
}

func (a *API) handleInvariants(w http.ResponseWriter, r *http.Request) {
	a.run(a.requestContext(r), w, a.ep.Invariants, nil, http.StatusOK)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, map[string]any{
		"status": "ok",
		"height": a.clock.Height(),
	})
}

// --- Helpers ---

func submissionPath(w http.ResponseWriter, r *http.Request) (service.SubmissionRequest, bool) {
	seq, err := strconv.ParseUint(r.PathValue("seq"), 10, 64)
	if err != nil {
		jsonError(w, "invalid sequence number", http.StatusBadRequest)
		return service.SubmissionRequest{}, false
	}
	return service.SubmissionRequest{Submitter: r.PathValue("submitter"), Seq: seq}, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// scalar accepts a JSON string or integer and returns it as text.
func scalar(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	if _, err := n.Int64(); err != nil {
		return "", false
	}
	return strings.TrimSpace(n.String()), true
}

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
