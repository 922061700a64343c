package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"neplus.org/internal/access"
	"neplus.org/internal/audit"
	"neplus.org/internal/collab"
	"neplus.org/internal/governance"
	"neplus.org/internal/obs"
	"neplus.org/internal/stream"
	"neplus.org/internal/token"
)

// ReadyProbe checks external dependencies, for example a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the HTTP layer to the domain services.
type Config struct {
	Access      *access.Control
	Auditor     *audit.Auditor
	Collab      *collab.Protocol
	Governance  *governance.System
	Supply      *token.Supply
	Alerts      *stream.Alerts
	ReadyProbe  ReadyProbe
	Version     string
	DisableAuth bool
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	auth       bool

	access     *access.Control
	auditor    *audit.Auditor
	collab     *collab.Protocol
	governance *governance.System
	supply     *token.Supply
	alerts     *stream.Alerts
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		auth:       !cfg.DisableAuth,
		access:     cfg.Access,
		auditor:    cfg.Auditor,
		collab:     cfg.Collab,
		governance: cfg.Governance,
		supply:     cfg.Supply,
		alerts:     cfg.Alerts,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// access control
	a.mux.HandleFunc("/v1/access/principals/", a.handlePrincipalScoped)

	// collaboration protocol
	a.mux.HandleFunc("/v1/collaborations", a.handleCollaborationsCollection)
	a.mux.HandleFunc("/v1/collaborations/", a.handleCollaborationResource)

	// governance
	a.mux.HandleFunc("/v1/proposals", a.handleProposalsCollection)
	a.mux.HandleFunc("/v1/proposals/", a.handleProposalResource)
	a.mux.HandleFunc("/v1/delegations", a.handleDelegations)
	a.mux.HandleFunc("/v1/governance/metrics", a.handleGovernanceMetrics)
	a.mux.HandleFunc("/v1/governance/sweep", a.handleGovernanceSweep)

	// platform token
	a.mux.HandleFunc("/v1/tokens/mint", a.handleTokenMint)
	a.mux.HandleFunc("/v1/tokens/transfer", a.handleTokenTransfer)
	a.mux.HandleFunc("/v1/tokens/lock", a.handleTokenLock)
	a.mux.HandleFunc("/v1/tokens/supply", a.handleTokenSupply)
	a.mux.HandleFunc("/v1/tokens/balances/", a.handleTokenBalance)

	// audit trail
	a.mux.HandleFunc("/v1/audit/events", a.handleAuditEvents)
	a.mux.HandleFunc("/v1/audit/metrics", a.handleAuditMetrics)
	a.mux.HandleFunc("/v1/alerts", a.StreamAlerts)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler: metrics on the
// outside, then request id, logging, hardening and auth.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "neplus-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "neplus-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
