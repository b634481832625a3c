package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/p-wisp/anti-phishing/internal/engine"
	"github.com/p-wisp/anti-phishing/internal/features"
	"github.com/p-wisp/anti-phishing/internal/metrics"
	"github.com/p-wisp/anti-phishing/internal/repository"
	"github.com/p-wisp/anti-phishing/internal/scoring"
)

// Store is the part of the list store the handlers read.
type Store interface {
	BlockedDomains() ([]string, error)
	GetEntries(domain string) ([]repository.Entry, error)
	Ping(ctx context.Context) error
}

// Handler holds dependencies for API handlers. store may be nil, in which
// case the list endpoints answer 503.
type Handler struct {
	engine   *engine.Engine
	store    Store
	metrics  *metrics.Metrics
	maxRules int
	version  string
}

func NewHandler(eng *engine.Engine, store Store, m *metrics.Metrics, maxRules int, version string) *Handler {
	return &Handler{
		engine:   eng,
		store:    store,
		metrics:  m,
		maxRules: maxRules,
		version:  version,
	}
}

// ScoreURLRequest is the request body for POST /v1/score/url.
// DOMFeatures values must be numbers or booleans.
type ScoreURLRequest struct {
	URL         string         `json:"url"`
	DOMFeatures map[string]any `json:"dom_features,omitempty"`
	HTML        string         `json:"html,omitempty"`
}

// ScoreResponse is a Verdict plus optional explainability fields.
type ScoreResponse struct {
	scoring.Verdict
	Listed   string          `json:"listed,omitempty"`
	Features features.Record `json:"features,omitempty"`
}

type ScoreHTMLRequest struct {
	HTML string `json:"html"`
}

// DNRRule is a Chrome declarativeNetRequest rule.
type DNRRule struct {
	ID        int          `json:"id"`
	Priority  int          `json:"priority"`
	Action    DNRAction    `json:"action"`
	Condition DNRCondition `json:"condition"`
}

type DNRAction struct {
	Type string `json:"type"`
}

type DNRCondition struct {
	URLFilter     string   `json:"urlFilter"`
	ResourceTypes []string `json:"resourceTypes"`
}

type EntryResponse struct {
	Source    string    `json:"source"`
	Action    string    `json:"action"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Health reports liveness and whether the list store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			slog.Warn("list store ping failed", "error", err)
			status = "degraded"
		}
	}

	blocked, allowed := h.engine.ListSizes()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"status":  status,
		"version": h.version,
		"lists": map[string]int{
			"blocked": blocked,
			"allowed": allowed,
		},
	})
}

// ScoreURL handles POST /v1/score/url. When html is present the page is
// scored too; ?features=1 adds the merged feature record to the response.
func (h *Handler) ScoreURL(w http.ResponseWriter, r *http.Request) {
	var req ScoreURLRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	dom, err := parseDOMFeatures(req.DOMFeatures)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var v scoring.Verdict
	if req.HTML != "" {
		v = h.engine.ScorePage(req.URL, req.HTML, dom)
	} else {
		v = h.engine.ScoreURL(req.URL, dom)
	}

	resp := ScoreResponse{Verdict: v}
	if status := h.engine.Lookup(req.URL); status != engine.Unlisted {
		resp.Listed = string(status)
	}
	if r.URL.Query().Get("features") == "1" {
		resp.Features = h.engine.Features(req.URL, req.HTML, dom)
	}

	h.observe(r.Context(), "url", v)
	writeJSON(w, http.StatusOK, resp)
}

// ScoreHTML handles POST /v1/score/html. The document may come as
// {"html": ...}, as a raw body, or as the html query parameter.
func (h *Handler) ScoreHTML(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("html")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req ScoreHTMLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeDecodeError(w, err)
			return
		}
		if req.HTML != "" {
			doc = req.HTML
		}
	} else if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		if len(body) > 0 {
			doc = string(body)
		}
	}

	v := h.engine.ScoreHTML(doc)
	h.observe(r.Context(), "html", v)
	writeJSON(w, http.StatusOK, v)
}

// BlockList serves blocked domains as declarativeNetRequest rules, at most
// maxRules of them.
func (h *Handler) BlockList(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "list store not available")
		return
	}

	domains, err := h.store.BlockedDomains()
	if err != nil {
		slog.Error("failed to read block list", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read block list")
		return
	}
	if h.maxRules > 0 && len(domains) > h.maxRules {
		domains = domains[:h.maxRules]
	}

	rules := make([]DNRRule, 0, len(domains))
	for i, d := range domains {
		rules = append(rules, DNRRule{
			ID:       i + 1,
			Priority: 1,
			Action:   DNRAction{Type: "block"},
			Condition: DNRCondition{
				URLFilter:     "||" + d,
				ResourceTypes: []string{"main_frame"},
			},
		})
	}
	writeJSON(w, http.StatusOK, rules)
}

// ListEntries shows which sources list a domain.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	domain := repository.NormalizeDomain(chi.URLParam(r, "domain"))
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "list store not available")
		return
	}

	entries, err := h.store.GetEntries(domain)
	if err != nil {
		slog.Error("failed to read entries", "domain", domain, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read entries")
		return
	}

	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{Source: e.Source, Action: e.Action, UpdatedAt: e.UpdatedAt.UTC()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":  domain,
		"status":  string(h.engine.Lookup("//" + domain)),
		"entries": out,
	})
}

func (h *Handler) observe(ctx context.Context, endpoint string, v scoring.Verdict) {
	h.metrics.ObserveVerdict(endpoint, v)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("verdict.label", string(v.Label)),
		attribute.Float64("verdict.prob", v.Probability),
		attribute.Int("verdict.reasons", len(v.Reasons)),
	)
}

// parseDOMFeatures accepts numbers and booleans only. Integral numbers stay
// integers so reasons print without a fraction.
func parseDOMFeatures(raw map[string]any) (features.Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	rec := make(features.Record, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case bool:
			rec.Set(features.Key(k), features.Bool(val))
		case json.Number:
			if i, err := val.Int64(); err == nil {
				rec.Set(features.Key(k), features.Int64(i))
			} else if f, err := val.Float64(); err == nil {
				rec.Set(features.Key(k), features.Float(f))
			} else {
				return nil, fmt.Errorf("dom_features.%s: %v", k, err)
			}
		default:
			return nil, fmt.Errorf("dom_features.%s must be a number or boolean", k)
		}
	}
	return rec, nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid JSON request body")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
