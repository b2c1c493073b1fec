package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/insights"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// GlobalTenantID is used for rule sets that apply to all tenants.
const GlobalTenantID = "*"

// How long a computed assessment stays in cache.
const assessmentCacheTTL = 10 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *assess.Processor
	insights  *insights.Service
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *assess.Processor, version string) *Handler {
	h := &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		processor: processor,
		version:   version,
	}
	if repo != nil {
		h.insights = insights.NewService(repo)
	}
	return h
}

// Assess handles POST /assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var profile domain.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if problems := validateProfile(profile); len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid applicant profile",
			"fields": problems,
		})
		return
	}

	snapshot := h.engine.Snapshot()
	if snapshot == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no rule set loaded",
		})
		return
	}

	assessment, err := h.processor.Process(ctx, &assess.Input{
		TenantID:  tenantID,
		TraceID:   traceID,
		Profile:   profile,
		Snapshot:  snapshot,
		StartTime: start,
	})
	if err != nil {
		var dataErr *scoring.DataError
		if errors.As(err, &dataErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "unprocessable field value",
				"fields": []string{dataErr.Error()},
			})
			return
		}
		slog.Error("assessment failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment", "id", assessment.ID, "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.SetAssessment(ctx, tenantID, assessment, assessmentCacheTTL); err != nil {
			slog.Warn("failed to cache assessment", "id", assessment.ID, "error", err)
		}
		if _, err := h.cache.IncrementCounter(ctx, tenantID, "assessments:daily", 24*time.Hour); err != nil {
			slog.Warn("failed to bump assessment counter", "error", err)
		}
	}
	h.publishResult(ctx, tenantID, assessment)

	writeJSON(w, http.StatusOK, assessment.ToResponse())
}

// publishResult emits the completed event, plus the declined event for
// hard-gated applicants.
func (h *Handler) publishResult(ctx context.Context, tenantID string, a *domain.Assessment) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(a.ToResponse())
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, payload); err != nil {
		slog.Warn("failed to publish assessment event", "id", a.ID, "error", err)
	}
	if a.Score.AutoDecline {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAssessmentDeclined, payload); err != nil {
			slog.Warn("failed to publish decline event", "id", a.ID, "error", err)
		}
	}
}

// validateProfile rejects payloads the engine cannot score, naming
// every offending field so the client can correct and resubmit.
func validateProfile(profile domain.Profile) []string {
	var problems []string
	if len(profile) == 0 {
		return []string{"profile: at least one field is required"}
	}
	for field, v := range profile {
		switch v.(type) {
		case nil, string, bool, float64:
		default:
			problems = append(problems, fmt.Sprintf("%s: must be a string, number, boolean, or null", field))
		}
	}
	sort.Strings(problems)
	return problems
}

// GetAssessment retrieves an assessment by ID, cache first.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	if h.cache != nil {
		if a, err := h.cache.GetAssessment(ctx, tenantID, id); err == nil && a != nil {
			writeJSON(w, http.StatusOK, a.ToResponse())
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAssessment(ctx, tenantID, id)
	if err != nil {
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, a.ToResponse())
}

// GetRules returns the active scorecard document.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	snapshot := h.engine.Snapshot()
	if snapshot == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no rule set loaded",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rule_set": snapshot.RuleSet.Sections,
		"version":  snapshot.RuleSet.Version,
		"fields":   snapshot.RuleSet.FieldCount(),
		"loadedAt": snapshot.LoadedAt,
	})
}

// PutRules replaces the scorecard: validate, persist, hot-swap.
func (h *Handler) PutRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	rs, err := h.engine.ValidateDocument(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	rs.TenantID = GlobalTenantID

	if h.repo != nil {
		if err := h.repo.SaveRuleSet(ctx, GlobalTenantID, rs); err != nil {
			slog.Error("failed to save rule set", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule set",
			})
			return
		}
	}

	if err := h.engine.LoadRuleSet(rs); err != nil {
		slog.Error("failed to load rule set", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rule set: " + err.Error(),
		})
		return
	}

	if h.bus != nil {
		if payload, err := json.Marshal(map[string]any{"version": rs.Version, "fields": rs.FieldCount()}); err == nil {
			h.bus.Publish(ctx, GlobalTenantID, domain.TopicRuleSetUpdated, payload)
		}
	}

	slog.Info("rule set replaced", "fields", rs.FieldCount(), "version", rs.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rule set updated",
		"fields":  rs.FieldCount(),
		"version": rs.Version,
	})
}

// ReloadRules reloads the scorecard from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rs, err := h.repo.GetRuleSet(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to load rule set from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rule set from database",
		})
		return
	}

	if err := h.engine.LoadRuleSet(rs); err != nil {
		slog.Error("failed to reload rule set", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rule set: " + err.Error(),
		})
		return
	}

	slog.Info("rule set reloaded from database", "fields", rs.FieldCount(), "version", rs.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rule set reloaded successfully",
		"fields":  rs.FieldCount(),
		"version": rs.Version,
	})
}

// InsightsSummary returns aggregate underwriting analytics.
func (h *Handler) InsightsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.insights == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "insights not available",
		})
		return
	}

	summary, err := h.insights.Summary(ctx, tenantID, windowDays(r))
	if err != nil {
		slog.Error("failed to compute insights summary", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute summary",
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// InsightsTrends returns daily assessment aggregates.
func (h *Handler) InsightsTrends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.insights == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "insights not available",
		})
		return
	}

	points, err := h.insights.Trends(ctx, tenantID, windowDays(r))
	if err != nil {
		slog.Error("failed to compute insights trends", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute trends",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trends": points,
		"count":  len(points),
	})
}

// windowDays parses the optional ?days= query parameter.
func windowDays(r *http.Request) int {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return 0
	}
	return days
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic. Without
// a loaded scorecard nothing can be assessed.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine.Snapshot() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
