package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kalambet/advisorhub/internal/advisor"
	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/metrics"
	"github.com/kalambet/advisorhub/internal/portfolio"
	"github.com/kalambet/advisorhub/internal/report"
)

const maxContactBodySize = 64 << 10 // 64KB

// ContactRequest is the body of POST /merchants/{ref}/contacts.
type ContactRequest struct {
	AdvisorName string `json:"advisor_name"`
	Channel     string `json:"channel"`
	Priority    string `json:"priority"`
	Summary     string `json:"summary"`
	Commitment  string `json:"commitment"`
	Date        string `json:"date"`
}

// MerchantView is a merchant with the label advisors select it by.
type MerchantView struct {
	portfolio.Merchant
	Label string `json:"label"`
}

// MerchantList is the body of GET /merchants.
type MerchantList struct {
	Merchants []MerchantView    `json:"merchants"`
	Summary   portfolio.Summary `json:"summary"`
}

// History is the body of GET /merchants/{ref}/contacts.
type History struct {
	Merchant MerchantView       `json:"merchant"`
	Contacts []contactlog.Entry `json:"contacts"`
}

type AppDeps struct {
	Service *advisor.Service
	Token   string
	Logger  *zap.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/merchants", handleListMerchants(deps))
		r.Get("/merchants/lookup", handleLookupMerchant(deps))
		r.Get("/merchants/{ref}", handleDashboard(deps))
		r.Get("/merchants/{ref}/contacts", handleHistory(deps))
		r.Post("/merchants/{ref}/contacts", handleLogContact(deps))
		r.Get("/contacts/export", handleExport(deps))
	})

	return r
}

// countRequests records every response under its route pattern.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newMerchantView(m portfolio.Merchant) MerchantView {
	return MerchantView{Merchant: m, Label: m.DisplayLabel()}
}

func handleListMerchants(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchants := deps.Service.Merchants()
		views := make([]MerchantView, len(merchants))
		for i, m := range merchants {
			views[i] = newMerchantView(m)
		}
		writeJSON(w, http.StatusOK, MerchantList{
			Merchants: views,
			Summary:   deps.Service.Catalog().Summary(),
		})
	}
}

func handleLookupMerchant(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		label := r.URL.Query().Get("label")
		if label == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "label is required")
			return
		}
		m, err := deps.Service.Catalog().FindByDisplayLabel(label)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newMerchantView(m))
	}
}

func handleDashboard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Service.Dashboard(chi.URLParam(r, "ref"))
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, entries, err := deps.Service.History(chi.URLParam(r, "ref"))
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, History{Merchant: newMerchantView(m), Contacts: entries})
	}
}

func handleLogContact(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxContactBodySize)
		defer r.Body.Close()

		var req ContactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		in, err := advisor.ParseContact(req.AdvisorName, req.Channel, req.Priority, req.Summary, req.Commitment, req.Date)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}

		e, err := deps.Service.LogContact(chi.URLParam(r, "ref"), in)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := report.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		entries, err := deps.Service.Export()
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}

		var buf bytes.Buffer
		if err := report.Write(&buf, format, entries, deps.Service.Catalog()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to render export: %v", err)
			return
		}

		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(time.Now())))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, portfolio.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, contactlog.ErrValidation):
		httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
	default:
		logger.Error("request failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
