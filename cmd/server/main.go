package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/liamcoop/returns/disposition"
	"github.com/liamcoop/returns/internal/config"
	"github.com/liamcoop/returns/internal/logger"
	"github.com/liamcoop/returns/tenant"
)

type Server struct {
	db      *sql.DB
	manager *tenant.Manager
	metrics *disposition.Metrics
	router  *chi.Mux
	cfg     *config.Config
}

func NewServer(cfg *config.Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	metrics := disposition.NewMetrics(nil)
	manager := tenant.NewManager(db, metrics)

	logger.Info("loading tenants from database")
	if err := manager.LoadAll(); err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}
	logger.Info("tenants loaded", "count", len(manager.List()))

	s := &Server{
		db:      db,
		manager: manager,
		metrics: metrics,
		cfg:     cfg,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/api/v1/evaluate", s.handleEvaluate)
	r.Post("/api/v1/simulate", s.handleSimulate)
	r.Post("/api/v1/test-conditions", s.handleTestConditions)
	r.Get("/api/v1/field-options", s.handleFieldOptions)

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules", s.handleListRules)
			r.Get("/rules/{ruleId}", s.handleGetRule)
			r.Put("/rules/{ruleId}", s.handleUpdateRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)

			r.Get("/derived-fields", s.handleListDerivedFields)
			r.Post("/derived-fields", s.handleSaveDerivedField)
			r.Delete("/derived-fields/{fieldName}", s.handleDeleteDerivedField)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"tenantsLoaded": len(s.manager.List()),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "tenantId is required", nil)
		return
	}
	if req.Context == nil {
		respondError(w, http.StatusBadRequest, "context is required", nil)
		return
	}

	engine, err := s.manager.Engine(req.TenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	var result *disposition.EvaluationResult
	if req.Trace {
		result, err = engine.EvaluateWithTrace(req.Context)
	} else {
		result, err = engine.Evaluate(req.Context)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, disposition.ErrSnapshotUnavailable) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "evaluation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TenantID == "" || req.Context == nil {
		respondError(w, http.StatusBadRequest, "tenantId and context are required", nil)
		return
	}

	result, err := s.manager.SimulateRuleset(req.TenantID, req.Context)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found", err)
		case errors.Is(err, disposition.ErrSnapshotUnavailable):
			respondError(w, http.StatusServiceUnavailable, "simulation failed", err)
		default:
			respondError(w, http.StatusInternalServerError, "simulation failed", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleTestConditions(w http.ResponseWriter, r *http.Request) {
	var req testConditionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.ConditionGroups) == 0 || req.Context == nil {
		respondError(w, http.StatusBadRequest, "conditionGroups and context are required", nil)
		return
	}

	// No tenant means a draft for an unprovisioned tenant: run without
	// derived fields rather than failing.
	if req.TenantID == "" {
		respondJSON(w, http.StatusOK, disposition.TestRuleConditions(req.ConditionGroups, req.Context))
		return
	}

	result, err := s.manager.TestRuleConditions(req.TenantID, req.ConditionGroups, req.Context)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleFieldOptions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, disposition.ListFieldOptions())
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT id, name, created_at, updated_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
		return
	}
	defer rows.Close()

	type tenantRecord struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	tenants := []tenantRecord{}
	for rows.Next() {
		var t tenantRecord
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan tenant", err)
			return
		}
		tenants = append(tenants, t)
	}

	respondJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	var tenantID string
	err := s.db.QueryRow(`
		INSERT INTO tenants (name, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING id
	`, req.Name).Scan(&tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tenant", err)
		return
	}

	if err := s.manager.Create(tenantID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to initialize tenant", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":   tenantID,
		"name": req.Name,
	})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule(uuid.NewString(), tenantID)
	if err := s.manager.AddRule(tenantID, rule); err != nil {
		respondRuleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	store, err := s.manager.RuleStore(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	rulesList, err := store.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rulesList == nil {
		rulesList = []*disposition.Rule{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"rules": rulesList})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	store, err := s.manager.RuleStore(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	rule, err := store.Get(ruleID)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule(ruleID, tenantID)
	if err := s.manager.UpdateRule(tenantID, rule); err != nil {
		respondRuleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	if err := s.manager.DeleteRule(tenantID, ruleID); err != nil {
		respondRuleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDerivedFields(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	store, err := s.manager.DerivedFieldStore(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	fields, err := store.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list derived fields", err)
		return
	}
	if fields == nil {
		fields = []*disposition.DerivedField{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"derivedFields": fields})
}

func (s *Server) handleSaveDerivedField(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req derivedFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	field := &disposition.DerivedField{Name: req.Name, Expression: req.Expression}
	if err := s.manager.SaveDerivedField(tenantID, field); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found", err)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to save derived field", err)
		return
	}

	respondJSON(w, http.StatusCreated, field)
}

func (s *Server) handleDeleteDerivedField(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	fieldName := chi.URLParam(r, "fieldName")

	if err := s.manager.DeleteDerivedField(tenantID, fieldName); err != nil {
		respondError(w, http.StatusNotFound, "derived field not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func respondRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		respondError(w, http.StatusNotFound, "tenant not found", err)
	case errors.Is(err, disposition.ErrRuleNotFound):
		respondError(w, http.StatusNotFound, "rule not found", err)
	case errors.Is(err, disposition.ErrRuleExists):
		respondError(w, http.StatusConflict, "rule already exists", err)
	default:
		respondError(w, http.StatusBadRequest, "invalid rule", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
