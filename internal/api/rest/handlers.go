package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safeplay/player-protection-backend/internal/domain/assessment"
	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
	"github.com/safeplay/player-protection-backend/internal/domain/session"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
	"github.com/safeplay/player-protection-backend/internal/metrics"
	assessmentsvc "github.com/safeplay/player-protection-backend/internal/service/assessment"
)

// UserStore is the profile surface the API needs directly.
type UserStore interface {
	Create(ctx context.Context, p *user.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*user.Profile, error)
}

// BehaviorService drives the session lifecycle.
type BehaviorService interface {
	StartSession(ctx context.Context, userID uuid.UUID, start time.Time, gameType, platform string) (*session.Session, error)
	AddBet(ctx context.Context, sessionID uuid.UUID, amount decimal.Decimal) error
	AddWin(ctx context.Context, sessionID uuid.UUID, amount decimal.Decimal) error
	EndSession(ctx context.Context, sessionID uuid.UUID) (*session.Session, error)
}

// AssessmentService runs and queries risk analyses. The bool returned by
// Analyze reports whether a still-valid assessment was reused.
type AssessmentService interface {
	Analyze(ctx context.Context, userID uuid.UUID, opts assessmentsvc.AnalyzeOptions) (*assessment.Assessment, bool, error)
	Current(ctx context.Context, userID uuid.UUID) (*assessment.Assessment, error)
	History(ctx context.Context, userID uuid.UUID) ([]*assessment.Assessment, error)
	ActiveByLevel(ctx context.Context, level user.RiskLevel) ([]*assessment.Assessment, error)
	Expired(ctx context.Context) ([]*assessment.Assessment, error)
	NeedingRenewal(ctx context.Context) ([]*assessment.Assessment, error)
}

// InterventionService manages the intervention lifecycle.
type InterventionService interface {
	Create(ctx context.Context, userID uuid.UUID, kind intervention.Type, spec intervention.CreateSpec) (*intervention.Intervention, error)
	Get(ctx context.Context, id uuid.UUID) (*intervention.Intervention, error)
	Execute(ctx context.Context, id uuid.UUID, executedBy string) (*intervention.Intervention, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*intervention.Intervention, error)
	Evaluate(ctx context.Context, id uuid.UUID, effectivenessScore int, userResponse string) (*intervention.Intervention, error)
	ByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error)
	PendingByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error)
	Due(ctx context.Context) ([]*intervention.Intervention, error)
	Expired(ctx context.Context) ([]*intervention.Intervention, error)
	HighPriority(ctx context.Context, minPriority int) ([]*intervention.Intervention, error)
}

// Handler bundles the HTTP endpoints of the protection engine.
type Handler struct {
	users         UserStore
	behavior      BehaviorService
	assessments   AssessmentService
	interventions InterventionService
	metrics       *metrics.Registry
	logger        *slog.Logger
}

// NewHandler builds the handler. A nil registry disables metric recording.
func NewHandler(users UserStore, behavior BehaviorService, assessments AssessmentService, interventions InterventionService, registry *metrics.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		users:         users,
		behavior:      behavior,
		assessments:   assessments,
		interventions: interventions,
		metrics:       registry,
		logger:        logger,
	}
}

// Routes registers all endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.health)

	mux.HandleFunc("POST /api/v1/users", h.createUser)
	mux.HandleFunc("GET /api/v1/users/{id}", h.getUser)

	mux.HandleFunc("POST /api/v1/users/{id}/sessions", h.startSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/bets", h.addBet)
	mux.HandleFunc("POST /api/v1/sessions/{id}/wins", h.addWin)
	mux.HandleFunc("POST /api/v1/sessions/{id}/end", h.endSession)

	mux.HandleFunc("POST /api/v1/users/{id}/analyze", h.analyze)
	mux.HandleFunc("GET /api/v1/users/{id}/assessments/current", h.currentAssessment)
	mux.HandleFunc("GET /api/v1/users/{id}/assessments", h.assessmentHistory)
	mux.HandleFunc("GET /api/v1/assessments", h.listAssessmentsByLevel)
	mux.HandleFunc("GET /api/v1/assessments/expired", h.expiredAssessments)
	mux.HandleFunc("GET /api/v1/assessments/renewals", h.assessmentsNeedingRenewal)

	mux.HandleFunc("POST /api/v1/users/{id}/interventions", h.createIntervention)
	mux.HandleFunc("GET /api/v1/users/{id}/interventions", h.listInterventions)
	mux.HandleFunc("GET /api/v1/interventions/{id}", h.getIntervention)
	mux.HandleFunc("GET /api/v1/interventions/due", h.dueInterventions)
	mux.HandleFunc("GET /api/v1/interventions/expired", h.expiredInterventions)
	mux.HandleFunc("GET /api/v1/interventions/high-priority", h.highPriorityInterventions)
	mux.HandleFunc("POST /api/v1/interventions/{id}/execute", h.executeIntervention)
	mux.HandleFunc("POST /api/v1/interventions/{id}/cancel", h.cancelIntervention)
	mux.HandleFunc("POST /api/v1/interventions/{id}/evaluate", h.evaluateIntervention)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := user.NewProfile(req.Email, req.Name)
	if err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_USER", err.Error()))
		return
	}
	if err := h.users.Create(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type startSessionRequest struct {
	SessionStart *time.Time `json:"session_start,omitempty"`
	GameType     string     `json:"game_type"`
	Platform     string     `json:"platform"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req startSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	start := time.Now()
	if req.SessionStart != nil {
		start = *req.SessionStart
	}

	s, err := h.behavior.StartSession(r.Context(), userID, start, req.GameType, req.Platform)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.UpdateOpenSessions(1)
	}
	writeJSON(w, http.StatusCreated, s)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) addBet(w http.ResponseWriter, r *http.Request) {
	h.addToSession(w, r, h.behavior.AddBet)
}

func (h *Handler) addWin(w http.ResponseWriter, r *http.Request) {
	h.addToSession(w, r, h.behavior.AddWin)
}

func (h *Handler) addToSession(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, decimal.Decimal) error) {
	sessionID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := fn(r.Context(), sessionID, req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	s, err := h.behavior.EndSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.UpdateOpenSessions(-1)
		var minutes float64
		if s.DurationMinutes != nil {
			minutes = float64(*s.DurationMinutes)
		}
		h.metrics.RecordSessionClose(r.Context(), minutes, raisedFlags(s.RiskIndicators))
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	opts := assessmentsvc.AnalyzeOptions{
		Force:      r.URL.Query().Get("force") == "true",
		AssessedBy: r.URL.Query().Get("assessed_by"),
	}

	start := time.Now()
	a, reused, err := h.assessments.Analyze(r.Context(), userID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordAssessment(r.Context(), float64(time.Since(start).Milliseconds()), a.RiskLevel.String(), reused)
		if !reused {
			h.metrics.RecordRiskScore(r.Context(), a.RiskScore, a.RiskLevel.String())
		}
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) currentAssessment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	a, err := h.assessments.Current(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) assessmentHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	list, err := h.assessments.History(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) listAssessmentsByLevel(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("level")
	level, ok := user.ParseRiskLevel(raw)
	if !ok {
		h.writeError(w, r, errors.NewValidationError("INVALID_RISK_LEVEL", "unknown risk level: "+raw))
		return
	}
	list, err := h.assessments.ActiveByLevel(r.Context(), level)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) expiredAssessments(w http.ResponseWriter, r *http.Request) {
	list, err := h.assessments.Expired(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) assessmentsNeedingRenewal(w http.ResponseWriter, r *http.Request) {
	list, err := h.assessments.NeedingRenewal(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createInterventionRequest struct {
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Message      string     `json:"message"`
	Priority     int        `json:"priority"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedBy    string     `json:"created_by"`
}

func (h *Handler) createIntervention(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req createInterventionRequest
	if !h.decode(w, r, &req) {
		return
	}

	kind, ok := intervention.ParseType(req.Type)
	if !ok {
		h.writeError(w, r, errors.NewValidationError("INVALID_INTERVENTION_TYPE", "unknown intervention type: "+req.Type))
		return
	}

	i, err := h.interventions.Create(r.Context(), userID, kind, intervention.CreateSpec{
		Title:        req.Title,
		Description:  req.Description,
		Message:      req.Message,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
		ExpiresAt:    req.ExpiresAt,
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordInterventionCreated(r.Context(), i.Type.String(), i.IsAutomatic)
	}
	writeJSON(w, http.StatusCreated, i)
}

func (h *Handler) listInterventions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var (
		list []*intervention.Intervention
		err  error
	)
	if r.URL.Query().Get("pending") == "true" {
		list, err = h.interventions.PendingByUser(r.Context(), userID)
	} else {
		list, err = h.interventions.ByUser(r.Context(), userID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getIntervention(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	i, err := h.interventions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) dueInterventions(w http.ResponseWriter, r *http.Request) {
	list, err := h.interventions.Due(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) expiredInterventions(w http.ResponseWriter, r *http.Request) {
	list, err := h.interventions.Expired(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// defaultHighPriorityFloor matches the priority of the critical-level block.
const defaultHighPriorityFloor = 4

func (h *Handler) highPriorityInterventions(w http.ResponseWriter, r *http.Request) {
	floor := defaultHighPriorityFloor
	if raw := r.URL.Query().Get("min"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, errors.NewValidationError("INVALID_PRIORITY", "min must be an integer"))
			return
		}
		floor = parsed
	}
	list, err := h.interventions.HighPriority(r.Context(), floor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type executeRequest struct {
	ExecutedBy string `json:"executed_by"`
}

func (h *Handler) executeIntervention(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req executeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ExecutedBy == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_EXECUTOR", "executed_by is required"))
		return
	}

	i, err := h.interventions.Execute(r.Context(), id, req.ExecutedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordInterventionExecuted(r.Context(), i.Type.String(), i.ExecutedBy)
	}
	writeJSON(w, http.StatusOK, i)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelIntervention(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}

	i, err := h.interventions.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

type evaluateRequest struct {
	EffectivenessScore int    `json:"effectiveness_score"`
	UserResponse       string `json:"user_response"`
}

func (h *Handler) evaluateIntervention(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if !h.decode(w, r, &req) {
		return
	}

	i, err := h.interventions.Evaluate(r.Context(), id, req.EffectivenessScore, req.UserResponse)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_ID", "malformed UUID in path"))
		return uuid.Nil, false
	}
	return id, true
}

func raisedFlags(ind *session.RiskIndicators) []string {
	if ind == nil {
		return nil
	}
	var flags []string
	if ind.HighFrequency {
		flags = append(flags, "high_frequency")
	}
	if ind.LossChasing {
		flags = append(flags, "loss_chasing")
	}
	if ind.HighBets {
		flags = append(flags, "high_bets")
	}
	if ind.LongSession {
		flags = append(flags, "long_session")
	}
	return flags
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_BODY", "malformed request body"))
		return false
	}
	return true
}
