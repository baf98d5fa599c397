package intervention

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
)

// DefaultExpiryHours is applied when a created intervention carries no
// explicit expiry.
const DefaultExpiryHours = 24

// SystemAutoActor is recorded as the executor for sweep-driven executions.
const SystemAutoActor = "SYSTEM_AUTO"

// Intervention is one protective action targeted at a user. Interventions
// are never deleted; they only move through the status state machine and
// serve as an audit trail afterwards.
type Intervention struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	Type        Type   `json:"intervention_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Message     string `json:"message"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	Status   Status `json:"status"`
	Priority int    `json:"priority"` // 1 low .. 4 critical

	IsAutomatic bool   `json:"is_automatic"`
	CreatedBy   string `json:"created_by"`
	ExecutedBy  string `json:"executed_by,omitempty"`

	ExecutionNotes     string `json:"execution_notes,omitempty"`
	UserResponse       string `json:"user_response,omitempty"`
	EffectivenessScore *int   `json:"effectiveness_score,omitempty"` // 1-5, post-execution

	CreatedAt time.Time `json:"created_at"`
}

// Type enumerates the available intervention kinds.
type Type int

const (
	TypeWarning Type = iota
	TypeAlternativeSuggestion
	TypeTemporaryBlock
	TypeProfessionalReferral
	TypeSupportGroup
)

func (t Type) String() string {
	switch t {
	case TypeWarning:
		return "WARNING"
	case TypeAlternativeSuggestion:
		return "ALTERNATIVE_SUGGESTION"
	case TypeTemporaryBlock:
		return "TEMPORARY_BLOCK"
	case TypeProfessionalReferral:
		return "PROFESSIONAL_REFERRAL"
	case TypeSupportGroup:
		return "SUPPORT_GROUP"
	default:
		return "unknown"
	}
}

// ParseType converts a stored string back into a Type.
func ParseType(s string) (Type, bool) {
	switch s {
	case "WARNING":
		return TypeWarning, true
	case "ALTERNATIVE_SUGGESTION":
		return TypeAlternativeSuggestion, true
	case "TEMPORARY_BLOCK":
		return TypeTemporaryBlock, true
	case "PROFESSIONAL_REFERRAL":
		return TypeProfessionalReferral, true
	case "SUPPORT_GROUP":
		return TypeSupportGroup, true
	default:
		return TypeWarning, false
	}
}

// MarshalJSON renders the type as its canonical string form.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, ok := ParseType(s)
	if !ok {
		return fmt.Errorf("unknown intervention type: %q", s)
	}
	*t = kind
	return nil
}

// Status is the stored lifecycle state. EXPIRED is intentionally absent:
// expiry is a read-time condition derived from ExpiresAt, never written back,
// so an expired PENDING intervention keeps its stored status in the audit
// trail until executed or cancelled.
type Status int

const (
	StatusPending Status = iota
	StatusScheduled
	StatusExecuted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusScheduled:
		return "SCHEDULED"
	case StatusExecuted:
		return "EXECUTED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored string back into a Status.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "PENDING":
		return StatusPending, true
	case "SCHEDULED":
		return StatusScheduled, true
	case "EXECUTED":
		return StatusExecuted, true
	case "CANCELLED":
		return StatusCancelled, true
	default:
		return StatusPending, false
	}
}

// MarshalJSON renders the status as its canonical string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status, ok := ParseStatus(raw)
	if !ok {
		return fmt.Errorf("unknown intervention status: %q", raw)
	}
	*s = status
	return nil
}

// CreateSpec carries the fields a creator supplies. Automatic creation fills
// it from the policy mapping; manual creation supplies its own content.
type CreateSpec struct {
	Title        string
	Description  string
	Message      string
	Priority     int
	ScheduledFor *time.Time
	ExpiresAt    *time.Time
	IsAutomatic  bool
	CreatedBy    string
}

// NewIntervention creates an intervention in PENDING, or SCHEDULED when the
// spec schedules it for the future. A missing expiry defaults to
// DefaultExpiryHours from now.
func NewIntervention(userID uuid.UUID, kind Type, spec CreateSpec) (*Intervention, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user ID cannot be nil")
	}
	if spec.Title == "" {
		return nil, fmt.Errorf("title cannot be empty")
	}
	if spec.Priority < 1 || spec.Priority > 4 {
		return nil, fmt.Errorf("priority %d out of range [1,4]", spec.Priority)
	}

	now := clock.Now()
	status := StatusPending
	if spec.ScheduledFor != nil && spec.ScheduledFor.After(now) {
		status = StatusScheduled
	}

	expiresAt := spec.ExpiresAt
	if expiresAt == nil {
		e := now.Add(DefaultExpiryHours * time.Hour)
		expiresAt = &e
	}

	return &Intervention{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         kind,
		Title:        spec.Title,
		Description:  spec.Description,
		Message:      spec.Message,
		ScheduledFor: spec.ScheduledFor,
		ExpiresAt:    expiresAt,
		Status:       status,
		Priority:     spec.Priority,
		IsAutomatic:  spec.IsAutomatic,
		CreatedBy:    spec.CreatedBy,
		CreatedAt:    now,
	}, nil
}

// IsTerminal reports whether the stored status admits no further transition.
func (i *Intervention) IsTerminal() bool {
	return i.Status == StatusExecuted || i.Status == StatusCancelled
}

// Execute transitions the intervention to EXECUTED, stamping the executor
// and time. Executing a terminal intervention fails without mutation.
func (i *Intervention) Execute(executedBy string) error {
	if i.IsTerminal() {
		return errors.ErrInvalidTransition
	}

	now := clock.Now()
	i.Status = StatusExecuted
	i.ExecutedAt = &now
	i.ExecutedBy = executedBy
	return nil
}

// Cancel transitions the intervention to CANCELLED, keeping the reason in
// the execution notes. Cancelling a terminal intervention fails without
// mutation.
func (i *Intervention) Cancel(reason string) error {
	if i.IsTerminal() {
		return errors.ErrInvalidTransition
	}

	i.Status = StatusCancelled
	i.ExecutionNotes = reason
	return nil
}

// Evaluate records effectiveness feedback after execution. The score must be
// in [1,5]; the stored status does not change.
func (i *Intervention) Evaluate(effectivenessScore int, userResponse string) error {
	if i.Status != StatusExecuted {
		return errors.ErrNotExecuted
	}
	if effectivenessScore < 1 || effectivenessScore > 5 {
		return errors.ErrInvalidEffectivenessScore
	}

	i.EffectivenessScore = &effectivenessScore
	if userResponse != "" {
		i.UserResponse = userResponse
	}
	return nil
}

// IsExpired is the read-time expiry condition for non-terminal
// interventions.
func (i *Intervention) IsExpired(now time.Time) bool {
	return !i.IsTerminal() && i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// IsDue reports whether a scheduled intervention's time has arrived.
func (i *Intervention) IsDue(now time.Time) bool {
	return i.Status == StatusScheduled && i.ScheduledFor != nil && !i.ScheduledFor.After(now)
}
