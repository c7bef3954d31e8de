// Package storage provides database models and repositories for the assistant engine.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies who authored a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// AnswerSource tags where a reply came from.
type AnswerSource string

const (
	SourceFAQ       AnswerSource = "faq"
	SourceCache     AnswerSource = "cache"
	SourceDB        AnswerSource = "db"
	SourceHardcoded AnswerSource = "hardcoded"
	SourceNeedsAI   AnswerSource = "needs_ai"
	SourceKBAI      AnswerSource = "kb+ai"
	SourceAI        AnswerSource = "ai"
)

// FAQOrigin distinguishes manually curated FAQs from AI proposals.
type FAQOrigin string

const (
	FAQOriginManual     FAQOrigin = "manual"
	FAQOriginSugeridaIA FAQOrigin = "sugerida_ia"
)

// SuggestionState is the review workflow state of a suggestion.
type SuggestionState string

const (
	SuggestionNueva        SuggestionState = "nueva"
	SuggestionRevisada     SuggestionState = "revisada"
	SuggestionPlanificada  SuggestionState = "planificada"
	SuggestionImplementada SuggestionState = "implementada"
	SuggestionDescartada   SuggestionState = "descartada"
)

// SuggestionCategory groups suggestions for the review team. The tracker
// always files new entries under otro; reviewers reclassify later.
type SuggestionCategory string

const (
	SuggestionFuncionalidad SuggestionCategory = "funcionalidad"
	SuggestionInformacion   SuggestionCategory = "informacion"
	SuggestionServicio      SuggestionCategory = "servicio"
	SuggestionOtro          SuggestionCategory = "otro"
)

// HandoffChannel is how a conversation was routed to an operator.
type HandoffChannel string

const (
	HandoffWhatsApp HandoffChannel = "whatsapp"
	HandoffEmail    HandoffChannel = "email"
)

// AppointmentStatus tracks an inspection appointment lifecycle.
type AppointmentStatus string

const (
	AppointmentConfirmado   AppointmentStatus = "confirmado"
	AppointmentCancelado    AppointmentStatus = "cancelado"
	AppointmentReprogramado AppointmentStatus = "reprogramado"
)

// StringList stores a JSON array of strings in a text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported string list type %T", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// ConversationSession represents one chat-widget conversation.
type ConversationSession struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	SessionKey     string          `json:"session_key" db:"session_key"`
	IPAddress      string          `json:"ip_address" db:"ip_address"`
	StartedAt      time.Time       `json:"started_at" db:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at" db:"last_activity_at"`
	AICallsCount   int             `json:"ai_calls_count" db:"ai_calls_count"`
	Context        json.RawMessage `json:"context" db:"context"`
	Active         bool            `json:"active" db:"active"`
}

// Expired reports whether the session passed its wall-clock TTL.
func (s *ConversationSession) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivityAt) > ttl
}

// Message represents one chat turn. Messages are append-only.
type Message struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	SessionID      uuid.UUID    `json:"session_id" db:"session_id"`
	Role           MessageRole  `json:"role" db:"role"`
	Content        string       `json:"content" db:"content"`
	Intent         string       `json:"intent" db:"intent"`
	Source         AnswerSource `json:"source" db:"source"`
	FAQUsedID      uuid.UUID    `json:"faq_used_id" db:"faq_used_id"`
	TokensUsed     int          `json:"tokens_used" db:"tokens_used"`
	ResponseTimeMs int          `json:"response_time_ms" db:"response_time_ms"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// FAQ represents a curated or AI-proposed frequently asked question.
type FAQ struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	Question        string     `json:"question" db:"question"`
	Category        string     `json:"category" db:"category"`
	Keywords        StringList `json:"keywords" db:"keywords"`
	Answer          string     `json:"answer" db:"answer"`
	HumanizedAnswer string     `json:"humanized_answer" db:"humanized_answer"`
	Origin          FAQOrigin  `json:"origin" db:"origin"`
	TimesUsed       int        `json:"times_used" db:"times_used"`
	Approved        bool       `json:"approved" db:"approved"`
	Active          bool       `json:"active" db:"active"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// CachedAnswer represents a learned AI rephrasing keyed by intent and question.
type CachedAnswer struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	Intent             string    `json:"intent" db:"intent"`
	NormalizedQuestion string    `json:"normalized_question" db:"normalized_question"`
	ContextData        string    `json:"context_data" db:"context_data"`
	Answer             string    `json:"answer" db:"answer"`
	TimesUsed          int       `json:"times_used" db:"times_used"`
	Valid              bool      `json:"valid" db:"valid"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// KnowledgeDocument represents a knowledge-base entry searchable by keywords.
type KnowledgeDocument struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Content   string     `json:"content" db:"content"`
	Keywords  StringList `json:"keywords" db:"keywords"`
	Active    bool       `json:"active" db:"active"`
	TimesUsed int        `json:"times_used" db:"times_used"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Suggestion tracks a topic the assistant repeatedly failed to answer.
type Suggestion struct {
	ID              uuid.UUID          `json:"id" db:"id"`
	Topic           string             `json:"topic" db:"topic"`
	NormalizedTopic string             `json:"normalized_topic" db:"normalized_topic"`
	Category        SuggestionCategory `json:"category" db:"category"`
	State           SuggestionState    `json:"state" db:"state"`
	TimesDetected   int                `json:"times_detected" db:"times_detected"`
	LastExample     string             `json:"last_example" db:"last_example"`
	LastSessionKey  string             `json:"last_session_key" db:"last_session_key"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" db:"updated_at"`
}

// Handoff records a conversation routed to a human operator.
type Handoff struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	SessionID   uuid.UUID      `json:"session_id" db:"session_id"`
	BranchID    uuid.UUID      `json:"branch_id" db:"branch_id"`
	Channel     HandoffChannel `json:"channel" db:"channel"`
	Summary     string         `json:"summary" db:"summary"`
	ClientPhone string         `json:"client_phone" db:"client_phone"`
	InHours     bool           `json:"in_hours" db:"in_hours"`
	EmailSent   bool           `json:"email_sent" db:"email_sent"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// AIUsageLog records one generative-AI provider call.
type AIUsageLog struct {
	ID            uuid.UUID `json:"id" db:"id"`
	SessionID     uuid.UUID `json:"session_id" db:"session_id"`
	Provider      string    `json:"provider" db:"provider"`
	Model         string    `json:"model" db:"model"`
	TokensInput   int       `json:"tokens_input" db:"tokens_input"`
	TokensOutput  int       `json:"tokens_output" db:"tokens_output"`
	EstimatedCost float64   `json:"estimated_cost" db:"estimated_cost"`
	LatencyMs     int       `json:"latency_ms" db:"latency_ms"`
	Success       bool      `json:"success" db:"success"`
	ErrorMessage  string    `json:"error_message" db:"error_message"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Branch represents an inspection plant with its operator contact and hours.
type Branch struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Address  string    `json:"address" db:"address"`
	Phone    string    `json:"phone" db:"phone"`
	WhatsApp string    `json:"whatsapp" db:"whatsapp"`
	// OperatorEmail receives out-of-hours handoff emails.
	OperatorEmail string `json:"operator_email" db:"operator_email"`
	OpenTime      string `json:"open_time" db:"open_time"`   // HH:MM
	CloseTime     string `json:"close_time" db:"close_time"` // HH:MM
	// AttendanceDays lists the lowercase Spanish weekday names the branch
	// is open (lunes..domingo).
	AttendanceDays  StringList `json:"attendance_days" db:"attendance_days"`
	NonWorkingDates StringList `json:"non_working_dates" db:"non_working_dates"` // YYYY-MM-DD
	Active          bool       `json:"active" db:"active"`
}

// Tariff represents the inspection price for one vehicle category.
type Tariff struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Category    string    `json:"category" db:"category"`
	Description string    `json:"description" db:"description"`
	Amount      float64   `json:"amount" db:"amount"`
	Active      bool      `json:"active" db:"active"`
}

// Appointment represents an inspection booking addressable by ticket code or plate.
type Appointment struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	TicketCode  string            `json:"ticket_code" db:"ticket_code"`
	Plate       string            `json:"plate" db:"plate"`
	BranchID    uuid.UUID         `json:"branch_id" db:"branch_id"`
	BranchName  string            `json:"branch_name" db:"branch_name"`
	ClientName  string            `json:"client_name" db:"client_name"`
	ClientEmail string            `json:"client_email" db:"client_email"`
	ScheduledAt time.Time         `json:"scheduled_at" db:"scheduled_at"`
	Status      AppointmentStatus `json:"status" db:"status"`
}

// Past reports whether the appointment date is strictly before today.
func (a *Appointment) Past(now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return a.ScheduledAt.Before(today)
}

// Today reports whether the appointment falls on the current date.
func (a *Appointment) Today(now time.Time) bool {
	return a.ScheduledAt.Year() == now.Year() && a.ScheduledAt.YearDay() == now.YearDay()
}

// Pending reports whether the appointment still awaits its inspection.
func (a *Appointment) Pending() bool {
	return a.Status == AppointmentConfirmado || a.Status == AppointmentReprogramado
}

// CanCancel reports whether the appointment accepts cancellation.
func (a *Appointment) CanCancel(now time.Time) bool {
	return a.Pending() && !a.Past(now)
}

// CanReschedule reports whether the appointment accepts rescheduling.
// Rescheduling requires at least 24 hours of anticipation.
func (a *Appointment) CanReschedule(now time.Time) bool {
	return a.Pending() && a.ScheduledAt.After(now.Add(24*time.Hour))
}
