// Package chat orchestrates one conversation turn: session bookkeeping,
// pending multi-step flows, the resolver, deferrals and the humanizer, plus
// message persistence around all of it.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/escalation"
	"github.com/rtvpioli/assistant-engine/internal/humanizer"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/resolver"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

var (
	// ErrSessionNotFound means the session key is unknown or already closed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired means the session passed its TTL and was closed.
	ErrSessionExpired = errors.New("session expired")
)

const branchSelectionPrefix = "seleccionar_planta_"

// TurnReply is what the widget renders after one message.
type TurnReply struct {
	SessionKey    string            `json:"session_key,omitempty"`
	Text          string            `json:"text"`
	Intent        string            `json:"intent,omitempty"`
	Source        string            `json:"source,omitempty"`
	Actions       []resolver.Action `json:"actions,omitempty"`
	SessionClosed bool              `json:"session_closed,omitempty"`
}

// SessionStore is the session persistence surface the service needs.
type SessionStore interface {
	Create(ctx context.Context, session *storage.ConversationSession) error
	GetByKey(ctx context.Context, key string) (*storage.ConversationSession, error)
	Touch(ctx context.Context, id uuid.UUID) error
	UpdateContext(ctx context.Context, id uuid.UUID, payload []byte) error
	Close(ctx context.Context, id uuid.UUID) error
}

// MessageStore appends chat messages.
type MessageStore interface {
	Create(ctx context.Context, msg *storage.Message) error
}

// Resolver is the deterministic layer.
type Resolver interface {
	Resolve(ctx context.Context, text string) (*resolver.Result, error)
}

// Humanizer is the generative layer.
type Humanizer interface {
	Humanize(ctx context.Context, session *storage.ConversationSession, res *resolver.Result) *humanizer.Reply
}

// Escalator drives the multi-step operator handoff.
type Escalator interface {
	ProcessPending(ctx context.Context, session *storage.ConversationSession, message string) (*escalation.Outcome, error)
	HandleDeferral(ctx context.Context, session *storage.ConversationSession, data string) (*escalation.Outcome, error)
}

// Service handles complete conversation turns.
type Service struct {
	sessions       SessionStore
	messages       MessageStore
	resolver       Resolver
	humanizer      Humanizer
	escalator      Escalator
	welcomeMessage string
	sessionTTL     time.Duration
	logger         *observability.Logger
	now            func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(sessions SessionStore, messages MessageStore, res Resolver, hum Humanizer,
	esc Escalator, welcomeMessage string, sessionTTL time.Duration,
	logger *observability.Logger, opts ...Option) *Service {
	s := &Service{
		sessions:       sessions,
		messages:       messages,
		resolver:       res,
		humanizer:      hum,
		escalator:      esc,
		welcomeMessage: welcomeMessage,
		sessionTTL:     sessionTTL,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Welcome opens a new session and returns the greeting turn.
func (s *Service) Welcome(ctx context.Context, clientIP string) (*TurnReply, error) {
	now := s.now()
	session := &storage.ConversationSession{
		ID:             uuid.New(),
		SessionKey:     strings.ReplaceAll(uuid.New().String(), "-", ""),
		IPAddress:      clientIP,
		StartedAt:      now,
		LastActivityAt: now,
		Active:         true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.persistAssistantMessage(ctx, session, &TurnReply{
		Text:   s.welcomeMessage,
		Intent: "bienvenida",
		Source: string(storage.SourceHardcoded),
	}, 0, 0, uuid.Nil)

	s.logger.Info().Str("session_key", session.SessionKey).Str("ip", clientIP).
		Msg("Session started")

	return &TurnReply{
		SessionKey: session.SessionKey,
		Text:       s.welcomeMessage,
		Intent:     "bienvenida",
		Source:     string(storage.SourceHardcoded),
	}, nil
}

// Handle runs one full turn for an existing session.
func (s *Service) Handle(ctx context.Context, sessionKey, text string) (*TurnReply, error) {
	start := s.now()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty message")
	}

	session, err := s.sessions.GetByKey(ctx, sessionKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, ErrSessionNotFound
	}
	if session.Expired(s.sessionTTL, s.now()) {
		if err := s.sessions.Close(ctx, session.ID); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close expired session")
		}
		return nil, ErrSessionExpired
	}

	if err := s.sessions.Touch(ctx, session.ID); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to touch session")
	}

	if err := s.messages.Create(ctx, &storage.Message{
		SessionID: session.ID,
		Role:      storage.RoleUser,
		Content:   text,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist user message")
	}

	// Multi-step flows intercept the message before classification. A reply
	// to "which branch?" must not be re-classified as a fresh question.
	outcome, err := s.escalator.ProcessPending(ctx, session, text)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return s.finishOutcome(ctx, session, outcome, start), nil
	}

	res, err := s.resolver.Resolve(ctx, text)
	if err != nil {
		return nil, err
	}

	if escalation.IsDeferral(res.Data) {
		outcome, err := s.escalator.HandleDeferral(ctx, session, res.Data)
		if err != nil {
			return nil, err
		}
		return s.finishOutcome(ctx, session, outcome, start), nil
	}

	if hasBranchSelection(res.Actions) {
		s.storeBranchSelectionContext(ctx, session, res)
	}

	reply := s.humanizer.Humanize(ctx, session, res)

	actions := reply.Actions
	if len(actions) == 0 {
		actions = res.Actions
	}

	turn := &TurnReply{
		Text:    reply.Text,
		Intent:  string(res.Intent),
		Source:  string(reply.Source),
		Actions: actions,
	}
	s.persistAssistantMessage(ctx, session, turn, reply.TokensUsed, s.elapsedMs(start), res.FAQID)
	return turn, nil
}

func (s *Service) finishOutcome(ctx context.Context, session *storage.ConversationSession,
	outcome *escalation.Outcome, start time.Time) *TurnReply {
	turn := &TurnReply{
		Text:          outcome.Reply,
		Intent:        string(outcome.Intent),
		Source:        string(outcome.Source),
		Actions:       outcome.Actions,
		SessionClosed: outcome.SessionClosed,
	}
	s.persistAssistantMessage(ctx, session, turn, 0, s.elapsedMs(start), uuid.Nil)
	return turn
}

func (s *Service) persistAssistantMessage(ctx context.Context, session *storage.ConversationSession,
	turn *TurnReply, tokens, elapsedMs int, faqID uuid.UUID) {
	err := s.messages.Create(ctx, &storage.Message{
		SessionID:      session.ID,
		Role:           storage.RoleAssistant,
		Content:        turn.Text,
		Intent:         turn.Intent,
		Source:         storage.AnswerSource(turn.Source),
		FAQUsedID:      faqID,
		TokensUsed:     tokens,
		ResponseTimeMs: elapsedMs,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist assistant message")
	}
}

// storeBranchSelectionContext arms the pending context so the next message
// is matched against the offered branches instead of being re-classified.
func (s *Service) storeBranchSelectionContext(ctx context.Context, session *storage.ConversationSession, res *resolver.Result) {
	pc := escalation.PendingContext{
		Awaiting:        escalation.AwaitingBranchSelection,
		PreviousActions: res.Actions,
		OriginIntent:    string(res.Intent),
	}
	payload, err := json.Marshal(pc)
	if err != nil {
		return
	}
	if err := s.sessions.UpdateContext(ctx, session.ID, payload); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store branch selection context")
		return
	}
	session.Context = payload
}

func hasBranchSelection(actions []resolver.Action) bool {
	for _, a := range actions {
		if strings.HasPrefix(a.Action, branchSelectionPrefix) {
			return true
		}
	}
	return false
}

func (s *Service) elapsedMs(start time.Time) int {
	return int(s.now().Sub(start).Milliseconds())
}
