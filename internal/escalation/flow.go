package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/intent"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/resolver"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

// Flow states stored in the session pending context.
const (
	AwaitingBranchSelection = "branch_selection"
	AwaitingPhoneNumber     = "phone_number"
)

// deferralPrefix marks a resolver data payload that the chat layer must hand
// to the escalation flow instead of the humanizer.
const deferralPrefix = "derivacion_"

const (
	deferralWhatsApp = "derivacion_whatsapp"
	deferralEmail    = "derivacion_email"
)

// PendingContext is the serialized multi-step flow state kept on the session.
type PendingContext struct {
	Awaiting        string            `json:"awaiting,omitempty"`
	BranchID        string            `json:"branch_id,omitempty"`
	PreviousActions []resolver.Action `json:"previous_actions,omitempty"`
	OriginIntent    string            `json:"origin_intent,omitempty"`
}

// ParsePendingContext decodes a session context payload. An empty or invalid
// payload yields a zero context.
func ParsePendingContext(raw json.RawMessage) PendingContext {
	var pc PendingContext
	if len(raw) == 0 {
		return pc
	}
	_ = json.Unmarshal(raw, &pc)
	return pc
}

// Outcome is one escalation flow reply, ready to persist and send back.
type Outcome struct {
	Reply         string
	Intent        intent.ID
	Source        storage.AnswerSource
	Actions       []resolver.Action
	SessionClosed bool
}

// SessionStore mutates the pending context and the active flag.
type SessionStore interface {
	UpdateContext(ctx context.Context, id uuid.UUID, payload []byte) error
	Close(ctx context.Context, id uuid.UUID) error
}

// MessageStore reads conversation history for the handoff summaries.
type MessageStore interface {
	ListRecent(ctx context.Context, sessionID uuid.UUID, n int) ([]*storage.Message, error)
	ListOldest(ctx context.Context, sessionID uuid.UUID, n int) ([]*storage.Message, error)
}

// HandoffStore records every derivation to an operator.
type HandoffStore interface {
	Create(ctx context.Context, h *storage.Handoff) error
}

// BranchStore resolves branches during the flow.
type BranchStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Branch, error)
	ListActive(ctx context.Context) ([]*storage.Branch, error)
}

// HandoffMailer sends the out-of-hours notification email to the branch.
type HandoffMailer interface {
	SendHandoff(ctx context.Context, branch *storage.Branch, session *storage.ConversationSession, summary, clientPhone string) error
}

// Flow runs the operator handoff state machine.
type Flow struct {
	sessions SessionStore
	messages MessageStore
	handoffs HandoffStore
	branches BranchStore
	mailer   HandoffMailer
	logger   *observability.Logger
	now      func() time.Time
}

// Option configures optional Flow collaborators.
type Option func(*Flow)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

func NewFlow(sessions SessionStore, messages MessageStore, handoffs HandoffStore,
	branches BranchStore, mailer HandoffMailer, logger *observability.Logger, opts ...Option) *Flow {
	f := &Flow{
		sessions: sessions,
		messages: messages,
		handoffs: handoffs,
		branches: branches,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start is the resolver's entry point once a branch is known. In hours it
// defers to the WhatsApp path, out of hours to the email path. The deferral
// payload travels through Result.Data so the chat layer resolves it after
// persisting the user message.
func (f *Flow) Start(ctx context.Context, branch *storage.Branch, intentID intent.ID, confidence float64) (*resolver.Result, error) {
	if InHours(branch, f.now()) {
		if branch.WhatsApp == "" {
			phone := branch.Phone
			if phone == "" {
				phone = "número de la planta"
			}
			return &resolver.Result{
				Intent: intentID,
				Answer: fmt.Sprintf("Ahora mismo %s está en horario de atención, "+
					"pero no tenemos un número de WhatsApp configurado. "+
					"Podés comunicarte por teléfono al %s.", branch.Name, phone),
				Source:     storage.SourceHardcoded,
				Confidence: confidence,
			}, nil
		}
		return &resolver.Result{
			Intent:     intentID,
			Data:       fmt.Sprintf("%s|%s", deferralWhatsApp, branch.ID),
			Source:     storage.SourceDB,
			Confidence: confidence,
		}, nil
	}
	return &resolver.Result{
		Intent:     intentID,
		Data:       fmt.Sprintf("%s|%s", deferralEmail, branch.ID),
		Source:     storage.SourceDB,
		Confidence: confidence,
	}, nil
}

// IsDeferral reports whether a resolver data payload belongs to this flow.
func IsDeferral(data string) bool {
	return strings.HasPrefix(data, deferralPrefix)
}

// HandleDeferral consumes a deferral payload produced by Start.
func (f *Flow) HandleDeferral(ctx context.Context, session *storage.ConversationSession, data string) (*Outcome, error) {
	kind, rawID, ok := strings.Cut(data, "|")
	if !ok {
		return nil, fmt.Errorf("malformed deferral payload %q", data)
	}
	branchID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("malformed deferral branch id %q: %w", rawID, err)
	}
	branch, err := f.branches.GetByID(ctx, branchID)
	if err != nil {
		return nil, err
	}

	if kind == deferralWhatsApp {
		return f.deriveWhatsApp(ctx, session, branch)
	}
	return f.askPhone(ctx, session, branch)
}

// ProcessPending intercepts a message when the session carries flow state.
// A nil outcome means there is nothing pending and the message should go
// through the normal pipeline.
func (f *Flow) ProcessPending(ctx context.Context, session *storage.ConversationSession, message string) (*Outcome, error) {
	pc := ParsePendingContext(session.Context)
	switch pc.Awaiting {
	case AwaitingBranchSelection:
		return f.handleBranchSelection(ctx, session, message, pc)
	case AwaitingPhoneNumber:
		return f.handlePhoneNumber(ctx, session, message, pc)
	default:
		return nil, nil
	}
}

func (f *Flow) handleBranchSelection(ctx context.Context, session *storage.ConversationSession, message string, pc PendingContext) (*Outcome, error) {
	branches, err := f.branches.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	branch := identifyBranch(message, branches)
	if branch == nil {
		return &Outcome{
			Reply:   "No pude identificar la planta. ¿Podés indicarme cuál elegís?",
			Intent:  intent.HablarConOperador,
			Source:  storage.SourceHardcoded,
			Actions: pc.PreviousActions,
		}, nil
	}

	if err := f.clearContext(ctx, session); err != nil {
		return nil, err
	}

	if InHours(branch, f.now()) {
		return f.deriveWhatsApp(ctx, session, branch)
	}
	return f.askPhone(ctx, session, branch)
}

func (f *Flow) handlePhoneNumber(ctx context.Context, session *storage.ConversationSession, message string, pc PendingContext) (*Outcome, error) {
	branchID, err := uuid.Parse(pc.BranchID)
	var branch *storage.Branch
	if err == nil {
		branch, err = f.branches.GetByID(ctx, branchID)
	}
	if err != nil {
		// Stale or missing branch: reset the flow instead of wedging the
		// session.
		if cerr := f.clearContext(ctx, session); cerr != nil {
			return nil, cerr
		}
		return &Outcome{
			Reply:  "Hubo un problema. ¿Podés volver a intentar?",
			Intent: intent.HablarConOperador,
			Source: storage.SourceHardcoded,
		}, nil
	}

	phone := extractPhone(message)
	sendAnyway := wantsSendWithoutPhone(message)

	if phone == "" && !sendAnyway {
		// A mistyped number still has enough digits to be usable.
		digits := digitsOnly.ReplaceAllString(message, "")
		if len(digits) >= 8 {
			phone = digits
		} else {
			return &Outcome{
				Reply: "No pude identificar un número de celular. " +
					"Podés escribirlo (ej: 3814123456) o escribí \"enviar\" para mandar tu consulta por email sin celular.",
				Intent: intent.HablarConOperador,
				Source: storage.SourceHardcoded,
				Actions: []resolver.Action{
					{Label: "Enviar sin celular", Action: "enviar_email_sin_cel"},
				},
			}, nil
		}
	}

	return f.deriveEmail(ctx, session, branch, phone)
}

// deriveWhatsApp closes the session and hands the user a pre-filled wa.me
// link. From here on the conversation belongs to a human.
func (f *Flow) deriveWhatsApp(ctx context.Context, session *storage.ConversationSession, branch *storage.Branch) (*Outcome, error) {
	recent, err := f.messages.ListRecent(ctx, session.ID, shortSummaryMessages)
	if err != nil {
		return nil, err
	}
	link := WhatsAppLink(branch.WhatsApp, shortSummary(recent, 200))

	f.recordHandoff(ctx, &storage.Handoff{
		SessionID: session.ID,
		BranchID:  branch.ID,
		Channel:   storage.HandoffWhatsApp,
		Summary:   shortSummary(recent, shortSummaryChars),
		InHours:   true,
	})

	if err := f.closeSession(ctx, session); err != nil {
		return nil, err
	}

	f.logger.Info().
		Str("session_key", session.SessionKey).
		Str("branch", branch.Name).
		Str("channel", string(storage.HandoffWhatsApp)).
		Bool("in_hours", true).
		Msg("Conversation derived to operator")

	return &Outcome{
		Reply: fmt.Sprintf("📲 Te paso el link para hablar con un operador de %s por WhatsApp. "+
			"Esta conversación se cierra, vas a continuar con un operador humano. ¡Éxitos!", branch.Name),
		Intent: intent.HablarConOperador,
		Source: storage.SourceHardcoded,
		Actions: []resolver.Action{
			{Label: fmt.Sprintf("💬 Chatear con %s", branch.Name), URL: link},
		},
		SessionClosed: true,
	}, nil
}

// askPhone moves the flow to the phone-capture state.
func (f *Flow) askPhone(ctx context.Context, session *storage.ConversationSession, branch *storage.Branch) (*Outcome, error) {
	if err := f.setContext(ctx, session, PendingContext{
		Awaiting: AwaitingPhoneNumber,
		BranchID: branch.ID.String(),
	}); err != nil {
		return nil, err
	}

	return &Outcome{
		Reply: fmt.Sprintf("🕐 En este momento %s está fuera del horario de atención. "+
			"Si querés, dejame tu número de celular así te contactan por WhatsApp, "+
			"o escribí \"enviar\" y le mando tu consulta por email al equipo.", branch.Name),
		Intent: intent.HablarConOperador,
		Source: storage.SourceHardcoded,
		Actions: []resolver.Action{
			{Label: "📧 Enviar sin celular", Action: "enviar_email_sin_cel"},
		},
	}, nil
}

// deriveEmail notifies the branch team by email, with the client phone when
// the user left one.
func (f *Flow) deriveEmail(ctx context.Context, session *storage.ConversationSession, branch *storage.Branch, phone string) (*Outcome, error) {
	oldest, err := f.messages.ListOldest(ctx, session.ID, emailSummaryMessages)
	if err != nil {
		return nil, err
	}
	recent, err := f.messages.ListRecent(ctx, session.ID, shortSummaryMessages)
	if err != nil {
		return nil, err
	}

	mailErr := f.mailer.SendHandoff(ctx, branch, session, emailSummary(oldest), phone)
	sent := mailErr == nil
	if mailErr != nil {
		f.logger.Warn().Err(mailErr).Str("branch", branch.Name).Msg("Handoff email failed")
	}

	f.recordHandoff(ctx, &storage.Handoff{
		SessionID:   session.ID,
		BranchID:    branch.ID,
		Channel:     storage.HandoffEmail,
		Summary:     shortSummary(recent, shortSummaryChars),
		ClientPhone: phone,
		InHours:     false,
		EmailSent:   sent,
	})

	if !sent {
		// Email failed: keep the session open so the user can retry.
		if err := f.clearContext(ctx, session); err != nil {
			return nil, err
		}
		branchPhone := branch.Phone
		if branchPhone == "" {
			branchPhone = "teléfono de la planta"
		}
		return &Outcome{
			Reply: fmt.Sprintf("⚠️ No pudimos enviar el email en este momento. "+
				"Te sugerimos intentar más tarde o comunicarte directamente "+
				"con %s al %s.", branch.Name, branchPhone),
			Intent: intent.HablarConOperador,
			Source: storage.SourceHardcoded,
		}, nil
	}

	if err := f.closeSession(ctx, session); err != nil {
		return nil, err
	}

	f.logger.Info().
		Str("session_key", session.SessionKey).
		Str("branch", branch.Name).
		Str("channel", string(storage.HandoffEmail)).
		Bool("in_hours", false).
		Msg("Conversation derived to operator")

	reply := fmt.Sprintf("✅ ¡Listo! Le enviamos tu consulta al equipo de %s.", branch.Name)
	if phone != "" {
		reply += " 📱 Incluimos tu celular para que puedan contactarte por WhatsApp."
	}
	reply += " Te van a contactar a la brevedad. Esta conversación se cierra, ¡gracias por comunicarte! 😊"

	return &Outcome{
		Reply:         reply,
		Intent:        intent.HablarConOperador,
		Source:        storage.SourceHardcoded,
		SessionClosed: true,
	}, nil
}

func (f *Flow) recordHandoff(ctx context.Context, h *storage.Handoff) {
	if err := f.handoffs.Create(ctx, h); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to persist handoff record")
	}
}

func (f *Flow) setContext(ctx context.Context, session *storage.ConversationSession, pc PendingContext) error {
	raw, err := json.Marshal(pc)
	if err != nil {
		return err
	}
	session.Context = raw
	return f.sessions.UpdateContext(ctx, session.ID, raw)
}

func (f *Flow) clearContext(ctx context.Context, session *storage.ConversationSession) error {
	session.Context = json.RawMessage("{}")
	return f.sessions.UpdateContext(ctx, session.ID, session.Context)
}

func (f *Flow) closeSession(ctx context.Context, session *storage.ConversationSession) error {
	if err := f.sessions.Close(ctx, session.ID); err != nil {
		return err
	}
	session.Active = false
	session.Context = json.RawMessage("{}")
	return nil
}
