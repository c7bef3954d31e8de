package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionRepository handles conversation session persistence.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new conversation session.
func (r *SessionRepository) Create(ctx context.Context, session *ConversationSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	session.StartedAt = now
	session.LastActivityAt = now
	session.Active = true
	if session.Context == nil {
		session.Context = []byte("{}")
	}

	query := `
		INSERT INTO chat_sessions (id, session_key, ip_address, started_at, last_activity_at,
			ai_calls_count, context, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.SessionKey, session.IPAddress, session.StartedAt,
		session.LastActivityAt, session.AICallsCount, string(session.Context), session.Active,
	)
	return err
}

// GetByKey retrieves a session by its session key.
func (r *SessionRepository) GetByKey(ctx context.Context, key string) (*ConversationSession, error) {
	query := `
		SELECT id, session_key, ip_address, started_at, last_activity_at,
			ai_calls_count, context, active
		FROM chat_sessions WHERE session_key = $1
	`
	session := &ConversationSession{}
	var contextStr string
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&session.ID, &session.SessionKey, &session.IPAddress, &session.StartedAt,
		&session.LastActivityAt, &session.AICallsCount, &contextStr, &session.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	session.Context = []byte(contextStr)
	return session, err
}

// Touch updates the session's last activity timestamp.
func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE chat_sessions SET last_activity_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// UpdateContext replaces the pending-flow context.
func (r *SessionRepository) UpdateContext(ctx context.Context, id uuid.UUID, payload []byte) error {
	if payload == nil {
		payload = []byte("{}")
	}
	query := `UPDATE chat_sessions SET context = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, string(payload), id)
	return err
}

// IncrementAICalls bumps the session's AI call counter.
func (r *SessionRepository) IncrementAICalls(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE chat_sessions SET ai_calls_count = ai_calls_count + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// Close marks the session inactive and clears its context.
func (r *SessionRepository) Close(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE chat_sessions SET active = $1, context = '{}' WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, false, id)
	return err
}

// CloseExpired marks every session past the TTL as inactive. Returns the
// number of sessions closed.
func (r *SessionRepository) CloseExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	query := `UPDATE chat_sessions SET active = $1 WHERE active = $2 AND last_activity_at < $3`
	res, err := r.db.ExecContext(ctx, query, false, true, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MessageRepository handles chat message persistence. Messages are
// append-only: there are no update or delete operations.
type MessageRepository struct {
	db DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends a message to a session.
func (r *MessageRepository) Create(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = time.Now()

	query := `
		INSERT INTO chat_messages (id, session_id, role, content, intent, source,
			faq_used_id, tokens_used, response_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Intent, msg.Source,
		msg.FAQUsedID, msg.TokensUsed, msg.ResponseTimeMs, msg.CreatedAt,
	)
	return err
}

// ListRecent returns the last n messages of a session in chronological order.
func (r *MessageRepository) ListRecent(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error) {
	query := `
		SELECT id, session_id, role, content, intent, source, faq_used_id,
			tokens_used, response_time_ms, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Intent,
			&msg.Source, &msg.FAQUsedID, &msg.TokensUsed, &msg.ResponseTimeMs,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, rows.Err()
}

// ListOldest returns the first n messages of a session in chronological order.
func (r *MessageRepository) ListOldest(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error) {
	query := `
		SELECT id, session_id, role, content, intent, source, faq_used_id,
			tokens_used, response_time_ms, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Intent,
			&msg.Source, &msg.FAQUsedID, &msg.TokensUsed, &msg.ResponseTimeMs,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// FAQRepository handles FAQ persistence.
type FAQRepository struct {
	db DB
}

// NewFAQRepository creates a new FAQ repository.
func NewFAQRepository(db DB) *FAQRepository {
	return &FAQRepository{db: db}
}

// Create inserts a FAQ.
func (r *FAQRepository) Create(ctx context.Context, faq *FAQ) error {
	if faq.ID == uuid.Nil {
		faq.ID = uuid.New()
	}
	now := time.Now()
	faq.CreatedAt = now
	faq.UpdatedAt = now

	query := `
		INSERT INTO faqs (id, question, category, keywords, answer, humanized_answer, origin,
			times_used, approved, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		faq.ID, faq.Question, faq.Category, faq.Keywords, faq.Answer, faq.HumanizedAnswer,
		faq.Origin, faq.TimesUsed, faq.Approved, faq.Active, faq.CreatedAt, faq.UpdatedAt,
	)
	return err
}

// ListApproved returns active approved FAQs in stable order. The ordering
// makes score ties deterministic: the earliest FAQ wins.
func (r *FAQRepository) ListApproved(ctx context.Context) ([]*FAQ, error) {
	query := `
		SELECT id, question, category, keywords, answer, humanized_answer, origin,
			times_used, approved, active, created_at, updated_at
		FROM faqs
		WHERE approved = $1 AND active = $2
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, true, true)
}

// ListPending returns unapproved FAQ proposals awaiting review.
func (r *FAQRepository) ListPending(ctx context.Context) ([]*FAQ, error) {
	query := `
		SELECT id, question, category, keywords, answer, humanized_answer, origin,
			times_used, approved, active, created_at, updated_at
		FROM faqs
		WHERE approved = $1 AND active = $2
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, false, true)
}

func (r *FAQRepository) list(ctx context.Context, query string, args ...interface{}) ([]*FAQ, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faqs []*FAQ
	for rows.Next() {
		faq := &FAQ{}
		if err := rows.Scan(
			&faq.ID, &faq.Question, &faq.Category, &faq.Keywords, &faq.Answer, &faq.HumanizedAnswer,
			&faq.Origin, &faq.TimesUsed, &faq.Approved, &faq.Active,
			&faq.CreatedAt, &faq.UpdatedAt,
		); err != nil {
			return nil, err
		}
		faqs = append(faqs, faq)
	}
	return faqs, rows.Err()
}

// Approve marks a FAQ proposal as approved.
func (r *FAQRepository) Approve(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE faqs SET approved = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, true, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsByQuestion reports whether a FAQ already covers the exact question,
// ignoring case. Used to avoid duplicate AI proposals.
func (r *FAQRepository) ExistsByQuestion(ctx context.Context, question string) (bool, error) {
	query := `SELECT COUNT(1) FROM faqs WHERE LOWER(question) = LOWER($1)`
	var n int
	if err := r.db.QueryRowContext(ctx, query, question).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementUsage bumps a FAQ's usage counter.
func (r *FAQRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE faqs SET times_used = times_used + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// CachedAnswerRepository handles learned answer cache persistence.
type CachedAnswerRepository struct {
	db DB
}

// NewCachedAnswerRepository creates a new cached answer repository.
func NewCachedAnswerRepository(db DB) *CachedAnswerRepository {
	return &CachedAnswerRepository{db: db}
}

// Create stores a cached answer.
func (r *CachedAnswerRepository) Create(ctx context.Context, ca *CachedAnswer) error {
	if ca.ID == uuid.Nil {
		ca.ID = uuid.New()
	}
	ca.CreatedAt = time.Now()
	ca.Valid = true

	query := `
		INSERT INTO cached_answers (id, intent, normalized_question, context_data,
			answer, times_used, valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		ca.ID, ca.Intent, ca.NormalizedQuestion, ca.ContextData, ca.Answer,
		ca.TimesUsed, ca.Valid, ca.CreatedAt,
	)
	return err
}

// ListValidByIntent returns valid cache entries for an intent in stable order.
func (r *CachedAnswerRepository) ListValidByIntent(ctx context.Context, intent string) ([]*CachedAnswer, error) {
	query := `
		SELECT id, intent, normalized_question, context_data, answer,
			times_used, valid, created_at
		FROM cached_answers
		WHERE intent = $1 AND valid = $2
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, intent, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*CachedAnswer
	for rows.Next() {
		ca := &CachedAnswer{}
		if err := rows.Scan(
			&ca.ID, &ca.Intent, &ca.NormalizedQuestion, &ca.ContextData,
			&ca.Answer, &ca.TimesUsed, &ca.Valid, &ca.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, ca)
	}
	return entries, rows.Err()
}

// IncrementUsage bumps a cache entry's usage counter.
func (r *CachedAnswerRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE cached_answers SET times_used = times_used + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// Invalidate marks every cache entry for an intent as stale.
func (r *CachedAnswerRepository) Invalidate(ctx context.Context, intent string) error {
	query := `UPDATE cached_answers SET valid = $1 WHERE intent = $2`
	_, err := r.db.ExecContext(ctx, query, false, intent)
	return err
}

// KnowledgeRepository handles knowledge-base document persistence.
type KnowledgeRepository struct {
	db DB
}

// NewKnowledgeRepository creates a new knowledge repository.
func NewKnowledgeRepository(db DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// Create inserts a document.
func (r *KnowledgeRepository) Create(ctx context.Context, doc *KnowledgeDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	query := `
		INSERT INTO kb_documents (id, title, content, keywords, active, times_used,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.Content, doc.Keywords, doc.Active, doc.TimesUsed,
		doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// UpdateKeywords replaces a document's generated keywords.
func (r *KnowledgeRepository) UpdateKeywords(ctx context.Context, id uuid.UUID, keywords StringList) error {
	query := `UPDATE kb_documents SET keywords = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, keywords, time.Now(), id)
	return err
}

// ListActive returns active documents in stable order.
func (r *KnowledgeRepository) ListActive(ctx context.Context) ([]*KnowledgeDocument, error) {
	query := `
		SELECT id, title, content, keywords, active, times_used, created_at, updated_at
		FROM kb_documents
		WHERE active = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, true)
}

// ListAll returns every document.
func (r *KnowledgeRepository) ListAll(ctx context.Context) ([]*KnowledgeDocument, error) {
	query := `
		SELECT id, title, content, keywords, active, times_used, created_at, updated_at
		FROM kb_documents
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query)
}

func (r *KnowledgeRepository) list(ctx context.Context, query string, args ...interface{}) ([]*KnowledgeDocument, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*KnowledgeDocument
	for rows.Next() {
		doc := &KnowledgeDocument{}
		if err := rows.Scan(
			&doc.ID, &doc.Title, &doc.Content, &doc.Keywords, &doc.Active,
			&doc.TimesUsed, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// IncrementUsage bumps usage counters for a batch of documents in one
// statement, applied after scoring completes.
func (r *KnowledgeRepository) IncrementUsage(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE kb_documents SET times_used = times_used + 1 WHERE id IN (`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ", "
		}
		query += placeholder(i + 1)
		args[i] = id
	}
	query += ")"
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// SuggestionRepository handles improvement suggestion persistence.
type SuggestionRepository struct {
	db DB
}

// NewSuggestionRepository creates a new suggestion repository.
func NewSuggestionRepository(db DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// Create inserts a suggestion in state nueva.
func (r *SuggestionRepository) Create(ctx context.Context, s *Suggestion) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.State == "" {
		s.State = SuggestionNueva
	}
	if s.Category == "" {
		s.Category = SuggestionOtro
	}
	if s.TimesDetected == 0 {
		s.TimesDetected = 1
	}

	query := `
		INSERT INTO suggestions (id, topic, normalized_topic, category, state,
			times_detected, last_example, last_session_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Topic, s.NormalizedTopic, s.Category, s.State, s.TimesDetected,
		s.LastExample, s.LastSessionKey, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// ListOpen returns suggestions still subject to dedup (nueva or revisada).
func (r *SuggestionRepository) ListOpen(ctx context.Context) ([]*Suggestion, error) {
	query := `
		SELECT id, topic, normalized_topic, category, state, times_detected,
			last_example, last_session_key, created_at, updated_at
		FROM suggestions
		WHERE state IN ($1, $2)
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, SuggestionNueva, SuggestionRevisada)
}

// ListByState returns suggestions in one workflow state.
func (r *SuggestionRepository) ListByState(ctx context.Context, state SuggestionState) ([]*Suggestion, error) {
	query := `
		SELECT id, topic, normalized_topic, category, state, times_detected,
			last_example, last_session_key, created_at, updated_at
		FROM suggestions
		WHERE state = $1
		ORDER BY times_detected DESC, created_at ASC
	`
	return r.list(ctx, query, state)
}

func (r *SuggestionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*Suggestion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suggestions []*Suggestion
	for rows.Next() {
		s := &Suggestion{}
		if err := rows.Scan(
			&s.ID, &s.Topic, &s.NormalizedTopic, &s.Category, &s.State,
			&s.TimesDetected, &s.LastExample, &s.LastSessionKey,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

// IncrementDetection records another sighting of an existing suggestion.
func (r *SuggestionRepository) IncrementDetection(ctx context.Context, id uuid.UUID, example, sessionKey string) error {
	query := `
		UPDATE suggestions
		SET times_detected = times_detected + 1, last_example = $1,
			last_session_key = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, example, sessionKey, time.Now(), id)
	return err
}

// UpdateState moves a suggestion through the review workflow.
func (r *SuggestionRepository) UpdateState(ctx context.Context, id uuid.UUID, state SuggestionState) error {
	query := `UPDATE suggestions SET state = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, state, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HandoffRepository handles operator-handoff log persistence.
type HandoffRepository struct {
	db DB
}

// NewHandoffRepository creates a new handoff repository.
func NewHandoffRepository(db DB) *HandoffRepository {
	return &HandoffRepository{db: db}
}

// Create records a handoff.
func (r *HandoffRepository) Create(ctx context.Context, h *Handoff) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt = time.Now()

	query := `
		INSERT INTO handoffs (id, session_id, branch_id, channel, summary,
			client_phone, in_hours, email_sent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.SessionID, h.BranchID, h.Channel, h.Summary,
		h.ClientPhone, h.InHours, h.EmailSent, h.CreatedAt,
	)
	return err
}

// ListRecent returns the latest handoffs.
func (r *HandoffRepository) ListRecent(ctx context.Context, n int) ([]*Handoff, error) {
	query := `
		SELECT id, session_id, branch_id, channel, summary, client_phone,
			in_hours, email_sent, created_at
		FROM handoffs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var handoffs []*Handoff
	for rows.Next() {
		h := &Handoff{}
		if err := rows.Scan(
			&h.ID, &h.SessionID, &h.BranchID, &h.Channel, &h.Summary,
			&h.ClientPhone, &h.InHours, &h.EmailSent, &h.CreatedAt,
		); err != nil {
			return nil, err
		}
		handoffs = append(handoffs, h)
	}
	return handoffs, rows.Err()
}

// AIUsageRepository handles provider usage log persistence.
type AIUsageRepository struct {
	db DB
}

// NewAIUsageRepository creates a new AI usage repository.
func NewAIUsageRepository(db DB) *AIUsageRepository {
	return &AIUsageRepository{db: db}
}

// Create records one provider call.
func (r *AIUsageRepository) Create(ctx context.Context, log *AIUsageLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.CreatedAt = time.Now()

	query := `
		INSERT INTO ai_usage_logs (id, session_id, provider, model, tokens_input,
			tokens_output, estimated_cost, latency_ms, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.SessionID, log.Provider, log.Model, log.TokensInput,
		log.TokensOutput, log.EstimatedCost, log.LatencyMs, log.Success,
		log.ErrorMessage, log.CreatedAt,
	)
	return err
}

// CountSuccessfulSince counts successful calls after the cutoff. Used as the
// daily-ceiling fallback when no counter backend is available.
func (r *AIUsageRepository) CountSuccessfulSince(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM ai_usage_logs WHERE success = $1 AND created_at >= $2`
	var n int64
	err := r.db.QueryRowContext(ctx, query, true, since).Scan(&n)
	return n, err
}

// UsageTotals aggregates provider usage for reporting.
type UsageTotals struct {
	Calls        int64   `json:"calls"`
	Failures     int64   `json:"failures"`
	TokensInput  int64   `json:"tokens_input"`
	TokensOutput int64   `json:"tokens_output"`
	TotalCost    float64 `json:"total_cost"`
}

// TotalsSince aggregates usage after the cutoff.
func (r *AIUsageRepository) TotalsSince(ctx context.Context, since time.Time) (*UsageTotals, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(tokens_input), 0),
			COALESCE(SUM(tokens_output), 0),
			COALESCE(SUM(estimated_cost), 0)
		FROM ai_usage_logs
		WHERE created_at >= $1
	`
	totals := &UsageTotals{}
	err := r.db.QueryRowContext(ctx, query, since).Scan(
		&totals.Calls, &totals.Failures, &totals.TokensInput,
		&totals.TokensOutput, &totals.TotalCost,
	)
	return totals, err
}

// BranchRepository handles inspection branch lookups.
type BranchRepository struct {
	db DB
}

// NewBranchRepository creates a new branch repository.
func NewBranchRepository(db DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// Create inserts a branch.
func (r *BranchRepository) Create(ctx context.Context, b *Branch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	query := `
		INSERT INTO branches (id, name, address, phone, whatsapp, operator_email,
			open_time, close_time, attendance_days, non_working_dates, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.Name, b.Address, b.Phone, b.WhatsApp, b.OperatorEmail,
		b.OpenTime, b.CloseTime, b.AttendanceDays, b.NonWorkingDates, b.Active,
	)
	return err
}

// GetByID retrieves an active branch by ID.
func (r *BranchRepository) GetByID(ctx context.Context, id uuid.UUID) (*Branch, error) {
	query := `
		SELECT id, name, address, phone, whatsapp, operator_email, open_time,
			close_time, attendance_days, non_working_dates, active
		FROM branches WHERE id = $1 AND active = $2
	`
	b := &Branch{}
	err := r.db.QueryRowContext(ctx, query, id, true).Scan(
		&b.ID, &b.Name, &b.Address, &b.Phone, &b.WhatsApp, &b.OperatorEmail,
		&b.OpenTime, &b.CloseTime, &b.AttendanceDays, &b.NonWorkingDates, &b.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListActive returns active branches in stable order.
func (r *BranchRepository) ListActive(ctx context.Context) ([]*Branch, error) {
	query := `
		SELECT id, name, address, phone, whatsapp, operator_email, open_time,
			close_time, attendance_days, non_working_dates, active
		FROM branches
		WHERE active = $1
		ORDER BY name ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []*Branch
	for rows.Next() {
		b := &Branch{}
		if err := rows.Scan(
			&b.ID, &b.Name, &b.Address, &b.Phone, &b.WhatsApp, &b.OperatorEmail,
			&b.OpenTime, &b.CloseTime, &b.AttendanceDays, &b.NonWorkingDates, &b.Active,
		); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// TariffRepository handles inspection tariff lookups.
type TariffRepository struct {
	db DB
}

// NewTariffRepository creates a new tariff repository.
func NewTariffRepository(db DB) *TariffRepository {
	return &TariffRepository{db: db}
}

// ListActive returns active tariffs ordered by category.
func (r *TariffRepository) ListActive(ctx context.Context) ([]*Tariff, error) {
	query := `
		SELECT id, category, description, amount, active
		FROM tariffs
		WHERE active = $1
		ORDER BY category ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tariffs []*Tariff
	for rows.Next() {
		t := &Tariff{}
		if err := rows.Scan(&t.ID, &t.Category, &t.Description, &t.Amount, &t.Active); err != nil {
			return nil, err
		}
		tariffs = append(tariffs, t)
	}
	return tariffs, rows.Err()
}

// AppointmentRepository handles inspection appointment lookups.
type AppointmentRepository struct {
	db DB
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// GetByTicketCode retrieves an appointment by its ticket code.
func (r *AppointmentRepository) GetByTicketCode(ctx context.Context, code string) (*Appointment, error) {
	query := `
		SELECT a.id, a.ticket_code, a.plate, a.branch_id, b.name, a.client_name,
			a.client_email, a.scheduled_at, a.status
		FROM appointments a
		JOIN branches b ON b.id = a.branch_id
		WHERE UPPER(a.ticket_code) = UPPER($1)
	`
	return r.get(ctx, query, code)
}

// GetByPlate retrieves the most recent appointment for a plate.
func (r *AppointmentRepository) GetByPlate(ctx context.Context, plate string) (*Appointment, error) {
	query := `
		SELECT a.id, a.ticket_code, a.plate, a.branch_id, b.name, a.client_name,
			a.client_email, a.scheduled_at, a.status
		FROM appointments a
		JOIN branches b ON b.id = a.branch_id
		WHERE UPPER(a.plate) = UPPER($1)
		ORDER BY a.scheduled_at DESC
		LIMIT 1
	`
	return r.get(ctx, query, plate)
}

func (r *AppointmentRepository) get(ctx context.Context, query string, args ...interface{}) (*Appointment, error) {
	appt := &Appointment{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&appt.ID, &appt.TicketCode, &appt.Plate, &appt.BranchID, &appt.BranchName,
		&appt.ClientName, &appt.ClientEmail, &appt.ScheduledAt, &appt.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return appt, err
}

// UpdateStatus moves an appointment to a new status.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	query := `UPDATE appointments SET status = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// placeholder returns the ordinal SQL placeholder for position n.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
