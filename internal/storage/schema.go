package storage

import (
	"context"
	"fmt"
)

// schemaStatements are idempotent and portable across sqlite and postgres.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		session_key TEXT UNIQUE NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		last_activity_at TIMESTAMP NOT NULL,
		ai_calls_count INTEGER NOT NULL DEFAULT 0,
		context TEXT NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		intent TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		faq_used_id TEXT NOT NULL DEFAULT '00000000-0000-0000-0000-000000000000',
		tokens_used INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session
		ON chat_messages(session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS faqs (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		answer TEXT NOT NULL,
		humanized_answer TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT 'manual',
		times_used INTEGER NOT NULL DEFAULT 0,
		approved BOOLEAN NOT NULL DEFAULT TRUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cached_answers (
		id TEXT PRIMARY KEY,
		intent TEXT NOT NULL,
		normalized_question TEXT NOT NULL,
		context_data TEXT NOT NULL DEFAULT '',
		answer TEXT NOT NULL,
		times_used INTEGER NOT NULL DEFAULT 0,
		valid BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cached_answers_intent
		ON cached_answers(intent, valid)`,
	`CREATE TABLE IF NOT EXISTS kb_documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		keywords TEXT NOT NULL DEFAULT '[]',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		times_used INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		normalized_topic TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'otro',
		state TEXT NOT NULL DEFAULT 'nueva',
		times_detected INTEGER NOT NULL DEFAULT 1,
		last_example TEXT NOT NULL DEFAULT '',
		last_session_key TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS handoffs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id),
		branch_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		client_phone TEXT NOT NULL DEFAULT '',
		in_hours BOOLEAN NOT NULL DEFAULT FALSE,
		email_sent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ai_usage_logs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		tokens_input INTEGER NOT NULL DEFAULT 0,
		tokens_output INTEGER NOT NULL DEFAULT 0,
		estimated_cost REAL NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL DEFAULT TRUE,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_usage_created
		ON ai_usage_logs(created_at, success)`,
	`CREATE TABLE IF NOT EXISTS branches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		whatsapp TEXT NOT NULL DEFAULT '',
		operator_email TEXT NOT NULL DEFAULT '',
		open_time TEXT NOT NULL DEFAULT '08:00',
		close_time TEXT NOT NULL DEFAULT '17:00',
		attendance_days TEXT NOT NULL DEFAULT '[]',
		non_working_dates TEXT NOT NULL DEFAULT '[]',
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS tariffs (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		ticket_code TEXT UNIQUE NOT NULL,
		plate TEXT NOT NULL DEFAULT '',
		branch_id TEXT NOT NULL REFERENCES branches(id),
		client_name TEXT NOT NULL DEFAULT '',
		client_email TEXT NOT NULL DEFAULT '',
		scheduled_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'confirmado'
	)`,
}

// Migrate applies the schema. Every statement is idempotent so repeated
// startup runs are safe.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
