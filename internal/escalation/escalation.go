// Package escalation derives conversations to a human operator. It checks
// branch operating hours, builds WhatsApp deep links and handoff emails, and
// drives the multi-step branch-selection and phone-capture flow.
package escalation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/nlp"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

const (
	shortSummaryMessages = 8
	shortSummaryChars    = 300
	emailSummaryMessages = 15
)

var (
	branchActionPattern = regexp.MustCompile(`seleccionar_planta_([0-9a-fA-F-]{36})`)
	phoneSeparators     = regexp.MustCompile(`[\s\-\(\)\+]`)
	phonePattern        = regexp.MustCompile(`(\d{10,13})`)
	digitsOnly          = regexp.MustCompile(`[^\d]`)
)

// weekdayNames indexes lowercase Spanish day names by time.Weekday.
var weekdayNames = map[time.Weekday]string{
	time.Monday:    "lunes",
	time.Tuesday:   "martes",
	time.Wednesday: "miercoles",
	time.Thursday:  "jueves",
	time.Friday:    "viernes",
	time.Saturday:  "sabado",
	time.Sunday:    "domingo",
}

// InHours reports whether the branch is attending right now: the local time
// is within [open, close], the weekday is an attendance day and the date is
// not flagged as non-working.
func InHours(branch *storage.Branch, now time.Time) bool {
	open, err := parseClock(branch.OpenTime)
	if err != nil {
		return false
	}
	closing, err := parseClock(branch.CloseTime)
	if err != nil {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if minute < open || minute > closing {
		return false
	}

	day := weekdayNames[now.Weekday()]
	attending := false
	for _, d := range branch.AttendanceDays {
		if d == day {
			attending = true
			break
		}
	}
	if !attending {
		return false
	}

	date := now.Format("2006-01-02")
	for _, d := range branch.NonWorkingDates {
		if d == date {
			return false
		}
	}
	return true
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// WhatsAppLink builds a wa.me deep link with the conversation summary
// pre-loaded as the first message.
func WhatsAppLink(number, summary string) string {
	text := fmt.Sprintf("Hola, vengo del asistente virtual. %s", summary)
	return fmt.Sprintf("https://wa.me/%s?text=%s", number, url.QueryEscape(text))
}

// shortSummary joins the last messages as "Role: text" capped to a length
// that fits a WhatsApp pre-loaded message.
func shortSummary(messages []*storage.Message, maxChars int) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, fmt.Sprintf("%s: %s", roleName(msg.Role), nlp.Truncate(msg.Content, 100)))
	}
	summary := strings.Join(parts, " | ")
	if len([]rune(summary)) > maxChars {
		summary = nlp.Truncate(summary, maxChars) + "..."
	}
	return summary
}

// emailSummary lists the conversation oldest-first with timestamps.
func emailSummary(messages []*storage.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			msg.CreatedAt.Format("15:04"), roleName(msg.Role), msg.Content))
	}
	return strings.Join(lines, "\n")
}

func roleName(role storage.MessageRole) string {
	if role == storage.RoleUser {
		return "Cliente"
	}
	return "Asistente"
}

// extractPhone pulls a client phone number out of free text. Argentine cell
// numbers run 10 to 13 digits once separators are stripped.
func extractPhone(text string) string {
	clean := phoneSeparators.ReplaceAllString(text, "")
	if m := phonePattern.FindString(clean); m != "" {
		return m
	}
	return ""
}

// wantsSendWithoutPhone detects the explicit "send it anyway" replies.
func wantsSendWithoutPhone(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "enviar", "enviar email", "enviar sin celular", "no", "no tengo":
		return true
	}
	return strings.HasPrefix(text, "enviar_email_sin_cel")
}

// identifyBranch resolves which branch the user picked: by selection action
// payload, by partial name match in either direction, or by 1-based list
// position.
func identifyBranch(message string, branches []*storage.Branch) *storage.Branch {
	if m := branchActionPattern.FindStringSubmatch(message); m != nil {
		if id, err := uuid.Parse(m[1]); err == nil {
			for _, b := range branches {
				if b.ID == id {
					return b
				}
			}
		}
	}

	lower := strings.ToLower(strings.TrimSpace(message))
	for _, b := range branches {
		name := strings.ToLower(b.Name)
		if strings.Contains(lower, name) || strings.Contains(name, lower) {
			return b
		}
	}

	if n, err := strconv.Atoi(strings.TrimSpace(message)); err == nil {
		if n >= 1 && n <= len(branches) {
			return branches[n-1]
		}
	}
	return nil
}
