package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rtvpioli/assistant-engine/internal/nlp"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

// linkValidity is how long the emailed self-management links stay usable.
// The wording in the chat replies promises the same window.
const linkValidity = 48 * time.Hour

// Notifier composes the assistant's domain emails on top of a Mailer. It
// backs both the operator handoff flow and the appointment link senders.
type Notifier struct {
	mailer           Mailer
	companyName      string
	siteURL          string
	linkSecret       string
	reviewRecipients []string
	logger           *observability.Logger
	now              func() time.Time
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func NewNotifier(mailer Mailer, companyName, siteURL, linkSecret string,
	reviewRecipients []string, logger *observability.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		mailer:           mailer,
		companyName:      companyName,
		siteURL:          strings.TrimRight(siteURL, "/"),
		linkSecret:       linkSecret,
		reviewRecipients: reviewRecipients,
		logger:           logger,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SendHandoff emails the branch operators about a client waiting out of
// hours. Implements the escalation flow's mailer contract.
func (n *Notifier) SendHandoff(ctx context.Context, branch *storage.Branch, session *storage.ConversationSession, summary, clientPhone string) error {
	if branch.OperatorEmail == "" {
		return fmt.Errorf("branch %s has no operator email", branch.Name)
	}

	ip := session.IPAddress
	if ip == "" {
		ip = "No disponible"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Estimado equipo de %s,\n\n", branch.Name)
	b.WriteString("Un cliente solicitó atención personalizada a través del asistente virtual " +
		"fuera del horario de atención.\n\n")
	b.WriteString("--- DATOS DEL CLIENTE ---\n")
	fmt.Fprintf(&b, "IP: %s\n", ip)
	fmt.Fprintf(&b, "Sesión iniciada: %s\n", session.StartedAt.Format("02/01/2006 15:04"))
	if clientPhone != "" {
		fmt.Fprintf(&b, "Celular (para contacto por WhatsApp): %s\n", clientPhone)
	}
	b.WriteString("\n--- RESUMEN DE LA CONVERSACIÓN ---\n")
	b.WriteString(summary)
	b.WriteString("\n\nSe sugiere contactar al cliente a la brevedad.\n\n---\n" +
		"Este mensaje fue generado automáticamente por el Asistente Virtual.\n")

	return n.mailer.Send(ctx, []string{branch.OperatorEmail},
		"Solicitud de atención - Asistente Virtual RTV", b.String())
}

// SendCancellationLink emails the client a signed link that confirms the
// cancellation on the booking site.
func (n *Notifier) SendCancellationLink(ctx context.Context, appt *storage.Appointment) error {
	return n.sendAppointmentLink(ctx, appt, "cancelar",
		fmt.Sprintf("Cancelar Turno RTV - %s", appt.TicketCode),
		"Ha solicitado cancelar su turno de Revisión Técnica Vehicular.",
		"Para confirmar la cancelación, ingrese al siguiente enlace:")
}

// SendRescheduleLink emails the client a signed link that opens the
// rescheduling flow on the booking site.
func (n *Notifier) SendRescheduleLink(ctx context.Context, appt *storage.Appointment) error {
	return n.sendAppointmentLink(ctx, appt, "reprogramar",
		fmt.Sprintf("Reprogramar Turno RTV - %s", appt.TicketCode),
		"Ha solicitado reprogramar su turno de Revisión Técnica Vehicular.",
		"Para reprogramar su turno, ingrese al siguiente enlace:")
}

func (n *Notifier) sendAppointmentLink(ctx context.Context, appt *storage.Appointment, action, subject, intro, instruction string) error {
	if appt.ClientEmail == "" {
		return fmt.Errorf("appointment %s has no client email", appt.TicketCode)
	}

	greeting := "Estimado/a cliente"
	if appt.ClientName != "" {
		greeting = "Estimado/a " + appt.ClientName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s,\n\n%s\n\n", greeting, intro)
	fmt.Fprintf(&b, "Código de Turno: %s\n", appt.TicketCode)
	if appt.Plate != "" {
		fmt.Fprintf(&b, "Vehículo: %s\n", appt.Plate)
	}
	fmt.Fprintf(&b, "Fecha: %s\n", appt.ScheduledAt.Format("02/01/2006"))
	fmt.Fprintf(&b, "Horario: %s hs\n", appt.ScheduledAt.Format("15:04"))
	fmt.Fprintf(&b, "Planta: %s\n\n", appt.BranchName)
	fmt.Fprintf(&b, "%s\n%s\n\n", instruction, n.AppointmentLink(action, appt.TicketCode))
	b.WriteString("Este enlace es válido por 48 horas.\n" +
		"Si usted no solicitó este cambio, puede ignorar este mensaje.\n\n" +
		"Saludos cordiales,\n" + n.companyName + " - Revisión Técnica Vehicular")

	return n.mailer.Send(ctx, []string{appt.ClientEmail}, subject, b.String())
}

// AppointmentLink builds the signed self-management URL for a ticket code.
// The booking site validates the signature and the expiry timestamp.
func (n *Notifier) AppointmentLink(action, ticketCode string) string {
	expires := n.now().Add(linkValidity).Unix()
	sig := signLink(n.linkSecret, action, ticketCode, expires)
	return fmt.Sprintf("%s/turnero/%s/%s/?e=%d&t=%s", n.siteURL, action, ticketCode, expires, sig)
}

func signLink(secret, action, ticketCode string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%s:%d", action, ticketCode, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SendSuggestionDigest emails the review recipients a summary of open
// suggestions, most frequent first. Callers pass a pre-filtered window.
func (n *Notifier) SendSuggestionDigest(ctx context.Context, suggestions []*storage.Suggestion) error {
	if len(n.reviewRecipients) == 0 {
		return fmt.Errorf("no review recipients configured")
	}
	if len(suggestions) == 0 {
		return fmt.Errorf("no suggestions to report")
	}

	var b strings.Builder
	b.WriteString("RESUMEN - SUGERENCIAS DEL ASISTENTE VIRTUAL\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Se detectaron %d sugerencia(s) pendientes de revisión:\n\n", len(suggestions))

	for i, sug := range suggestions {
		fmt.Fprintf(&b, "%d. %s (detectada %d vez/veces)\n", i+1, sug.Topic, sug.TimesDetected)
		fmt.Fprintf(&b, "   Estado: %s\n", sug.State)
		if sug.LastExample != "" {
			fmt.Fprintf(&b, "   Ejemplo: %q\n", nlp.Truncate(sug.LastExample, 150))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nPodés gestionar las sugerencias desde el panel de administración.\n")

	return n.mailer.Send(ctx, n.reviewRecipients,
		"Resumen - Sugerencias del Asistente Virtual", b.String())
}
