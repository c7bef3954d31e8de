package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to []string, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func newNotifier(mailer *fakeMailer) *Notifier {
	return NewNotifier(mailer, "RTV Pioli", "https://rtvpioli.com.ar/", "test-secret",
		[]string{"revision@rtvpioli.com.ar"}, observability.DefaultLogger(),
		WithClock(func() time.Time {
			return time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
		}))
}

func testAppointment() *storage.Appointment {
	return &storage.Appointment{
		ID:          uuid.New(),
		TicketCode:  "TRN-A1B2C3",
		Plate:       "AB123CD",
		BranchName:  "Planta Centro",
		ClientName:  "Laura Pérez",
		ClientEmail: "laura@example.com",
		ScheduledAt: time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC),
		Status:      storage.AppointmentConfirmado,
	}
}

func TestSendHandoffIncludesClientDataAndSummary(t *testing.T) {
	mailer := &fakeMailer{}
	n := newNotifier(mailer)

	branch := &storage.Branch{
		Name:          "Planta Centro",
		OperatorEmail: "centro@rtvpioli.com.ar",
	}
	session := &storage.ConversationSession{
		ID:        uuid.New(),
		IPAddress: "203.0.113.7",
		StartedAt: time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC),
	}

	err := n.SendHandoff(context.Background(), branch, session,
		"[09:15] Cliente: hola\n[09:16] Asistente: ¡Hola!", "3814123456")
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, []string{"centro@rtvpioli.com.ar"}, mail.to)
	assert.Equal(t, "Solicitud de atención - Asistente Virtual RTV", mail.subject)
	assert.Contains(t, mail.body, "Estimado equipo de Planta Centro")
	assert.Contains(t, mail.body, "IP: 203.0.113.7")
	assert.Contains(t, mail.body, "Sesión iniciada: 10/03/2026 09:15")
	assert.Contains(t, mail.body, "Celular (para contacto por WhatsApp): 3814123456")
	assert.Contains(t, mail.body, "[09:16] Asistente: ¡Hola!")
}

func TestSendHandoffWithoutOperatorEmailFails(t *testing.T) {
	n := newNotifier(&fakeMailer{})

	branch := &storage.Branch{Name: "Planta Norte"}
	err := n.SendHandoff(context.Background(), branch, &storage.ConversationSession{}, "resumen", "")

	assert.Error(t, err)
}

func TestSendCancellationLink(t *testing.T) {
	mailer := &fakeMailer{}
	n := newNotifier(mailer)

	err := n.SendCancellationLink(context.Background(), testAppointment())
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, []string{"laura@example.com"}, mail.to)
	assert.Equal(t, "Cancelar Turno RTV - TRN-A1B2C3", mail.subject)
	assert.Contains(t, mail.body, "Estimado/a Laura Pérez")
	assert.Contains(t, mail.body, "Código de Turno: TRN-A1B2C3")
	assert.Contains(t, mail.body, "Vehículo: AB123CD")
	assert.Contains(t, mail.body, "Fecha: 20/03/2026")
	assert.Contains(t, mail.body, "Horario: 09:30 hs")
	assert.Contains(t, mail.body, "https://rtvpioli.com.ar/turnero/cancelar/TRN-A1B2C3/")
	assert.Contains(t, mail.body, "válido por 48 horas")
}

func TestSendRescheduleLinkWithoutEmailFails(t *testing.T) {
	n := newNotifier(&fakeMailer{})

	appt := testAppointment()
	appt.ClientEmail = ""

	assert.Error(t, n.SendRescheduleLink(context.Background(), appt))
}

func TestAppointmentLinkIsSignedAndExpiring(t *testing.T) {
	n := newNotifier(&fakeMailer{})

	link := n.AppointmentLink("cancelar", "TRN-A1B2C3")

	// Expiry is the fixed clock plus 48 hours.
	assert.Contains(t, link, "https://rtvpioli.com.ar/turnero/cancelar/TRN-A1B2C3/")
	assert.Contains(t, link, "e=1773309600")

	// Same inputs sign identically; a different action does not.
	assert.Equal(t, link, n.AppointmentLink("cancelar", "TRN-A1B2C3"))
	assert.NotEqual(t, link, n.AppointmentLink("reprogramar", "TRN-A1B2C3"))
}

func TestSendSuggestionDigestListsTopics(t *testing.T) {
	mailer := &fakeMailer{}
	n := newNotifier(mailer)

	suggestions := []*storage.Suggestion{
		{Topic: "turnos para flotas", TimesDetected: 5, State: storage.SuggestionNueva,
			LastExample: "hacen descuento para flotas de camiones"},
		{Topic: "inspección de motos de agua", TimesDetected: 1, State: storage.SuggestionRevisada},
	}

	err := n.SendSuggestionDigest(context.Background(), suggestions)
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, []string{"revision@rtvpioli.com.ar"}, mail.to)
	assert.Contains(t, mail.body, "Se detectaron 2 sugerencia(s)")
	assert.Contains(t, mail.body, "1. turnos para flotas (detectada 5 vez/veces)")
	assert.Contains(t, mail.body, `Ejemplo: "hacen descuento para flotas de camiones"`)
	assert.Contains(t, mail.body, "2. inspección de motos de agua")
}

func TestSendSuggestionDigestWithNothingToReportFails(t *testing.T) {
	n := newNotifier(&fakeMailer{})

	assert.Error(t, n.SendSuggestionDigest(context.Background(), nil))
}

func TestMailerFailurePropagates(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("connection refused")}
	n := newNotifier(mailer)

	err := n.SendCancellationLink(context.Background(), testAppointment())
	assert.Error(t, err)
}
