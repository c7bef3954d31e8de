package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rtvpioli/assistant-engine/internal/intent"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

// runHandler dispatches an intent to its data handler. A nil result means
// the intent has no handler and the pipeline continues.
func (r *Resolver) runHandler(ctx context.Context, intentID intent.ID, text string, confidence float64) (*Result, error) {
	switch intentID {
	case intent.ConsultarTarifa:
		return r.resolveTariffs(ctx, intentID, confidence)
	case intent.ConsultarTurno:
		return r.lookupAppointment(ctx, text, intentID, confidence)
	case intent.CrearTurno:
		return r.resolveCreateAppointment(ctx, intentID, confidence)
	case intent.CancelarTurno:
		return r.resolveCancelAppointment(ctx, text, intentID, confidence)
	case intent.ReprogramarTurno:
		return r.resolveRescheduleAppointment(ctx, text, intentID, confidence)
	case intent.ConsultarUbicacion:
		return r.resolveLocations(ctx, intentID, confidence)
	case intent.ConsultarHorarios:
		return r.resolveHours(ctx, intentID, confidence)
	case intent.ConsultarServicios:
		return r.resolveServices(intentID, confidence), nil
	case intent.GestionPostTramite:
		return r.resolvePostInspection(ctx, intentID, confidence)
	case intent.Disponibilidad:
		return r.resolveAvailability(ctx, intentID, confidence)
	case intent.HablarConOperador:
		return r.resolveOperator(ctx, intentID, confidence)
	default:
		return nil, nil
	}
}

func dbResult(intentID intent.ID, data string, confidence float64, actions ...Action) *Result {
	return &Result{
		Intent:        intentID,
		Data:          data,
		Source:        storage.SourceDB,
		NeedsHumanize: true,
		Confidence:    confidence,
		Actions:       actions,
	}
}

func (r *Resolver) resolveTariffs(ctx context.Context, intentID intent.ID, confidence float64) (*Result, error) {
	tariffs, err := r.tariffs.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(tariffs) == 0 {
		return dbResult(intentID, "No hay tarifas disponibles actualmente.", confidence), nil
	}

	var b strings.Builder
	b.WriteString("Tarifas de trámites RTV:")
	for _, t := range tariffs {
		fmt.Fprintf(&b, "\n- %s: $%s", t.Category, formatAmount(t.Amount))
		if t.Description != "" {
			fmt.Fprintf(&b, " (%s)", t.Description)
		}
	}

	return dbResult(intentID, b.String(), confidence,
		Action{Label: "Ver tarifas completas", ScrollTo: "#tarifas"},
		Action{Label: "Sacar turno", URL: "/turnero/paso1/"},
	), nil
}

// formatAmount renders a peso amount with thousands separators and no
// decimals, e.g. 28500 -> "28.500".
func formatAmount(amount float64) string {
	digits := fmt.Sprintf("%.0f", amount)
	if len(digits) <= 3 {
		return digits
	}
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)
	return strings.Join(groups, ".")
}

// appointmentInfo describes an appointment with past/today awareness and the
// follow-up actions that make sense for its state.
func (r *Resolver) appointmentInfo(appt *storage.Appointment) (string, []Action) {
	now := r.now()
	var actions []Action

	data := fmt.Sprintf(
		"Turno %s:\n- Estado: %s\n- Fecha: %s\n- Hora: %s\n- Vehículo: %s\n- Planta: %s",
		appt.TicketCode, appt.Status,
		appt.ScheduledAt.Format("02/01/2006"), appt.ScheduledAt.Format("15:04"),
		appt.Plate, appt.BranchName,
	)

	switch {
	case appt.Past(now) && appt.Pending():
		data += fmt.Sprintf(
			"\n\n⚠️ ATENCIÓN: Este turno era para el %s y ya pasó la fecha. "+
				"Si no asististe, podés sacar un nuevo turno.",
			appt.ScheduledAt.Format("02/01/2006"),
		)
		actions = []Action{{Label: "📅 Sacar nuevo turno", URL: "/turnero/paso1/"}}
	case appt.Today(now) && appt.Pending():
		data += "\n\n📌 Tu turno es HOY. ¡Recordá asistir con la documentación necesaria!"
	case appt.Pending():
		if appt.CanReschedule(now) {
			actions = append(actions, Action{
				Label:  "🔄 Reprogramar",
				Action: fmt.Sprintf("quiero reprogramar el turno %s", appt.TicketCode),
			})
		}
		if appt.CanCancel(now) {
			actions = append(actions, Action{
				Label:  "❌ Cancelar turno",
				Action: fmt.Sprintf("quiero cancelar el turno %s", appt.TicketCode),
			})
		}
		if len(actions) == 0 {
			actions = []Action{{Label: "📋 Gestionar turno", URL: "/turnero/consultar/"}}
		}
	}

	return data, actions
}

func (r *Resolver) lookupAppointment(ctx context.Context, text string, intentID intent.ID, confidence float64) (*Result, error) {
	if code := ticketExactPattern.FindString(strings.ToUpper(text)); code != "" {
		appt, err := r.appointments.GetByTicketCode(ctx, code)
		if err == storage.ErrNotFound {
			return dbResult(intentID,
				fmt.Sprintf("No se encontró un turno con el código %s.", code),
				confidence), nil
		}
		if err != nil {
			return nil, err
		}
		data, actions := r.appointmentInfo(appt)
		return dbResult(intentID, data, 1.0, actions...), nil
	}

	if plate := plateTokenPattern.FindString(strings.ToUpper(text)); plate != "" {
		appt, err := r.appointments.GetByPlate(ctx, plate)
		if err == storage.ErrNotFound {
			return dbResult(intentID,
				fmt.Sprintf("No se encontraron turnos activos para el vehículo %s.\n\n"+
					"Si tenés un turno, puede que ya haya sido completado o cancelado.\n"+
					"Podés sacar un nuevo turno online.", plate),
				0.9,
				Action{Label: "📅 Sacar nuevo turno", URL: "/turnero/paso1/"},
				Action{Label: "📋 Consultar en la web", URL: "/turnero/consultar/"},
			), nil
		}
		if err != nil {
			return nil, err
		}
		data, actions := r.appointmentInfo(appt)
		return dbResult(intentID, data, 0.9, actions...), nil
	}

	return dbResult(intentID,
		"Para consultar un turno necesito uno de estos datos:\n"+
			"- Código de turno (formato: TRN-A1B2C3), lo recibiste por email al reservar\n"+
			"- Patente del vehículo (formato: ABC123 o AB123CD)\n\n"+
			"Podés escribirlo directamente acá y lo busco.",
		confidence,
		Action{Label: "📋 Consultar en la web", URL: "/turnero/consultar/"},
	), nil
}

func (r *Resolver) resolveCreateAppointment(ctx context.Context, intentID intent.ID, confidence float64) (*Result, error) {
	branches, err := r.branches.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	data := "Para sacar un turno podés hacerlo online a través de nuestro sistema de turnos."
	if len(branches) > 0 {
		data += fmt.Sprintf(" Tenemos atención en: %s.", strings.Join(branchNames(branches), ", "))
	}
	return dbResult(intentID, data, confidence,
		Action{Label: "Sacar turno ahora", URL: "/turnero/paso1/"},
	), nil
}

func branchNames(branches []*storage.Branch) []string {
	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return names
}

func (r *Resolver) resolveCancelAppointment(ctx context.Context, text string, intentID intent.ID, confidence float64) (*Result, error) {
	code := ticketExactPattern.FindString(strings.ToUpper(text))
	if code == "" {
		return dbResult(intentID,
			"Para cancelar un turno necesito tu código de turno (formato: TRN-A1B2C3) "+
				"o la patente del vehículo.\n\n"+
				"Podés escribirlo acá y te ayudo con la cancelación.\n"+
				"Si no lo tenés, revisá el email de confirmación que te enviamos al sacar el turno.",
			confidence,
			Action{Label: "📋 Consultar en la web", URL: "/turnero/consultar/"},
		), nil
	}

	appt, err := r.appointments.GetByTicketCode(ctx, code)
	if err == storage.ErrNotFound {
		return dbResult(intentID,
			fmt.Sprintf("No se encontró un turno con el código %s.", code),
			confidence), nil
	}
	if err != nil {
		return nil, err
	}

	now := r.now()
	if appt.Past(now) {
		return dbResult(intentID,
			fmt.Sprintf("El turno %s era para el %s y ya pasó la fecha, "+
				"por lo que no es necesario cancelarlo.",
				appt.TicketCode, appt.ScheduledAt.Format("02/01/2006")),
			1.0,
			Action{Label: "📅 Sacar nuevo turno", URL: "/turnero/paso1/"},
		), nil
	}

	if !appt.CanCancel(now) {
		return dbResult(intentID,
			fmt.Sprintf("El turno %s no puede cancelarse porque está en estado: %s.",
				appt.TicketCode, appt.Status),
			1.0), nil
	}

	// La cancelación se confirma desde un enlace enviado por email.
	if err := r.notifier.SendCancellationLink(ctx, appt); err != nil {
		r.logger.Warn().Err(err).Str("ticket_code", appt.TicketCode).
			Msg("Failed to send cancellation link email")
		return dbResult(intentID,
			fmt.Sprintf("Tu turno %s puede ser cancelado, pero hubo un problema "+
				"al enviar el email.\n\n"+
				"Podés cancelarlo desde nuestra web:\n"+
				"1. Ingresá a 'Consultar turno'\n"+
				"2. Buscá tu turno y hacé clic en 'Cancelar'", appt.TicketCode),
			1.0,
			Action{Label: "📋 Consultar mi turno", URL: "/turnero/consultar/"},
		), nil
	}

	return dbResult(intentID,
		fmt.Sprintf("Te enviamos un email a tu email registrado con un enlace "+
			"para cancelar tu turno %s.\n\n"+
			"Por seguridad, la cancelación se confirma desde ese enlace.\n"+
			"El enlace es válido por 48 horas.", appt.TicketCode),
		1.0), nil
}

func (r *Resolver) resolveRescheduleAppointment(ctx context.Context, text string, intentID intent.ID, confidence float64) (*Result, error) {
	code := ticketExactPattern.FindString(strings.ToUpper(text))
	if code == "" {
		return dbResult(intentID,
			"Para reprogramar un turno necesito tu código de turno (formato: TRN-A1B2C3) "+
				"o la patente del vehículo.\n\n"+
				"Podés escribirlo acá y te ayudo con la reprogramación.\n"+
				"Si no lo tenés, revisá el email de confirmación que te enviamos al sacar el turno.",
			confidence,
			Action{Label: "📋 Consultar en la web", URL: "/turnero/consultar/"},
		), nil
	}

	appt, err := r.appointments.GetByTicketCode(ctx, code)
	if err == storage.ErrNotFound {
		return dbResult(intentID,
			fmt.Sprintf("No se encontró un turno con el código %s.", code),
			confidence), nil
	}
	if err != nil {
		return nil, err
	}

	now := r.now()
	if appt.Past(now) {
		return dbResult(intentID,
			fmt.Sprintf("El turno %s era para el %s y ya pasó la fecha, "+
				"por lo que no se puede reprogramar. Podés sacar un turno nuevo.",
				appt.TicketCode, appt.ScheduledAt.Format("02/01/2006")),
			1.0,
			Action{Label: "📅 Sacar nuevo turno", URL: "/turnero/paso1/"},
		), nil
	}

	if !appt.CanReschedule(now) {
		data := fmt.Sprintf("El turno %s no puede reprogramarse en este momento "+
			"(se requiere al menos 24 horas de anticipación).", appt.TicketCode)
		if !appt.Pending() {
			data = fmt.Sprintf("El turno %s no puede reprogramarse porque está en estado: %s.",
				appt.TicketCode, appt.Status)
		}
		return dbResult(intentID, data, 1.0,
			Action{Label: "📅 Sacar nuevo turno", URL: "/turnero/paso1/"},
		), nil
	}

	if err := r.notifier.SendRescheduleLink(ctx, appt); err != nil {
		r.logger.Warn().Err(err).Str("ticket_code", appt.TicketCode).
			Msg("Failed to send reschedule link email")
		return dbResult(intentID,
			fmt.Sprintf("Tu turno %s puede ser reprogramado, pero hubo un problema "+
				"al enviar el email.\n\n"+
				"Podés reprogramarlo desde nuestra web:\n"+
				"1. Ingresá a 'Consultar turno'\n"+
				"2. Buscá tu turno y hacé clic en 'Reprogramar'", appt.TicketCode),
			1.0,
			Action{Label: "📋 Consultar mi turno", URL: "/turnero/consultar/"},
		), nil
	}

	return dbResult(intentID,
		fmt.Sprintf("¡Listo! Te enviamos un email a tu email registrado con un enlace "+
			"para reprogramar tu turno %s.\n\n"+
			"Desde ese enlace vas a poder elegir la nueva fecha y horario disponible.\n"+
			"El enlace es válido por 48 horas.", appt.TicketCode),
		1.0), nil
}

func (r *Resolver) resolveLocations(ctx context.Context, intentID intent.ID, confidence float64) (*Result, error) {
	branches, err := r.branches.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return dbResult(intentID, "No hay plantas registradas actualmente.", confidence), nil
	}

	var b strings.Builder
	b.WriteString("Nuestras plantas:")
	for _, branch := range branches {
		fmt.Fprintf(&b, "\n- %s", branch.Name)
		if branch.Address != "" {
			fmt.Fprintf(&b, ": %s", branch.Address)
		}
		if branch.Phone != "" {
			fmt.Fprintf(&b, " | Tel: %s", branch.Phone)
		}
	}

	return dbResult(intentID, b.String(), confidence,
		Action{Label: "Ver en el mapa", ScrollTo: "#ubicacion"},
	), nil
}

// weekdayDisplay maps the stored lowercase day names to their display form.
var weekdayDisplay = map[string]string{
	"lunes":     "Lunes",
	"martes":    "Martes",
	"miercoles": "Miércoles",
	"jueves":    "Jueves",
	"viernes":   "Viernes",
	"sabado":    "Sábado",
	"domingo":   "Domingo",
}

var weekdayOrder = []string{"lunes", "martes", "miercoles", "jueves", "viernes", "sabado", "domingo"}

func (r *Resolver) resolveHours(ctx context.Context, intentID intent.ID, confidence float64) (*Result, error) {
	branches, err := r.branches.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return dbResult(intentID, "No hay información de horarios disponible.", confidence), nil
	}

	var b strings.Builder
	b.WriteString("Horarios de atención:")
	for _, branch := range branches {
		fmt.Fprintf(&b, "\n- %s: %s a %s", branch.Name, branch.OpenTime, branch.CloseTime)

		open := make(map[string]bool, len(branch.AttendanceDays))
		for _, d := range branch.AttendanceDays {
			open[d] = true
		}
		var days []string
		for _, d := range weekdayOrder {
			if open[d] {
				days = append(days, weekdayDisplay[d])
			}
		}
		if len(days) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(days, ", "))
		}
	}

	return dbResult(intentID, b.String(), confidence), nil
}

func (r *Resolver) resolveServices(intentID intent.ID, confidence float64) *Result {
	data := "Somos una empresa de Revisión Técnica Vehicular (RTV/RTO). " +
		"Realizamos inspecciones técnicas obligatorias para todos los tipos de vehículos."
	return dbResult(intentID, data, confidence,
		Action{Label: "Ver servicios", ScrollTo: "#services"},
	)
}

func (r *Resolver) resolvePostInspection(ctx context.Context, intentID intent.ID, confidence float64) (*Result, error) {
	branches, err := r.branches.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	data := "Para copias de certificados, duplicados de oblea o resultados de tu revisión " +
		"tenés que acercarte a la planta donde hiciste el trámite con el DNI del titular " +
		"y la documentación del vehículo."
	if len(branches) > 0 {
		data += fmt.Sprintf(" Nuestras plantas: %s.", strings.Join(branchNames(branches), ", "))
	}
	return dbResult(intentID, data, confidence), nil
}

func (r *Resolver) resolveAvailability(ctx context.Context, intentID intent.ID, confidence float64) (*Result, error) {
	branches, err := r.branches.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	data := "Actualmente no hay plantas configuradas para turnos."
	if len(branches) > 0 {
		data = "Podés consultar la disponibilidad de turnos directamente en nuestro " +
			"sistema de turnos online. Ahí vas a poder elegir la planta, tipo de " +
			"trámite y ver las fechas y horarios disponibles."
	}
	return dbResult(intentID, data, confidence,
		Action{Label: "Ver disponibilidad", URL: "/turnero/paso1/"},
	), nil
}

func (r *Resolver) resolveOperator(ctx context.Context, intentID intent.ID, confidence float64) (*Result, error) {
	branches, err := r.branches.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return dbResult(intentID,
			"Actualmente no hay plantas configuradas para atención.",
			confidence), nil
	}

	// Una sola planta: pasar directo a la verificación de horario.
	if len(branches) == 1 {
		return r.operator.Start(ctx, branches[0], intentID, confidence)
	}

	actions := make([]Action, 0, len(branches))
	for _, b := range branches {
		actions = append(actions, Action{
			Label:  b.Name,
			Action: fmt.Sprintf("seleccionar_planta_%s", b.ID),
		})
	}
	return &Result{
		Intent:     intentID,
		Answer:     "👤 ¡Por supuesto! ¿Con cuál de nuestras plantas querés comunicarte?",
		Source:     storage.SourceHardcoded,
		Confidence: confidence,
		Actions:    actions,
	}, nil
}
