// Package intent defines the assistant's closed intent registry and the
// keyword classifier that maps user text onto it.
package intent

import "math/rand"

// ID identifies an intent in the registry.
type ID string

// Registry intents. Desconocido is the sentinel for unclassified input and
// never appears in the table itself.
const (
	Saludo             ID = "saludo"
	Despedida          ID = "despedida"
	Agradecimiento     ID = "agradecimiento"
	ConsultarTarifa    ID = "consultar_tarifa"
	ConsultarTurno     ID = "consultar_turno"
	CrearTurno         ID = "crear_turno"
	CancelarTurno      ID = "cancelar_turno"
	ReprogramarTurno   ID = "reprogramar_turno"
	ConsultarUbicacion ID = "consultar_ubicacion"
	ConsultarHorarios  ID = "consultar_horarios"
	ConsultarServicios ID = "consultar_servicios"
	GestionPostTramite ID = "gestion_post_tramite"
	Disponibilidad     ID = "disponibilidad"
	HablarConOperador  ID = "hablar_con_operador"
	Desconocido        ID = "desconocido"
)

// Kind distinguishes canned-reply intents from data-backed ones.
type Kind int

const (
	// KindFixed intents answer with a canned variant, no data lookup.
	KindFixed Kind = iota
	// KindData intents resolve against the database through a handler.
	KindData
)

// Definition describes one registry entry.
type Definition struct {
	ID               ID
	Kind             Kind
	Keywords         []string
	NegativeKeywords []string
}

// registry is the ordered intent table. Order matters: score ties resolve
// to the earliest entry.
var registry = []Definition{
	{
		ID:   Saludo,
		Kind: KindFixed,
		Keywords: []string{
			"hola", "buenas", "buen dia", "buenos dias", "buenas tardes",
			"buenas noches", "que tal", "hey", "hi", "hello",
		},
	},
	{
		ID:   Despedida,
		Kind: KindFixed,
		Keywords: []string{
			"chau", "adios", "hasta luego", "nos vemos",
			"bye", "gracias por todo",
		},
	},
	{
		ID:   Agradecimiento,
		Kind: KindFixed,
		Keywords: []string{
			"gracias", "muchas gracias", "te agradezco", "genial", "perfecto",
			"excelente", "barbaro", "buenisimo",
		},
	},
	{
		ID:   ConsultarTarifa,
		Kind: KindData,
		Keywords: []string{
			"tarifa", "precio", "costo", "cuanto sale", "cuanto cuesta",
			"valor", "cuanto vale", "presupuesto", "cotizacion",
			"provincial", "nacional", "cajutac",
		},
		NegativeKeywords: []string{"multa", "infraccion", "sancion", "penalidad"},
	},
	{
		ID:   ConsultarTurno,
		Kind: KindData,
		Keywords: []string{
			"turno", "mi turno", "consultar turno", "estado turno",
			"buscar turno", "codigo turno", "trn-",
		},
	},
	{
		ID:   CrearTurno,
		Kind: KindData,
		Keywords: []string{
			"sacar turno", "pedir turno", "reservar turno", "agendar turno",
			"nuevo turno", "quiero turno", "necesito turno", "hacer turno",
			"solicitar turno", "obtener turno",
		},
		NegativeKeywords: []string{
			"cambiar", "reprogramar", "cancelar", "anular",
			"mover", "consultar", "estado",
		},
	},
	{
		ID:   CancelarTurno,
		Kind: KindData,
		Keywords: []string{
			"cancelar turno", "cancelar", "anular turno", "anular",
			"dar de baja turno", "no puedo ir", "cancelar mi turno",
			"confirmar cancelar turno", "confirmar cancelar",
			"confirmo cancelar turno", "confirmo cancelar",
		},
	},
	{
		ID:   ReprogramarTurno,
		Kind: KindData,
		Keywords: []string{
			"reprogramar turno", "reprogramar", "cambiar turno",
			"mover turno", "cambiar fecha", "cambiar horario",
			"reagendar", "reprogramacion",
		},
	},
	{
		ID:   ConsultarUbicacion,
		Kind: KindData,
		Keywords: []string{
			"ubicacion", "donde queda", "donde hacen", "donde esta",
			"direccion", "como llego", "donde",
			"mapa", "planta", "taller", "donde estan", "sucursal",
			"donde ofrecen", "donde realizan",
		},
	},
	{
		ID:   ConsultarHorarios,
		Kind: KindData,
		Keywords: []string{
			"horario", "horarios", "a que hora", "que dias",
			"dias de atencion", "abren", "cierran", "atienden",
			"hora de apertura", "hora de cierre",
		},
	},
	{
		ID:   ConsultarServicios,
		Kind: KindData,
		Keywords: []string{
			"servicio", "servicios", "que hacen", "que ofrecen",
			"revision tecnica", "rtv", "rto", "vtv", "oblea",
			"inspeccion", "que tramites",
		},
	},
	{
		ID:   GestionPostTramite,
		Kind: KindData,
		Keywords: []string{
			"copia de mi rtv", "copia rtv", "copia del rtv",
			"copia de mi rto", "copia certificado", "duplicado oblea",
			"duplicado rtv", "copia aprobado", "rtv aprobado",
			"certificado aprobado", "constancia aprobado",
			"resultado de mi revision", "resultado revision",
			"me aprobaron", "me rechazaron",
		},
	},
	{
		ID:   Disponibilidad,
		Kind: KindData,
		Keywords: []string{
			"disponibilidad", "hay turno", "turnos disponibles",
			"proximos turnos", "hay lugar", "cuando hay turno",
		},
	},
	{
		ID:   HablarConOperador,
		Kind: KindData,
		Keywords: []string{
			"hablar con operador", "hablar con persona", "hablar con humano",
			"quiero hablar con alguien", "operador", "persona real",
			"atencion humana", "agente", "hablar con un agente",
			"representante", "atencion personalizada", "quiero que me atiendan",
			"hablar con alguien", "necesito hablar con una persona",
			"pasame con alguien", "pasame con una persona", "pasame con operador",
			"pasame con un operador",
		},
	},
}

// fixedReplies holds the canned variants for fixed intents.
var fixedReplies = map[ID][]string{
	Saludo: {
		"👋 ¡Hola! ¿En qué puedo ayudarte hoy?",
		"😊 ¡Buenas! Estoy acá para lo que necesites. ¿Qué consulta tenés?",
		"👋 ¡Hola! Bienvenido a RTV Pioli. ¿Cómo puedo ayudarte?",
	},
	Despedida: {
		"👋 ¡Hasta luego! Cualquier cosa, acá estamos.",
		"😊 ¡Chau! Que tengas un buen día.",
		"🙌 ¡Nos vemos! Si necesitás algo más, no dudes en escribirnos.",
	},
	Agradecimiento: {
		"😊 ¡De nada! Me alegra poder ayudarte.",
		"🙌 ¡Con gusto! Si tenés otra consulta, acá estoy.",
		"😊 ¡No hay de qué! Para eso estamos.",
	},
}

// priorityIntents require confirmation below the confidence threshold and
// bypass the FAQ and cache phases.
var priorityIntents = map[ID]bool{
	HablarConOperador: true,
	ReprogramarTurno:  true,
	CancelarTurno:     true,
}

// Registry returns the ordered intent table.
func Registry() []Definition {
	return registry
}

// Lookup finds a definition by ID.
func Lookup(id ID) (Definition, bool) {
	for _, def := range registry {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// IsFixed reports whether the intent answers with a canned reply.
func IsFixed(id ID) bool {
	def, ok := Lookup(id)
	return ok && def.Kind == KindFixed
}

// IsPriority reports whether the intent takes the confirmation path.
func IsPriority(id ID) bool {
	return priorityIntents[id]
}

// FixedReply picks a canned variant for a fixed intent using the given RNG.
func FixedReply(id ID, rng *rand.Rand) (string, bool) {
	replies, ok := fixedReplies[id]
	if !ok || len(replies) == 0 {
		return "", false
	}
	return replies[rng.Intn(len(replies))], true
}
