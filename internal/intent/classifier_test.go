package intent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name          string
		input         string
		wantIntent    ID
		minConfidence float64
	}{
		{
			name:          "greeting",
			input:         "Hola",
			wantIntent:    Saludo,
			minConfidence: 1,
		},
		{
			name:          "greeting with accent and punctuation",
			input:         "¡Buen día!",
			wantIntent:    Saludo,
			minConfidence: 0.5,
		},
		{
			name:          "tariff question",
			input:         "cuanto sale la VTV para auto",
			wantIntent:    ConsultarTarifa,
			minConfidence: 0.5,
		},
		{
			name:          "cancel phrase",
			input:         "cancelar turno",
			wantIntent:    CancelarTurno,
			minConfidence: 1,
		},
		{
			name:          "cancel with typo",
			input:         "quiero cncelar mi turno",
			wantIntent:    CancelarTurno,
			minConfidence: 0.2,
		},
		{
			name:          "ticket prefix without code",
			input:         "perdi mi codigo trn- que hago",
			wantIntent:    ConsultarTurno,
			minConfidence: 0.3,
		},
		{
			name:          "reschedule",
			input:         "necesito reprogramar mi turno",
			wantIntent:    ReprogramarTurno,
			minConfidence: 0.3,
		},
		{
			name:          "operator request",
			input:         "quiero hablar con un operador",
			wantIntent:    HablarConOperador,
			minConfidence: 0.3,
		},
		{
			name:          "location",
			input:         "donde queda la planta",
			wantIntent:    ConsultarUbicacion,
			minConfidence: 0.3,
		},
		{
			name:          "hours",
			input:         "que dias atienden",
			wantIntent:    ConsultarHorarios,
			minConfidence: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := c.Classify(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.wantIntent, m.Intent)
			assert.GreaterOrEqual(t, m.Confidence, tt.minConfidence)
			assert.LessOrEqual(t, m.Confidence, 1.0)
		})
	}
}

func TestClassifyShortKeywordsNeverSubstringMatch(t *testing.T) {
	c := NewClassifier()

	// "hi" appears inside "chiste" but must not trigger the greeting.
	m, ok := c.Classify("contame un chiste")
	if ok {
		assert.NotEqual(t, Saludo, m.Intent)
	}
}

func TestClassifyNegativeKeywordVeto(t *testing.T) {
	c := NewClassifier()

	// "multa" vetoes the tariff intent even though "cuanto sale" matches.
	m, ok := c.Classify("cuanto sale la multa")
	if ok {
		assert.NotEqual(t, ConsultarTarifa, m.Intent)
	}

	// Fuzzy negative hits veto too.
	m, ok = c.Classify("quiero cancelarr mi turno ya sacado")
	if ok {
		assert.NotEqual(t, CrearTurno, m.Intent)
	}
	_ = m
}

func TestClassifyUnknown(t *testing.T) {
	c := NewClassifier()

	m, ok := c.Classify("xyzabc qwerty")
	assert.False(t, ok)
	assert.Equal(t, Desconocido, m.Intent)
	assert.Equal(t, 0.0, m.Confidence)
}

func TestClassifyDataSkipsFixedIntents(t *testing.T) {
	c := NewClassifier()

	// A pure greeting has no data intent.
	_, ok := c.ClassifyData("hola buenas")
	assert.False(t, ok)

	// A compound message still resolves to its data intent.
	m, ok := c.ClassifyData("hola, cuanto cuesta la revision tecnica")
	require.True(t, ok)
	assert.Equal(t, ConsultarTarifa, m.Intent)
}

func TestFixedReply(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	reply, ok := FixedReply(Saludo, rng)
	require.True(t, ok)
	assert.Contains(t, fixedReplies[Saludo], reply)

	_, ok = FixedReply(ConsultarTarifa, rng)
	assert.False(t, ok)
}

func TestIsPriority(t *testing.T) {
	assert.True(t, IsPriority(HablarConOperador))
	assert.True(t, IsPriority(CancelarTurno))
	assert.True(t, IsPriority(ReprogramarTurno))
	assert.False(t, IsPriority(Saludo))
	assert.False(t, IsPriority(ConsultarTarifa))
}
