package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeywords(t *testing.T) {
	t.Run("repeated bigrams come first", func(t *testing.T) {
		content := strings.Repeat("revision tecnica vehicular obligatoria. ", 3) +
			"la revision tecnica se realiza en planta. turnos disponibles online."
		keywords := GenerateKeywords("Revisión Técnica", content)

		assert.NotEmpty(t, keywords)
		assert.Contains(t, keywords, "revision tecnica")
		assert.Contains(t, keywords, "revision")
		assert.LessOrEqual(t, len(keywords), 50)
	})

	t.Run("stopwords and short words dropped", func(t *testing.T) {
		keywords := GenerateKeywords("", "el auto de la planta es un vehiculo")
		for _, kw := range keywords {
			for _, w := range strings.Fields(kw) {
				assert.False(t, IsStopword(w), "stopword %q leaked into keywords", w)
				assert.Greater(t, len(w), 2)
			}
		}
	})

	t.Run("short document backfills unique words", func(t *testing.T) {
		keywords := GenerateKeywords("Horarios", "atencion lunes viernes manana")
		assert.Contains(t, keywords, "atencion")
		assert.Contains(t, keywords, "lunes")
		assert.Contains(t, keywords, "viernes")
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, GenerateKeywords("", ""))
	})
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("donde"))
	assert.True(t, IsStopword("para"))
	assert.False(t, IsStopword("turno"))
	assert.False(t, IsStopword("revision"))
}
