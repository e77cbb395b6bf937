package kb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMatchPicksBestOverlap(t *testing.T) {
	m := NewMatcher([]Entry{
		{Question: "qual o horario de funcionamento", Answer: "Abrimos as 9h."},
		{Question: "como rastrear meu pedido", Answer: "Use o codigo de rastreio."},
	})

	match, err := m.FindMatch(context.Background(), "qual horario funcionamento de voces?")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "Abrimos as 9h.", match.Response)
	assert.Greater(t, match.Confidence, 0.5)
}

func TestFindMatchNoOverlap(t *testing.T) {
	m := NewMatcher([]Entry{
		{Question: "qual o horario de funcionamento", Answer: "Abrimos as 9h."},
	})

	match, err := m.FindMatch(context.Background(), "xyzabc")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestFindMatchEmptyBase(t *testing.T) {
	m := NewMatcher(nil)
	match, err := m.FindMatch(context.Background(), "qualquer coisa")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestTokenizeDropsShortWordsAndPunctuation(t *testing.T) {
	tokens := tokenize("Oi, eu quero RASTREAR o pedido!")
	assert.True(t, tokens["quero"])
	assert.True(t, tokens["rastrear"])
	assert.True(t, tokens["pedido"])
	assert.False(t, tokens["oi"], "two-letter words carry no signal")
	assert.False(t, tokens["o"])
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yml")
	content := []byte(`entries:
  - question: qual o horario de funcionamento
    answer: Abrimos as 9h.
  - question: como rastrear meu pedido
    answer: Use o codigo de rastreio.
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.entries, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
