package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civicdesk/pkg/domain-errors"
)

func TestScreenProfanity(t *testing.T) {
	f := New(nil, 0)

	tests := []struct {
		name         string
		text         string
		wantProfane  bool
		wantSeverity float64
	}{
		{"clean text", "it's fine", false, 0},
		{"plain term", "this is shit", true, 1.0},
		{"case insensitive", "SHIT happens", true, 1.0},
		{"leetspeak digits", "what a sh1t road", true, 1.0},
		{"leetspeak symbols", "total a$$hole driver", true, 1.5},
		{"elongated", "shiiiit", true, 1.0},
		{"trailing punctuation", "damn!", true, 0.3},
		{"word boundary class", "the class assessment was late", false, 0},
		{"word boundary grass", "uncut grass in the park", false, 0},
		{"full width", "ｓｈｉｔ", true, 1.0},
		{"house number", "Streetlight out at 455 Elm Street", false, 0},
		{"repeated bus numbers", "bus 455 455 455 splashes through the pothole", false, 0},
		{"symbols only", "what an @$$", true, 1.0},
		{"count and weight add up", "fuck this fuck that shit", true, 4.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.Screen(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProfane, res.HasProfanity)
			assert.InDelta(t, tt.wantSeverity, res.Severity, 1e-9)
		})
	}
}

func TestScreenSentiment(t *testing.T) {
	f := New(nil, 0)

	t.Run("empty and neutral text score zero", func(t *testing.T) {
		for _, text := range []string{"", "the bus stop on main street"} {
			res, err := f.Screen(text)
			require.NoError(t, err)
			assert.Zero(t, res.Sentiment)
		}
	})

	t.Run("negative text", func(t *testing.T) {
		res, err := f.Screen("terrible dangerous broken pavement")
		require.NoError(t, err)
		assert.Less(t, res.Sentiment, 0.0)
		assert.GreaterOrEqual(t, res.Sentiment, -1.0)
	})

	t.Run("negation flips", func(t *testing.T) {
		pos, err := f.Screen("the road is safe")
		require.NoError(t, err)
		neg, err := f.Screen("the road is not safe")
		require.NoError(t, err)
		assert.Greater(t, pos.Sentiment, 0.0)
		assert.InDelta(t, -pos.Sentiment, neg.Sentiment, 1e-9)
	})

	t.Run("intensifier boosts", func(t *testing.T) {
		plain, err := f.Screen("bad")
		require.NoError(t, err)
		boosted, err := f.Screen("very bad")
		require.NoError(t, err)
		assert.Less(t, boosted.Sentiment, plain.Sentiment)
	})

	t.Run("stays within range", func(t *testing.T) {
		res, err := f.Screen(strings.Repeat("horrible ", 200))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Sentiment, -1.0)
	})
}

func TestScreenIsDeterministic(t *testing.T) {
	f := New(nil, 0)
	text := "Water leak near school, really dangerous and not fixed. Damn!"

	first, err := f.Screen(text)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := f.Screen(text)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScreenContentTooLarge(t *testing.T) {
	f := New(nil, 10)

	_, err := f.Screen(strings.Repeat("a", 11))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContentTooLarge))

	// limit counts runes, not bytes
	_, err = f.Screen(strings.Repeat("é", 10))
	assert.NoError(t, err)
}

func TestParseLexicon(t *testing.T) {
	t.Run("custom lexicon", func(t *testing.T) {
		lex, err := ParseLexicon([]byte("profanity:\n  Blast: 2\nsentiment:\n  nice: 2\n"))
		require.NoError(t, err)
		res, err := New(lex, 0).Screen("bl@st it")
		require.NoError(t, err)
		assert.InDelta(t, 2.0, res.Severity, 1e-9)
	})

	t.Run("rejects non-positive weights", func(t *testing.T) {
		_, err := ParseLexicon([]byte("profanity:\n  blast: 0\n"))
		assert.Error(t, err)
	})

	t.Run("rejects empty term set", func(t *testing.T) {
		_, err := ParseLexicon([]byte("sentiment:\n  nice: 2\n"))
		assert.Error(t, err)
	})
}
