// Package moderation screens complaint text for profanity and scores its
// sentiment. Screening is a pure function of the text and the lexicon; the
// caller decides policy from the reported signal.
package moderation

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	dErrors "civicdesk/pkg/domain-errors"
)

// DefaultMaxLength bounds description length in runes.
const DefaultMaxLength = 5000

const (
	intensifierBoost = 1.5
	negatorWindow    = 2
	// sentimentAlpha approximates the maximum expected raw score when
	// normalizing into [-1, 1].
	sentimentAlpha = 15.0
)

// Result is the screening signal for one text.
type Result struct {
	HasProfanity bool
	Severity     float64
	Sentiment    float64
	// Matches counts profanity hits.
	Matches int
}

// Filter screens text against a lexicon.
type Filter struct {
	lex       *Lexicon
	maxLength int
}

// New builds a filter. A nil lexicon means the embedded default, a
// non-positive maxLength means DefaultMaxLength.
func New(lex *Lexicon, maxLength int) *Filter {
	if lex == nil {
		lex = DefaultLexicon()
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Filter{lex: lex, maxLength: maxLength}
}

// MaxLength reports the configured rune limit.
func (f *Filter) MaxLength() int { return f.maxLength }

// Screen scores text. Text longer than the limit fails with
// CodeContentTooLarge before any scoring.
func (f *Filter) Screen(text string) (Result, error) {
	if n := utf8.RuneCountInString(text); n > f.maxLength {
		return Result{}, dErrors.New(dErrors.CodeContentTooLarge,
			fmt.Sprintf("description is %d characters, limit is %d", n, f.maxLength))
	}

	tokens := tokenize(text)
	var res Result
	var raw float64
	for i, tok := range tokens {
		if w, ok := f.lookupProfanity(tok); ok {
			res.Severity += w
			res.Matches++
		}
		raw += f.valence(tokens, i)
	}
	res.HasProfanity = res.Severity > 0
	res.Sentiment = normalize(raw)
	return res, nil
}

// lookupProfanity tries the folded token, then its de-elongated forms.
func (f *Filter) lookupProfanity(tok string) (float64, bool) {
	for _, cand := range candidates(foldLeet(tok)) {
		if w, ok := f.lex.Profanity[cand]; ok {
			return w, true
		}
	}
	return 0, false
}

// valence scores tokens[i] with intensifier and negation from the
// preceding tokens. Sentiment words are looked up without leetspeak folding.
func (f *Filter) valence(tokens []string, i int) float64 {
	word := strings.Trim(tokens[i], "!")
	var v float64
	found := false
	for _, cand := range candidates(word) {
		if val, ok := f.lex.Sentiment[cand]; ok {
			v, found = val, true
			break
		}
	}
	if !found {
		return 0
	}
	if i > 0 {
		if _, ok := f.lex.intensifiers[tokens[i-1]]; ok {
			v *= intensifierBoost
		}
	}
	for j := i - 1; j >= 0 && j >= i-negatorWindow; j-- {
		if _, ok := f.lex.negators[tokens[j]]; ok {
			v = -v
			break
		}
	}
	return v
}

func normalize(s float64) float64 {
	if s == 0 {
		return 0
	}
	n := s / math.Sqrt(s*s+sentimentAlpha)
	return math.Max(-1, math.Min(1, n))
}

// tokenize lowercases after NFKC (so full-width and compatibility forms
// compare equal) and splits on anything that is not a letter, digit,
// apostrophe or leetspeak symbol. Apostrophes are dropped from tokens.
func tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || isLeetSymbol(r) || isApostrophe(r))
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Map(func(r rune) rune {
			if isApostrophe(r) {
				return -1
			}
			return r
		}, f)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isLeetSymbol(r rune) bool {
	return r == '@' || r == '$' || r == '!'
}

func isNumber(tok string) bool {
	return tok != "" && strings.IndexFunc(tok, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

var leetTable = map[rune]rune{
	'0': 'o', '1': 'i', '3': 'e', '4': 'a', '5': 's', '7': 't',
	'@': 'a', '$': 's', '!': 'i',
}

// foldLeet maps leetspeak substitutions onto letters. Trailing and leading
// exclamation marks are punctuation, not substitutions. All-digit tokens
// are house, bus or route numbers and are left alone.
func foldLeet(tok string) string {
	tok = strings.Trim(tok, "!")
	if isNumber(tok) {
		return tok
	}
	return strings.Map(func(r rune) rune {
		if l, ok := leetTable[r]; ok {
			return l
		}
		return r
	}, tok)
}

// candidates returns tok, tok with letter runs of 3+ cut to 2, and tok with
// every run cut to 1, without duplicates.
func candidates(tok string) []string {
	out := []string{tok}
	if two := collapseRuns(tok, 3, 2); two != tok {
		out = append(out, two)
	}
	if one := collapseRuns(tok, 2, 1); one != tok && one != out[len(out)-1] {
		out = append(out, one)
	}
	return out
}

// collapseRuns shortens every run of at least minRun equal letters to keep.
func collapseRuns(s string, minRun, keep int) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		n := j - i
		if n >= minRun && unicode.IsLetter(runes[i]) {
			n = keep
		}
		for k := 0; k < n; k++ {
			b.WriteRune(runes[i])
		}
		i = j
	}
	return b.String()
}
