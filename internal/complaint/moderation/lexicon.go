package moderation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon is the static scoring state of the filter. It is read-only once built.
type Lexicon struct {
	Profanity    map[string]float64 `yaml:"profanity"`
	Sentiment    map[string]float64 `yaml:"sentiment"`
	Negators     []string           `yaml:"negators"`
	Intensifiers []string           `yaml:"intensifiers"`

	negators     map[string]struct{}
	intensifiers map[string]struct{}
}

// DefaultLexicon returns the embedded lexicon.
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon is invalid: %v", err))
	}
	return lex
}

// LoadLexicon reads a lexicon file. An empty path yields the embedded lexicon.
func LoadLexicon(path string) (*Lexicon, error) {
	if path == "" {
		return DefaultLexicon(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return ParseLexicon(raw)
}

// ParseLexicon decodes YAML and normalizes every key so lookups match
// tokens produced by the tokenizer.
func ParseLexicon(raw []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	if len(lex.Profanity) == 0 {
		return nil, fmt.Errorf("lexicon has no profanity terms")
	}

	profanity := make(map[string]float64, len(lex.Profanity))
	for term, w := range lex.Profanity {
		if w <= 0 {
			return nil, fmt.Errorf("profanity term %q must have a positive weight", term)
		}
		profanity[strings.ToLower(strings.TrimSpace(term))] = w
	}
	lex.Profanity = profanity

	sentiment := make(map[string]float64, len(lex.Sentiment))
	for word, v := range lex.Sentiment {
		sentiment[strings.ToLower(strings.TrimSpace(word))] = v
	}
	lex.Sentiment = sentiment

	lex.negators = toSet(lex.Negators)
	lex.intensifiers = toSet(lex.Intensifiers)
	return &lex, nil
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}
