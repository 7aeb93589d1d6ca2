// Package lexicon loads the sign lexicon mapping spoken phrases and words
// to sign clip assets. The supervisor validates the lexicon at startup;
// the glossify stage consumes it.
package lexicon

import (
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Entry is one sign clip: a display label, a video asset reference and the
// clip duration in milliseconds.
type Entry struct {
	Label string `json:"label"`
	Asset string `json:"asset"`
	DurMS int    `json:"dur_ms"`
}

// Lexicon groups entries by match kind. Phrase keys may span multiple
// words; word keys are single tokens. Fingerspell holds fallbacks, keyed
// by "unknown" for out-of-vocabulary tokens.
type Lexicon struct {
	Phrases     map[string]Entry `json:"PHRASES"`
	Words       map[string]Entry `json:"WORDS"`
	Fingerspell map[string]Entry `json:"FINGERSPELL"`
}

// Load reads and parses a lexicon file.
func Load(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read lexicon %s", path)
	}

	lex := &Lexicon{}
	if err := sonic.Unmarshal(raw, lex); err != nil {
		return nil, errors.Wrapf(err, "unable to parse lexicon %s", path)
	}

	return lex, nil
}

// Lookup finds the entry for a single token, case-insensitively.
func (l *Lexicon) Lookup(token string) (Entry, bool) {
	key := strings.ToLower(strings.TrimSpace(token))
	entry, ok := l.Words[key]

	return entry, ok
}

// Unknown returns the fingerspell fallback entry, if the lexicon has one.
func (l *Lexicon) Unknown() (Entry, bool) {
	entry, ok := l.Fingerspell["unknown"]

	return entry, ok
}

// Size reports how many phrase and word entries are loaded.
func (l *Lexicon) Size() int {
	return len(l.Phrases) + len(l.Words)
}
