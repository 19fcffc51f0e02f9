package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator censors forbidden words in message text.
// The automaton is immutable once built, Censor is safe for concurrent use.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

// folded is the text the automaton searches: noise removed, leet speak
// mapped back to letters, lower case. positions[i] is the index in the
// original runes of folded rune i.
type folded struct {
	runes     []rune
	positions []int
}

func fold(text string) folded {
	src := []rune(text)
	out := folded{runes: make([]rune, 0, len(src)), positions: make([]int, 0, len(src))}
	for i, r := range src {
		r = simplifyRune(r)
		if isNoise(r) {
			continue
		}
		out.runes = append(out.runes, unicode.ToLower(r))
		out.positions = append(out.positions, i)
	}
	return out
}

// NewModerator builds the automaton from the folded form of every word.
// Words that fold to nothing, such as "...", are skipped.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		if f := fold(word); len(f.runes) > 0 {
			patterns = append(patterns, f.runes)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, censoredChar: censoredChar, log: log}, nil
}

// Censor masks every original rune covered by a forbidden word, separators
// inside the match included, and returns the folded words it found.
func (m *Moderator) Censor(text string) (string, []string) {
	f := fold(text)
	if len(f.runes) == 0 {
		return text, nil
	}
	hits := m.matcher.MultiPatternSearch(f.runes, false)
	if len(hits) == 0 {
		return text, nil
	}

	masked := []rune(text)
	var words []string
	for _, hit := range hits {
		last := hit.Pos + len(hit.Word) - 1
		if hit.Pos < 0 || last >= len(f.positions) {
			continue
		}
		for i := f.positions[hit.Pos]; i <= f.positions[last]; i++ {
			masked[i] = m.censoredChar
		}
		words = append(words, string(hit.Word))
	}

	if len(words) > 0 {
		m.log.Debug("Message censored", "words", len(words))
	}
	return string(masked), words
}

func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
