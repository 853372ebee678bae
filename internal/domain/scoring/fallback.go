package scoring

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/okian/intervue/internal/domain/model"
)

// Fallback heuristic defaults.
const (
	defaultMinWords      = 12
	defaultLengthCap     = 300
	lengthWeight         = 0.7
	keywordBonus         = 0.06
	maxKeywordBonus      = 0.3
	minKeywordLen        = 4
	fallbackJustifyShort = "Not enough candidate speech to assess (%d words)."
	fallbackJustifyFull  = "Heuristic estimate from %d candidate words and %d matching rubric keywords."
)

var stopwords = map[string]struct{}{
	"about": {}, "also": {}, "been": {}, "candidate": {}, "does": {}, "each": {}, "from": {},
	"have": {}, "into": {}, "more": {}, "that": {}, "their": {}, "them": {}, "they": {},
	"this": {}, "what": {}, "when": {}, "which": {}, "with": {}, "would": {}, "your": {},
}

// Option applies a configuration option to the Heuristic.
type Option func(*Heuristic)

// WithMinWords sets the candidate word count below which scores stay at the minimum.
func WithMinWords(n int) Option {
	return func(h *Heuristic) {
		if n >= 0 {
			h.minWords = n
		}
	}
}

// WithLengthCap sets the word count at which the length factor saturates.
func WithLengthCap(n int) Option {
	return func(h *Heuristic) {
		if n > 0 {
			h.lengthCap = n
		}
	}
}

// Heuristic is the deterministic fallback scorer. It has no hidden state;
// the same inputs always produce the same scores.
type Heuristic struct {
	minWords  int
	lengthCap int
}

// NewHeuristic creates a fallback scorer with configuration options.
func NewHeuristic(opts ...Option) *Heuristic {
	h := &Heuristic{
		minWords:  defaultMinWords,
		lengthCap: defaultLengthCap,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Score estimates p from the candidate's own words.
func (h *Heuristic) Score(p model.RubricParameter, candidateText string) model.ParameterScore {
	s := ResolveScale(p.Scale)
	tokens := tokenize(candidateText)
	words := len(tokens)

	out := model.ParameterScore{ParameterID: p.ID, Score: s.Min, Fallback: true}
	if words < h.minWords || words == 0 {
		out.Justification = fmt.Sprintf(fallbackJustifyShort, words)
		return out
	}

	capped := words
	if capped > h.lengthCap {
		capped = h.lengthCap
	}
	hits := keywordHits(p, tokens)
	bonus := float64(hits) * keywordBonus
	if bonus > maxKeywordBonus {
		bonus = maxKeywordBonus
	}
	pos := clamp01(lengthWeight*float64(capped)/float64(h.lengthCap) + bonus)

	out.Score = Snap(s.Min+pos*(s.Max-s.Min), s)
	out.Justification = fmt.Sprintf(fallbackJustifyFull, words, hits)
	return out
}

// ScoreAll applies Score to every parameter in order.
func (h *Heuristic) ScoreAll(params []model.RubricParameter, candidateText string) []model.ParameterScore {
	out := make([]model.ParameterScore, 0, len(params))
	for _, p := range params {
		out = append(out, h.Score(p, candidateText))
	}
	return out
}

// WordCount counts the words the heuristic sees in text.
func WordCount(text string) int {
	return len(tokenize(text))
}

func keywordHits(p model.RubricParameter, candidate []string) int {
	seen := make(map[string]struct{}, len(candidate))
	for _, t := range candidate {
		seen[t] = struct{}{}
	}
	counted := make(map[string]struct{})
	for _, kw := range tokenize(p.Name + " " + p.Description) {
		if len([]rune(kw)) < minKeywordLen {
			continue
		}
		if _, stop := stopwords[kw]; stop {
			continue
		}
		if _, dup := counted[kw]; dup {
			continue
		}
		if _, ok := seen[kw]; ok {
			counted[kw] = struct{}{}
		}
	}
	return len(counted)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
