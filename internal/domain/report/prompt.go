package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/intervue/internal/domain/model"
)

//go:embed prompt.md
var promptTemplate string

const (
	noAnswer  = "no answer"
	cefrRule  = "Also assign each parameter a CEFR band (A1, A2, B1, B2, C1 or C2) reflecting the candidate's language proficiency for that parameter."
	cefrField = `,"cefr":"<A1|A2|B1|B2|C1|C2>"`
)

type rubricLine struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// BuildPrompt renders the evaluation prompt. When scope is non-empty only
// those parameter ids are requested.
func BuildPrompt(interview string, params []model.RubricParameter, transcript model.Transcript, cefr bool, scope []string) string {
	lines := make([]rubricLine, 0, len(params))
	for _, p := range params {
		lines = append(lines, rubricLine{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Weight:      p.Weight,
			Min:         p.Scale.Min,
			Max:         p.Scale.Max,
		})
	}
	rubricJSON, err := json.MarshalIndent(lines, "", "  ")
	if err != nil {
		rubricJSON = []byte("[]")
	}

	var rule, field string
	if cefr {
		rule, field = cefrRule, cefrField
	}

	scopeLine := "Score every parameter listed above."
	if len(scope) > 0 {
		scopeLine = "Your previous answer was incomplete. Score ONLY these parameter ids: " + strings.Join(scope, ", ") + "."
	}

	if strings.TrimSpace(interview) == "" {
		interview = "(untitled)"
	}

	r := strings.NewReplacer(
		"{{INTERVIEW}}", interview,
		"{{RUBRIC_JSON}}", string(rubricJSON),
		"{{CEFR_RULE}}", rule,
		"{{QA}}", formatPairs(transcript.Pairs()),
		"{{SCOPE}}", scopeLine,
		"{{CEFR_FIELD}}", field,
	)
	return r.Replace(promptTemplate)
}

func formatPairs(pairs []model.QAPair) string {
	if len(pairs) == 0 {
		return "(empty transcript)"
	}
	var b strings.Builder
	for i, p := range pairs {
		q := p.Question
		if q == "" {
			q = "(no question)"
		}
		a := p.Answer
		if a == "" {
			a = noAnswer
		}
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, q, i+1, a)
	}
	return strings.TrimRight(b.String(), "\n")
}
