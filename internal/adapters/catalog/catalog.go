// Package catalog reads interviews, their rubrics and candidate invitations
// from a YAML file.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/intervue/internal/domain/model"
)

var (
	ErrNotFound = errors.New("not found in catalog")
	ErrInvalid  = errors.New("invalid catalog")
)

// Interview is one configured interview.
type Interview struct {
	ID              string                  `yaml:"id"`
	Title           string                  `yaml:"title"`
	Description     string                  `yaml:"description"`
	Role            string                  `yaml:"role"`
	Language        string                  `yaml:"language"`
	Duration        time.Duration           `yaml:"duration"`
	AllowedAttempts int                     `yaml:"allowed_attempts"`
	CEFR            bool                    `yaml:"cefr"`
	Opening         string                  `yaml:"opening"`
	Rubric          []model.RubricParameter `yaml:"rubric"`
}

// Config returns the session view of the interview.
func (iv Interview) Config(usedAttempts int) model.InterviewConfig {
	return model.InterviewConfig{
		InterviewID:     iv.ID,
		Title:           iv.Title,
		Description:     iv.Description,
		Role:            iv.Role,
		Language:        iv.Language,
		Duration:        iv.Duration,
		AllowedAttempts: iv.AllowedAttempts,
		UsedAttempts:    usedAttempts,
		CEFR:            iv.CEFR,
		Opening:         iv.Opening,
	}
}

// Invitation binds an access token to a candidate and an interview.
type Invitation struct {
	Token       string `yaml:"token"`
	InterviewID string `yaml:"interview_id"`
	CandidateID string `yaml:"candidate_id"`
}

type document struct {
	Interviews  []Interview  `yaml:"interviews"`
	Invitations []Invitation `yaml:"invitations"`
}

// Catalog is an immutable in-memory index of a catalog file.
type Catalog struct {
	interviews  map[string]Interview
	invitations map[string]Invitation
}

// Load reads and parses the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	c := &Catalog{
		interviews:  make(map[string]Interview, len(doc.Interviews)),
		invitations: make(map[string]Invitation, len(doc.Invitations)),
	}
	for _, iv := range doc.Interviews {
		iv.ID = strings.TrimSpace(iv.ID)
		if iv.ID == "" {
			return nil, fmt.Errorf("%w: interview without id", ErrInvalid)
		}
		if _, dup := c.interviews[iv.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate interview %q", ErrInvalid, iv.ID)
		}
		if iv.AllowedAttempts <= 0 {
			iv.AllowedAttempts = 1
		}
		for i := range iv.Rubric {
			iv.Rubric[i].Scale.Type = model.ParseScaleType(string(iv.Rubric[i].Scale.Type))
		}
		c.interviews[iv.ID] = iv
	}
	for _, inv := range doc.Invitations {
		inv.Token = strings.TrimSpace(inv.Token)
		if inv.Token == "" {
			return nil, fmt.Errorf("%w: invitation without token", ErrInvalid)
		}
		if _, ok := c.interviews[inv.InterviewID]; !ok {
			return nil, fmt.Errorf("%w: invitation %q references unknown interview %q", ErrInvalid, inv.Token, inv.InterviewID)
		}
		c.invitations[inv.Token] = inv
	}
	return c, nil
}

// Invitation resolves an access token.
func (c *Catalog) Invitation(token string) (Invitation, error) {
	inv, ok := c.invitations[strings.TrimSpace(token)]
	if !ok {
		return Invitation{}, fmt.Errorf("invitation: %w", ErrNotFound)
	}
	return inv, nil
}

// Interview returns an interview by id.
func (c *Catalog) Interview(id string) (Interview, error) {
	iv, ok := c.interviews[id]
	if !ok {
		return Interview{}, fmt.Errorf("interview %q: %w", id, ErrNotFound)
	}
	return iv, nil
}

// Rubric returns a copy of an interview's rubric as written in the file.
func (c *Catalog) Rubric(id string) ([]model.RubricParameter, error) {
	iv, err := c.Interview(id)
	if err != nil {
		return nil, err
	}
	return append([]model.RubricParameter(nil), iv.Rubric...), nil
}
