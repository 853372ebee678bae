package transcription

import (
	"strings"
	"sync"
)

// Pending accumulates recognized text until the candidate sends it.
type Pending struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

// NewPending creates an empty buffer.
func NewPending() *Pending {
	return &Pending{}
}

// Append adds finalized text and clears the interim hypothesis.
func (p *Pending) Append(text string) {
	text = strings.TrimSpace(text)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interim = ""
	if text != "" {
		p.finals = append(p.finals, text)
	}
}

// SetInterim replaces the current interim hypothesis.
func (p *Pending) SetInterim(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interim = strings.TrimSpace(text)
}

// Text returns finalized text followed by the interim hypothesis.
func (p *Pending) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joinLocked()
}

// Take returns Text and clears the buffer.
func (p *Pending) Take() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.joinLocked()
	p.finals, p.interim = nil, ""
	return s
}

// Clear drops everything.
func (p *Pending) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finals, p.interim = nil, ""
}

func (p *Pending) joinLocked() string {
	parts := p.finals
	if p.interim != "" {
		parts = append(parts[:len(parts):len(parts)], p.interim)
	}
	return strings.Join(parts, " ")
}
