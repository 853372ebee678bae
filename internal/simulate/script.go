package simulate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Script describes one simulated candidate.
type Script struct {
	// Answers are typed or spoken in order, one per interviewer turn.
	Answers []string `yaml:"answers"`
	// Pause separates answers.
	Pause time.Duration `yaml:"pause"`
	// Chunks media chunks of ChunkSize bytes are recorded every ChunkEvery.
	Chunks     int           `yaml:"chunks"`
	ChunkSize  int           `yaml:"chunk_size"`
	ChunkEvery time.Duration `yaml:"chunk_every"`
	// Proctor runs the proctoring monitor over a synthetic camera.
	Proctor bool `yaml:"proctor"`
	// Relay sends a synthetic audio segment through the server relay before
	// each answer and submits whatever it recognized.
	Relay bool `yaml:"relay"`
	// Report asks the server to score the attempt after it ends.
	Report    bool `yaml:"report"`
	BypassLLM bool `yaml:"bypass_llm"`
}

// DefaultScript is used when no script file is given.
func DefaultScript() Script {
	return Script{
		Answers: []string{
			"I have spent the last five years building backend services in Go, mostly payment and messaging systems.",
			"I usually reach for goroutines with bounded worker pools and pass work over channels, with context for cancellation.",
			"When a dependency is slow I add timeouts, retries with backoff and a fallback path so users still get an answer.",
		},
		Pause:      200 * time.Millisecond,
		Chunks:     8,
		ChunkSize:  16 << 10,
		ChunkEvery: 100 * time.Millisecond,
		Proctor:    true,
		Report:     true,
	}
}

// LoadScript reads a YAML script. Missing fields keep DefaultScript values.
func LoadScript(path string) (Script, error) {
	s := DefaultScript()
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parse script %s: %w", path, err)
	}
	if len(s.Answers) == 0 {
		return Script{}, fmt.Errorf("%w: script %s has no answers", ErrInvalidScript, path)
	}
	return s, nil
}
