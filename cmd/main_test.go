package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/intervue/internal/adapters/http/api"
	"github.com/okian/intervue/internal/config"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/logger"
)

const testCatalog = `
interviews:
  - id: go
    title: Go Engineer
    duration: 20m
    allowed_attempts: 2
    rubric:
      - {id: communication, name: Communication, weight: 1, scale: {type: "1-5"}}
invitations:
  - {token: tok, interview_id: go, candidate_id: cand-1}
`

const scoreFile = `
interview: Go Engineer
rubric:
  - {id: communication, name: Communication, weight: 60, scale: {type: "1-5"}}
  - {id: depth, name: Technical depth, weight: 40, scale: {type: percentage}}
transcript:
  - {role: assistant, text: Tell me about a service you built.}
  - {role: user, text: I built a payment gateway in Go that handled retries with exponential backoff and idempotency keys.}
`

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		convey.Convey("When listing subcommands", func() {
			names := map[string]bool{}
			for _, c := range newRootCmd().Commands() {
				names[c.Name()] = true
			}
			convey.So(names["serve"], convey.ShouldBeTrue)
			convey.So(names["score"], convey.ShouldBeTrue)
			convey.So(names["simulate"], convey.ShouldBeTrue)
			convey.So(names["version"], convey.ShouldBeTrue)
		})

		convey.Convey("When printing the version", func() {
			out, err := execute("version")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "intervue version: ")
		})

		convey.Convey("When score is missing its input", func() {
			_, err := execute("score")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "input")
		})
	})
}

func TestSetup(t *testing.T) {
	convey.Convey("Given configuration from the environment", t, func() {
		t.Setenv("INTERVUE_ADDR", ":8088")
		t.Setenv("INTERVUE_SCORING__MIN_WORDS", "5")

		convey.Convey("Then flags should override the loaded values", func() {
			cfg, err := setup(context.Background(), &rootFlags{logLevel: "debug", json: true})
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8088")
			convey.So(cfg.Scoring.MinWords, convey.ShouldEqual, 5)
			convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
		})

		convey.Convey("Then an invalid store driver should fail", func() {
			t.Setenv("INTERVUE_STORE__DRIVER", "cassandra")
			_, err := setup(context.Background(), &rootFlags{})
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
	if err := logger.Init(); err != nil {
		t.Fatalf("reset logger: %v", err)
	}
}

func TestScoreCommand(t *testing.T) {
	convey.Convey("Given a transcript file and no LLM", t, func() {
		t.Setenv("INTERVUE_LLM__PROVIDER", "none")
		input := writeFile(t, "attempt.yaml", scoreFile)

		convey.Convey("When scoring to stdout", func() {
			out, err := execute("score", "--input", input)
			convey.So(err, convey.ShouldBeNil)

			var rep model.Report
			convey.So(json.Unmarshal([]byte(out), &rep), convey.ShouldBeNil)
			convey.So(rep.Source, convey.ShouldEqual, model.SourceFallback)
			convey.So(rep.Scores, convey.ShouldHaveLength, 2)
			convey.So(rep.Summary, convey.ShouldNotBeEmpty)
		})

		convey.Convey("When scoring into a file", func() {
			output := filepath.Join(t.TempDir(), "report.json")
			_, err := execute("score", "-i", input, "--bypass-llm", "-o", output)
			convey.So(err, convey.ShouldBeNil)

			data, err := os.ReadFile(output)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(data), convey.ShouldContainSubstring, `"source": "fallback"`)
		})

		convey.Convey("When the rubric is empty", func() {
			empty := writeFile(t, "empty.yaml", "transcript: []\n")
			_, err := execute("score", "-i", empty)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestBuildService(t *testing.T) {
	convey.Convey("Given a memory store and a catalog file", t, func() {
		cfg := config.New()
		cfg.Catalog.Path = writeFile(t, "catalog.yaml", testCatalog)
		cfg.Blob.Dir = t.TempDir()
		cfg.LLM.Provider = "none"
		ctx := context.Background()

		svc, err := buildService(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		convey.Convey("Then the attempt routes should answer", func() {
			resp, err := http.Get(srv.URL + strings.Replace(api.PathConfig, "{token}", "tok", 1))
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			var body api.ConfigResponse
			convey.So(json.NewDecoder(resp.Body).Decode(&body), convey.ShouldBeNil)
			convey.So(body.AllowedAttempts, convey.ShouldEqual, 2)
		})

		convey.Convey("Then the relay should report no speech backend", func() {
			stats := svc.GetStats()
			convey.So(stats["llm"], convey.ShouldEqual, false)
			convey.So(stats["transcription"], convey.ShouldEqual, false)
		})
	})

	convey.Convey("Given a missing catalog", t, func() {
		cfg := config.New()
		cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")
		cfg.Blob.Dir = t.TempDir()
		_, err := buildService(context.Background(), cfg, logger.Nop())
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestNewLLM(t *testing.T) {
	convey.Convey("Given LLM settings", t, func() {
		ctx := context.Background()
		convey.So(newLLM(ctx, config.LLMConfig{Provider: "none"}, logger.Nop()), convey.ShouldBeNil)
		convey.So(newLLM(ctx, config.LLMConfig{Provider: "gemini"}, logger.Nop()), convey.ShouldBeNil)
	})
}
