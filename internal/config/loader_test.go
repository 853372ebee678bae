package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/intervue/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.LLM.Model, convey.ShouldEqual, "gemini-2.5-flash")
				convey.So(cfg.Session.ProctorMinInterval, convey.ShouldEqual, 2*time.Second)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("INTERVUE_ADDR", ":8080")
			_ = os.Setenv("INTERVUE_DEDUPE_SIZE", "250000")
			_ = os.Setenv("INTERVUE_STORE__DRIVER", "sqlite")
			_ = os.Setenv("INTERVUE_STORE__DSN", "file::memory:")
			_ = os.Setenv("INTERVUE_SESSION__UPLOAD_BASE_DELAY", "250ms")
			_ = os.Setenv("INTERVUE_SCORING__BYPASS_LLM", "true")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 250000)
				convey.So(cfg.Store.Driver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.Store.DSN, convey.ShouldEqual, "file::memory:")
				convey.So(cfg.Session.UploadBaseDelay, convey.ShouldEqual, 250*time.Millisecond)
				convey.So(cfg.Scoring.BypassLLM, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
log_level: debug
llm:
  provider: none
  model: test-model
scoring:
  min_words: 20
session:
  upload_max_attempts: 3
  proctor_max_interval: 10s
`
			path := createTempConfigFile(t, yamlContent)

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.LLM.Provider, convey.ShouldEqual, "none")
				convey.So(cfg.LLM.Model, convey.ShouldEqual, "test-model")
				convey.So(cfg.Scoring.MinWords, convey.ShouldEqual, 20)
				convey.So(cfg.Session.UploadMaxAttempts, convey.ShouldEqual, 3)
				convey.So(cfg.Session.ProctorMaxInterval, convey.ShouldEqual, 10*time.Second)
			})

			convey.Convey("Then fields missing from the file keep their defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Scoring.LengthCap, convey.ShouldEqual, 300)
				convey.So(cfg.Session.UploadMultiplier, convey.ShouldEqual, 1.8)
			})
		})

		convey.Convey("When both file and environment variables are set", func() {
			path := createTempConfigFile(t, "addr: \":9090\"\nscoring:\n  min_words: 20\n")
			_ = os.Setenv(config.EnvConfigPath, path)
			_ = os.Setenv("INTERVUE_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Scoring.MinWords, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := createTempConfigFile(t, `invalid: yaml: content: [`)

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.Load(ctx, "/non/existent/file.yaml")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("INTERVUE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("INTERVUE_DEDUPE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, k := range []string{
		config.EnvConfigPath,
		"INTERVUE_ADDR",
		"INTERVUE_DEDUPE_SIZE",
		"INTERVUE_STORE__DRIVER",
		"INTERVUE_STORE__DSN",
		"INTERVUE_SESSION__UPLOAD_BASE_DELAY",
		"INTERVUE_SCORING__BYPASS_LLM",
	} {
		_ = os.Unsetenv(k)
	}
}
