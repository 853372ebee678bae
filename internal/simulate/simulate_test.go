package simulate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/intervue/internal/adapters/asr"
	"github.com/okian/intervue/internal/adapters/blob"
	"github.com/okian/intervue/internal/adapters/catalog"
	"github.com/okian/intervue/internal/adapters/http/api"
	"github.com/okian/intervue/internal/adapters/http/client"
	service "github.com/okian/intervue/internal/app"
	"github.com/okian/intervue/internal/config"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const testCatalog = `
interviews:
  - id: go
    title: Go Engineer
    duration: 10m
    allowed_attempts: 1
    opening: Tell me about yourself.
    rubric:
      - {id: communication, name: Communication, weight: 3, scale: {type: "1-5"}}
      - {id: depth, name: Technical depth, weight: 1, scale: {type: percentage}}
invitations:
  - {token: tok, interview_id: go, candidate_id: cand-1}
`

type countingASR struct {
	calls atomic.Int64
}

func (c *countingASR) Transcribe(_ context.Context, _ string, audio io.Reader) (asr.Response, error) {
	_, _ = io.Copy(io.Discard, audio)
	c.calls.Add(1)
	return asr.Response{Text: "I mostly write concurrent Go services and care about clear error handling."}, nil
}

func newClient(t *testing.T, opts ...service.Option) (*client.Client, string) {
	t.Helper()
	c, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	dir := t.TempDir()
	blobs, err := blob.New(dir)
	if err != nil {
		t.Fatalf("blobs: %v", err)
	}
	svc := service.New(append([]service.Option{service.WithCatalog(c), service.WithBlobs(blobs)}, opts...)...)
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cl, err := client.New(srv.URL, "tok", client.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return cl, dir
}

func sessionConfig() config.SessionConfig {
	cfg := config.New().Session
	cfg.UploadBaseDelay = time.Millisecond
	cfg.ProctorMinInterval = 5 * time.Millisecond
	cfg.ProctorMaxInterval = 10 * time.Millisecond
	cfg.SegmentDuration = 10 * time.Millisecond
	return cfg
}

func quickScript() Script {
	s := DefaultScript()
	s.Pause = 20 * time.Millisecond
	s.Chunks = 3
	s.ChunkSize = 256
	s.ChunkEvery = time.Millisecond
	return s
}

func TestRun(t *testing.T) {
	Convey("Given a server without an LLM", t, func() {
		ctx := context.Background()
		cl, _ := newClient(t)

		Convey("When a scripted candidate completes the interview", func() {
			script := quickScript()
			res, err := Run(ctx, cl, sessionConfig(), script, WithWordDelay(0))
			So(err, ShouldBeNil)

			Convey("Then every answer should be answered and the attempt completed", func() {
				So(res.Replies, ShouldHaveLength, len(script.Answers))
				So(res.Outcome.Completed, ShouldBeTrue)
				So(res.Outcome.TranscriptSaved, ShouldBeTrue)
				So(res.Outcome.Reason, ShouldEqual, "ended")
				So(res.Outcome.AttemptNumber, ShouldEqual, 1)
				So(res.Outcome.Turns[0].Text, ShouldEqual, "Tell me about yourself.")
				So(res.Outcome.Turns, ShouldHaveLength, 1+2*len(script.Answers))
			})

			Convey("Then a fallback report should cover the rubric", func() {
				So(res.Report, ShouldNotBeNil)
				So(res.Report.Source, ShouldEqual, model.SourceFallback)
				So(res.Report.Scores, ShouldHaveLength, 2)
				So(res.Report.AttemptNumber, ShouldEqual, 1)
			})

			Convey("Then a second run should find no attempt left", func() {
				_, err := Run(ctx, cl, sessionConfig(), script, WithWordDelay(0))
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given a server with a speech backend", t, func() {
		ctx := context.Background()
		recognizer := &countingASR{}
		cl, _ := newClient(t, service.WithTranscriber(recognizer))

		Convey("When the candidate speaks through the relay", func() {
			script := quickScript()
			script.Relay = true
			script.Pause = 60 * time.Millisecond
			script.Report = false
			res, err := Run(ctx, cl, sessionConfig(), script, WithWordDelay(0))

			So(err, ShouldBeNil)
			So(res.Outcome.Completed, ShouldBeTrue)
			So(res.Replies, ShouldHaveLength, len(script.Answers))
			So(res.Report, ShouldBeNil)
			So(recognizer.calls.Load(), ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a script without answers", t, func() {
		cl, _ := newClient(t)
		_, err := Run(context.Background(), cl, sessionConfig(), Script{})
		So(errors.Is(err, ErrInvalidScript), ShouldBeTrue)
	})
}

func TestLoadScript(t *testing.T) {
	Convey("Given a script file", t, func() {
		dir := t.TempDir()

		Convey("When only answers are set", func() {
			path := filepath.Join(dir, "script.yaml")
			So(os.WriteFile(path, []byte("answers:\n  - one\n  - two\nrelay: true\npause: 1s\n"), 0o600), ShouldBeNil)

			s, err := LoadScript(path)
			So(err, ShouldBeNil)
			So(s.Answers, ShouldResemble, []string{"one", "two"})
			So(s.Relay, ShouldBeTrue)
			So(s.Pause, ShouldEqual, time.Second)
			So(s.Chunks, ShouldEqual, DefaultScript().Chunks)
		})

		Convey("When answers are empty", func() {
			path := filepath.Join(dir, "empty.yaml")
			So(os.WriteFile(path, []byte("answers: []\n"), 0o600), ShouldBeNil)
			_, err := LoadScript(path)
			So(errors.Is(err, ErrInvalidScript), ShouldBeTrue)
		})

		Convey("When the file is missing", func() {
			_, err := LoadScript(filepath.Join(dir, "missing.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}
