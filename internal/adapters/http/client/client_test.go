package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/intervue/internal/adapters/blob"
	"github.com/okian/intervue/internal/adapters/catalog"
	"github.com/okian/intervue/internal/adapters/http/api"
	"github.com/okian/intervue/internal/adapters/http/client"
	service "github.com/okian/intervue/internal/app"
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
    duration: 15m
    allowed_attempts: 1
    opening: Tell me about yourself.
    rubric:
      - {id: communication, name: Communication, weight: 1, scale: {type: "1-5"}}
invitations:
  - {token: tok, interview_id: go, candidate_id: cand-1}
`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	c, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	blobs, err := blob.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobs: %v", err)
	}
	svc := service.New(service.WithCatalog(c), service.WithBlobs(blobs))
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	Convey("Given client construction", t, func() {
		_, err := client.New("", "tok")
		So(errors.Is(err, client.ErrMissingBaseURL), ShouldBeTrue)

		_, err = client.New("http://localhost", "  ")
		So(errors.Is(err, client.ErrMissingToken), ShouldBeTrue)

		cl, err := client.New("http://localhost/", " tok ", client.WithTimeout(time.Second))
		So(err, ShouldBeNil)
		So(cl.Token(), ShouldEqual, "tok")
	})
}

func TestClientRoundTrip(t *testing.T) {
	Convey("Given a client against a live server", t, func() {
		srv := newServer(t)
		ctx := context.Background()
		cl, err := client.New(srv.URL, "tok", client.WithHTTPClient(srv.Client()))
		So(err, ShouldBeNil)

		Convey("When reading the config", func() {
			cfg, err := cl.Config(ctx)
			So(err, ShouldBeNil)
			So(cfg.InterviewID, ShouldEqual, "go")
			So(cfg.Duration, ShouldEqual, 15*time.Minute)
			So(cfg.Exhausted(), ShouldBeFalse)
		})

		Convey("When the token is unknown", func() {
			other, _ := client.New(srv.URL, "nope", client.WithHTTPClient(srv.Client()))
			_, err := other.Config(ctx)
			So(errors.Is(err, client.ErrNotFound), ShouldBeTrue)

			var se *client.StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Code, ShouldEqual, "unknown_token")
		})

		Convey("When running an attempt", func() {
			att, err := cl.SetStatus(ctx, model.StatusInProgress)
			So(err, ShouldBeNil)
			So(att.Number, ShouldEqual, 1)
			So(att.StartedAt.IsZero(), ShouldBeFalse)

			opening, err := cl.Chat(ctx, nil, "", 0, 15*time.Minute)
			So(err, ShouldBeNil)
			So(opening, ShouldEqual, "Tell me about yourself.")

			_, err = cl.Chat(ctx, model.Transcript{{Role: model.RoleAssistant, Text: opening}}, "hi", time.Minute, 0)
			So(errors.Is(err, client.ErrUnavailable), ShouldBeTrue)

			chunk := model.MediaChunk{AttemptID: att.ID, Sequence: 1, Payload: []byte("data"), CapturedAt: time.Now(), Source: "interview"}
			So(cl.Deliver(ctx, chunk), ShouldBeNil)
			So(cl.Deliver(ctx, chunk), ShouldBeNil)

			stored, err := cl.ProctorPhoto(ctx, att.ID, []byte("jpeg"), "")
			So(err, ShouldBeNil)
			So(stored, ShouldBeTrue)
			stored, err = cl.ProctorPhoto(ctx, att.ID, []byte("jpeg"), "jpg")
			So(err, ShouldBeNil)
			So(stored, ShouldBeFalse)

			So(cl.ProctorStatus(ctx, att.ID, model.ProctorBaselineCaptured), ShouldBeNil)

			_, err = cl.Transcribe(ctx, []byte("audio"))
			So(errors.Is(err, client.ErrUnavailable), ShouldBeTrue)

			So(cl.SaveTranscript(ctx, att.ID, model.Transcript{
				{Role: model.RoleAssistant, Text: opening},
				{Role: model.RoleUser, Text: "I have written Go services for six years and enjoy concurrency a lot."},
			}), ShouldBeNil)
			done, err := cl.SetStatus(ctx, model.StatusCompleted)
			So(err, ShouldBeNil)
			So(done.Status, ShouldEqual, model.StatusCompleted)

			Convey("Then a second attempt should be refused", func() {
				_, err := cl.SetStatus(ctx, model.StatusInProgress)
				So(errors.Is(err, model.ErrAttemptsExhausted), ShouldBeTrue)
			})

			Convey("Then the transcript should be frozen", func() {
				err := cl.SaveTranscript(ctx, att.ID, model.Transcript{{Role: model.RoleUser, Text: "late"}})
				So(errors.Is(err, model.ErrAttemptCompleted), ShouldBeTrue)
			})

			Convey("Then a report should be generated once", func() {
				rep, err := cl.GenerateReport(ctx, api.ReportRequest{})
				So(err, ShouldBeNil)
				So(rep.Scores, ShouldHaveLength, 1)

				again, err := cl.Report(ctx, 1)
				So(err, ShouldBeNil)
				So(again.ID, ShouldEqual, rep.ID)
			})
		})

		Convey("When fetching a rubric", func() {
			params, err := cl.Rubric(ctx, "go")
			So(err, ShouldBeNil)
			So(params, ShouldHaveLength, 1)
			So(params[0].Weight, ShouldEqual, 100)
		})
	})
}

func TestStatusErrorWithPlainBody(t *testing.T) {
	Convey("Given a server answering with plain text", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gateway down", http.StatusBadGateway)
		}))
		defer srv.Close()

		cl, _ := client.New(srv.URL, "tok")
		err := cl.Deliver(context.Background(), model.MediaChunk{Sequence: 1, Payload: []byte("x")})

		var se *client.StatusError
		So(errors.As(err, &se), ShouldBeTrue)
		So(se.Status, ShouldEqual, http.StatusBadGateway)
		So(se.Message, ShouldEqual, "gateway down")
		So(errors.Is(err, client.ErrUnavailable), ShouldBeTrue)
	})
}
