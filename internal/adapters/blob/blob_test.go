package blob_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/intervue/internal/adapters/blob"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given a blob store", t, func() {
		ctx := context.Background()
		s, err := blob.New(t.TempDir())
		So(err, ShouldBeNil)

		Convey("When a chunk is stored", func() {
			key := blob.ChunkKey("att-1", 7, "interview")
			_, err := s.Put(ctx, key, []byte("payload"))
			So(err, ShouldBeNil)

			Convey("Then it can be read back", func() {
				So(key, ShouldEqual, "attempts/att-1/chunks/00000007-interview.bin")
				So(s.Exists(ctx, key), ShouldBeTrue)
				data, err := s.Get(ctx, key)
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "payload")
			})

			Convey("Then overwriting replaces the content", func() {
				_, err := s.Put(ctx, key, []byte("v2"))
				So(err, ShouldBeNil)
				data, _ := s.Get(ctx, key)
				So(string(data), ShouldEqual, "v2")
			})
		})

		Convey("When a chunk is stored with its metadata", func() {
			at := time.Date(2026, 5, 1, 9, 0, 1, 250_000_000, time.UTC)
			path, err := s.PutChunk(ctx, blob.ChunkMeta{AttemptID: "att-1", Sequence: 3, Source: "screen", CapturedAt: at}, []byte("frame"))
			So(err, ShouldBeNil)

			Convey("Then the sidecar keeps the capture time next to the chunk", func() {
				So(blob.ChunkMetaKey("att-1", 3, "screen"), ShouldEqual, "attempts/att-1/chunks/00000003-screen.json")
				So(s.Exists(ctx, blob.ChunkKey("att-1", 3, "screen")), ShouldBeTrue)
				So(path, ShouldEndWith, "00000003-screen.bin")
				meta, err := s.Meta(ctx, "att-1", 3, "screen")
				So(err, ShouldBeNil)
				So(meta.CapturedAt.Equal(at), ShouldBeTrue)
				So(meta.Size, ShouldEqual, 5)
				So(meta.Source, ShouldEqual, "screen")
			})
		})

		Convey("When a chunk has no sidecar", func() {
			_, err := s.Meta(ctx, "att-1", 99, "")
			So(errors.Is(err, blob.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a key escapes the root", func() {
			_, err := s.Put(ctx, "../evil", []byte("x"))
			So(errors.Is(err, blob.ErrInvalidKey), ShouldBeTrue)
			So(s.Exists(ctx, "../evil"), ShouldBeFalse)
		})

		Convey("When ids contain separators", func() {
			So(blob.PhotoKey("../a/b", ""), ShouldEqual, "attempts/.._a_b/proctor-photo.jpg")
		})

		Convey("When a blob is missing", func() {
			_, err := s.Get(ctx, "attempts/none")
			So(errors.Is(err, blob.ErrNotFound), ShouldBeTrue)
		})
	})
}
