package simulate

import (
	"context"
	"crypto/rand"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/okian/intervue/internal/domain/proctor"
	"github.com/okian/intervue/internal/domain/transcription"
)

// recorder yields a fixed number of random media chunks, then io.EOF.
type recorder struct {
	mu        sync.Mutex
	remaining int
	size      int
	every     time.Duration
}

func (r *recorder) Next(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if r.remaining <= 0 {
		r.mu.Unlock()
		return nil, io.EOF
	}
	r.remaining--
	size := r.size
	r.mu.Unlock()

	if err := sleep(ctx, r.every); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 1024
	}
	buf := make([]byte, size)
	_, _ = rand.Read(buf)
	return buf, nil
}

// camera is a frame source with a platform face detector. It always shows
// one face in the same place, so the baseline always matches.
type camera struct {
	img  *image.Gray
	face image.Rectangle
}

func newCamera() *camera {
	img := image.NewGray(image.Rect(0, 0, 160, 120))
	face := image.Rect(50, 20, 110, 90)
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			v := uint8(40 + (x+y)%64)
			if (image.Point{X: x, Y: y}).In(face) {
				v = uint8(150 + (x*3+y)%80)
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return &camera{img: img, face: face}
}

func (c *camera) Frame(ctx context.Context) (proctor.Frame, error) {
	if err := ctx.Err(); err != nil {
		return proctor.Frame{}, err
	}
	return proctor.Frame{Image: c.img, Faces: []image.Rectangle{c.face}}, nil
}

func (c *camera) NativeFaces() bool { return true }

// microphone records silent segments for the relay.
type microphone struct{}

func (microphone) Record(ctx context.Context, d time.Duration) ([]byte, error) {
	if d <= 0 {
		d = transcription.DefaultSegment
	}
	if err := sleep(ctx, d); err != nil {
		return nil, err
	}
	return make([]byte, 4096), nil
}

// voice "speaks" by waiting a little per word.
type voice struct {
	perWord time.Duration
}

func (v *voice) Speak(ctx context.Context, text string) error {
	return sleep(ctx, time.Duration(len(strings.Fields(text)))*v.perWord)
}
