package proctor

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// Frame is one captured video frame.
type Frame struct {
	Image image.Image
	// Faces holds face regions reported by the capture platform, when it
	// has its own detector.
	Faces []image.Rectangle
}

// FrameSource yields the current video frame.
type FrameSource interface {
	Frame(ctx context.Context) (Frame, error)
}

// NativeFaceSource is implemented by frame sources whose platform detects
// faces itself.
type NativeFaceSource interface {
	NativeFaces() bool
}

// Detector finds face regions in a frame.
type Detector interface {
	Name() string
	Detect(ctx context.Context, f Frame) ([]image.Rectangle, error)
}

// Loader initializes a detector. It may be slow and may fail.
type Loader func(ctx context.Context) (Detector, error)

// SelectLoader picks the detector strategy once: the platform's own
// detector when the source offers one, the cascade model when a path is
// configured, otherwise a loader that always reports unavailability.
func SelectLoader(src FrameSource, cascadePath string) Loader {
	if n, ok := src.(NativeFaceSource); ok && n.NativeFaces() {
		return func(context.Context) (Detector, error) { return NativeDetector{}, nil }
	}
	if cascadePath != "" {
		return func(context.Context) (Detector, error) { return LoadModelDetector(cascadePath) }
	}
	return func(context.Context) (Detector, error) { return nil, ErrDetectorUnavailable }
}

// NativeDetector passes platform face regions through.
type NativeDetector struct{}

func (NativeDetector) Name() string { return "native" }

func (NativeDetector) Detect(_ context.Context, f Frame) ([]image.Rectangle, error) {
	if f.Faces == nil {
		return nil, ErrNoNativeFaces
	}
	return f.Faces, nil
}

// Cascade search parameters.
const (
	minFaceSize     = 40
	maxFaceSize     = 1000
	shiftFactor     = 0.1
	scaleFactor     = 1.1
	iouThreshold    = 0.2
	qualityMinScore = 5.0
)

// ModelDetector runs a pigo cascade over the grayscale frame.
type ModelDetector struct {
	classifier *pigo.Pigo
}

// LoadModelDetector unpacks the cascade file at path.
func LoadModelDetector(path string) (*ModelDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read cascade: %w", ErrDetectorUnavailable, err)
	}
	return NewModelDetector(data)
}

// NewModelDetector unpacks cascade data.
func NewModelDetector(cascade []byte) (*ModelDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack cascade: %w", ErrDetectorUnavailable, err)
	}
	return &ModelDetector{classifier: classifier}, nil
}

func (d *ModelDetector) Name() string { return "model" }

func (d *ModelDetector) Detect(ctx context.Context, f Frame) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Image == nil {
		return nil, fmt.Errorf("empty frame")
	}
	b := f.Image.Bounds()
	params := pigo.CascadeParams{
		MinSize:     minFaceSize,
		MaxSize:     maxFaceSize,
		ShiftFactor: shiftFactor,
		ScaleFactor: scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(f.Image),
			Rows:   b.Dy(),
			Cols:   b.Dx(),
			Dim:    b.Dx(),
		},
	}
	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, iouThreshold)

	var faces []image.Rectangle
	for _, det := range dets {
		if det.Q < qualityMinScore {
			continue
		}
		half := det.Scale / 2
		faces = append(faces, image.Rect(
			b.Min.X+det.Col-half, b.Min.Y+det.Row-half,
			b.Min.X+det.Col+half, b.Min.Y+det.Row+half,
		))
	}
	return faces, nil
}
