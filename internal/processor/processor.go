package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/Sumanth-on-fire/credit-based-saas-platform/internal/models"
)

// Classified failure reasons recorded on failed tasks. Clients see these,
// never raw library errors.
const (
	ReasonUnreadableInput   = "unreadable input"
	ReasonUnsupportedFormat = "unsupported image format"
	ReasonInvalidDimensions = "invalid resize dimensions"
)

// TransformError marks a failure that is terminal for the task: retrying
// the same input and spec would fail the same way.
type TransformError struct {
	Reason string
	err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform: %s: %v", e.Reason, e.err)
}

func (e *TransformError) Unwrap() error { return e.err }

func terminal(reason string, err error) *TransformError {
	return &TransformError{Reason: reason, err: err}
}

// BlobStore is the storage surface the processor needs.
type BlobStore interface {
	Put(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Processor applies a TransformSpec to stored image bytes. It is a pure
// function of (input ref, spec) apart from writing the output blob, so
// running it twice for the same task is safe.
type Processor struct {
	blobs BlobStore
}

func New(blobs BlobStore) *Processor {
	return &Processor{blobs: blobs}
}

// Run loads the input, applies the spec's steps in a fixed order (resize,
// then grayscale, then rotate), and stores the JPEG result. Storage errors
// come back unwrapped-as-transient; everything about the image itself is a
// *TransformError.
func (p *Processor) Run(ctx context.Context, inputRef string, spec models.TransformSpec) (string, error) {
	src, err := p.blobs.Get(ctx, inputRef)
	if err != nil {
		return "", fmt.Errorf("load input %q: %w", inputRef, err)
	}
	defer src.Close()

	img, err := imaging.Decode(src)
	if err != nil {
		if err == image.ErrFormat {
			return "", terminal(ReasonUnsupportedFormat, err)
		}
		return "", terminal(ReasonUnreadableInput, err)
	}

	img, err = p.apply(img, spec)
	if err != nil {
		return "", err
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG); err != nil {
		return "", terminal(ReasonUnreadableInput, err)
	}

	outputRef, err := p.blobs.Put(ctx, "processed", uuid.New().String()+".jpg", buf)
	if err != nil {
		return "", fmt.Errorf("store output: %w", err)
	}
	return outputRef, nil
}

func (p *Processor) apply(img image.Image, spec models.TransformSpec) (image.Image, error) {
	if spec.Resize != nil {
		if spec.Resize.Width <= 0 || spec.Resize.Height <= 0 {
			return nil, terminal(ReasonInvalidDimensions, fmt.Errorf("%dx%d", spec.Resize.Width, spec.Resize.Height))
		}
		img = imaging.Resize(img, spec.Resize.Width, spec.Resize.Height, imaging.Lanczos)
	}
	if spec.Grayscale {
		img = imaging.Grayscale(img)
	}
	if spec.Rotate != 0 {
		img = imaging.Rotate(img, spec.Rotate, color.Black)
	}
	return img, nil
}
