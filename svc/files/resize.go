package files

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxThumbSourcePixels caps the decoded dimensions of a thumbnail source.
const MaxThumbSourcePixels = 50_000_000

// ErrImageTooLarge rejects sources whose header declares more pixels than
// MaxThumbSourcePixels.
var ErrImageTooLarge = errors.New("files: image dimensions too large")

// Resizer renders the image at src into dst at exactly width x height.
type Resizer interface {
	Resize(ctx context.Context, src, dst string, width, height int) error
}

type ResizerFunc func(ctx context.Context, src, dst string, width, height int) error

func (f ResizerFunc) Resize(ctx context.Context, src, dst string, width, height int) error {
	return f(ctx, src, dst, width, height)
}

// DefaultResizer scales with Catmull-Rom. JPEG sources produce JPEG
// thumbnails, everything else PNG.
func DefaultResizer(ctx context.Context, src, dst string, width, height int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	cfg, _, err := image.DecodeConfig(in)
	if err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxThumbSourcePixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return err
	}

	img, format, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), img, img.Bounds(), draw.Over, nil)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if format == "jpeg" {
		err = jpeg.Encode(out, canvas, &jpeg.Options{Quality: 85})
	} else {
		err = png.Encode(out, canvas)
	}
	if err != nil {
		out.Close()
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return out.Close()
}
