package transformers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/kerbaras/webtoons/pkg/naming"
	"golang.org/x/image/draw"
)

// ResizeSettings controls ResizeTransformer
type ResizeSettings struct {
	MaxWidth  int  // 0 keeps the original width
	Grayscale bool // convert to grayscale, e.g. for e-ink readers
}

// ResizeTransformer scales pages down to a maximum width, keeping the aspect
// ratio, and optionally converts them to grayscale. Webtoon strips are tall,
// so only the width is bounded.
type ResizeTransformer struct {
	settings ResizeSettings
}

// NewResizeTransformer creates a resize stage
func NewResizeTransformer(settings ResizeSettings) *ResizeTransformer {
	return &ResizeTransformer{settings: settings}
}

func (t *ResizeTransformer) Transform(ctx context.Context, r io.Reader, target string) (io.Reader, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image dimensions: %w", err)
	}

	width, height := t.dimensions(cfg.Width, cfg.Height)
	if width == cfg.Width && !t.settings.Grayscale {
		return bytes.NewReader(data), target, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	img, err := decode(data)
	if err != nil {
		return nil, "", err
	}

	if width != cfg.Width {
		img = resize(img, width, height)
	}
	if t.settings.Grayscale {
		img = toGrayscale(img)
	}

	// keep jpg as jpg; everything else is written losslessly
	format := detect(data)
	if format != JPG {
		format = PNG
	}
	out, err := encode(img, format)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(out), naming.ReplaceExt(target, string(format)), nil
}

// dimensions bounds the width while maintaining aspect ratio
func (t *ResizeTransformer) dimensions(width, height int) (int, int) {
	if t.settings.MaxWidth <= 0 || width <= t.settings.MaxWidth {
		return width, height
	}
	scale := float64(t.settings.MaxWidth) / float64(width)
	return t.settings.MaxWidth, max(1, int(float64(height)*scale))
}

// resize uses CatmullRom for high-quality downscaling
func resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func toGrayscale(img image.Image) image.Image {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}
