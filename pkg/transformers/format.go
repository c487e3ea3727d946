package transformers

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/kerbaras/webtoons/pkg/naming"
)

// FormatTransformer converts pages to a single image format. Pages already in
// that format pass through byte for byte.
type FormatTransformer struct {
	format Format
}

// NewFormatTransformer creates a transformer targeting format ("jpg" or "png")
func NewFormatTransformer(format string) (*FormatTransformer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return &FormatTransformer{format: f}, nil
}

func (t *FormatTransformer) Transform(ctx context.Context, r io.Reader, target string) (io.Reader, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	target = naming.ReplaceExt(target, string(t.format))

	if detect(data) == t.format {
		return bytes.NewReader(data), target, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	img, err := decode(data)
	if err != nil {
		return nil, "", err
	}
	out, err := encode(img, t.format)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(out), target, nil
}
