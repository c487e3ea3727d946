// Package transformers rewrites page images between download and storage.
package transformers

import (
	"context"
	"io"
)

// Transformer consumes an image stream and returns a possibly re-encoded
// stream together with a possibly renamed target.
type Transformer interface {
	Transform(ctx context.Context, r io.Reader, target string) (io.Reader, string, error)
}

// Chain runs transformers left to right, feeding each the previous output
type Chain []Transformer

func (c Chain) Transform(ctx context.Context, r io.Reader, target string) (io.Reader, string, error) {
	var err error
	for _, t := range c {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		r, target, err = t.Transform(ctx, r, target)
		if err != nil {
			return nil, "", err
		}
	}
	return r, target, nil
}
