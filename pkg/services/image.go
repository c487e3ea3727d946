package services

import (
	"context"
	"io"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/metrics"
	"github.com/kerbaras/webtoons/pkg/storage"
	"github.com/kerbaras/webtoons/pkg/transformers"
)

// Streamer opens image responses
type Streamer interface {
	Stream(ctx context.Context, rawURL string) (*client.Stream, error)
}

// PageResult identifies a page that reached its storage
type PageResult struct {
	URL  string
	Name string // item name inside the storage writer
	Size int64
}

// ImageDownloader moves one page from the network through the transformers
// into a storage writer. Retries belong to the Streamer.
type ImageDownloader struct {
	client      Streamer
	transformer transformers.Transformer
	metrics     *metrics.Metrics
}

// NewImageDownloader creates an ImageDownloader; t and m may be nil
func NewImageDownloader(c Streamer, t transformers.Transformer, m *metrics.Metrics) *ImageDownloader {
	return &ImageDownloader{client: c, transformer: t, metrics: m}
}

// Run downloads url and stores it as target in w. progress, when set, is
// called once after the page is stored.
func (d *ImageDownloader) Run(ctx context.Context, url, target string, w storage.Writer, progress func(PageResult)) (PageResult, error) {
	stream, err := d.client.Stream(ctx, url)
	if err != nil {
		return PageResult{}, &ImageDownloadError{URL: url, Name: target, Err: err}
	}
	defer stream.Close()

	var r io.Reader = stream
	name := target
	if d.transformer != nil {
		r, name, err = d.transformer.Transform(ctx, stream, target)
		if err != nil {
			return PageResult{}, &ImageDownloadError{URL: url, Name: target, Err: err}
		}
	}

	n, err := w.Write(r, name)
	if err != nil {
		return PageResult{}, err
	}
	d.metrics.PageWritten(n)

	result := PageResult{URL: url, Name: name, Size: n}
	if progress != nil {
		progress(result)
	}
	return result, nil
}
