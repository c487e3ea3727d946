package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/exporter"
	"github.com/kerbaras/webtoons/pkg/metrics"
	"github.com/kerbaras/webtoons/pkg/sources"
	"github.com/kerbaras/webtoons/pkg/storage"
	"github.com/kerbaras/webtoons/pkg/transformers"
)

// OriginalFormat keeps pages in the format the CDN serves
const OriginalFormat = "original"

const (
	DefaultConcurrentChapters = 6
	DefaultConcurrentPages    = 120
)

var (
	ErrSeparateNeedsImages = errors.New("separate chapter directories require the images storage type")
	ErrConcurrency         = errors.New("concurrency limits must be greater than zero")
)

// Recorder stores the outcome of each chapter, e.g. in the download history
type Recorder interface {
	SaveDownload(d *data.Download) error
}

// Options describes one download run
type Options struct {
	URL   string
	Range data.Range
	// Dest overrides the series directory, which defaults to the slugified title
	Dest string

	Storage     storage.Type
	ZipTempFile bool // spool archive entries to disk instead of memory
	ImageFormat string
	Quality     int
	Resize      transformers.ResizeSettings

	Separate  bool
	TitleDirs bool

	ExportMetadata bool
	ExportFormat   exporter.Format

	ConcurrentChapters int
	ConcurrentPages    int

	Client client.Options
	// APIURL overrides the mobile API root used for episode lists
	APIURL string

	RunID    string
	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	OnFetched     func([]data.ChapterInfo)
	OnProgress    func(ChapterProgress)
	OnChapterDone func(ChapterResult)
}

// DefaultOptions returns options for a plain image download of url
func DefaultOptions(url string) Options {
	return Options{
		URL:                url,
		Storage:            storage.Images,
		ImageFormat:        OriginalFormat,
		ExportFormat:       exporter.JSON,
		ConcurrentChapters: DefaultConcurrentChapters,
		ConcurrentPages:    DefaultConcurrentPages,
		Client:             client.DefaultOptions(),
	}
}

// Validate checks the options that can be rejected before any network I/O
func (o Options) Validate() error {
	if err := o.Range.Validate(); err != nil {
		return err
	}
	if _, err := storage.ParseType(string(o.Storage)); err != nil {
		return err
	}
	if o.Separate && o.Storage != storage.Images {
		return ErrSeparateNeedsImages
	}
	if o.ConcurrentChapters <= 0 || o.ConcurrentPages <= 0 {
		return ErrConcurrency
	}
	if o.ImageFormat != "" && o.ImageFormat != OriginalFormat {
		if _, err := transformers.ParseFormat(o.ImageFormat); err != nil {
			return err
		}
	}
	if o.Quality < 0 || o.Quality > 100 {
		return fmt.Errorf("image quality must be between 1 and 100, got %d", o.Quality)
	}
	if o.ExportMetadata {
		if _, err := exporter.ParseFormat(string(o.ExportFormat)); err != nil {
			return err
		}
	}
	return nil
}

// Transformer builds the page transformation chain, nil when pages are
// stored as downloaded
func (o Options) Transformer() (transformers.Transformer, error) {
	var chain transformers.Chain
	if o.Resize.MaxWidth > 0 || o.Resize.Grayscale {
		chain = append(chain, transformers.NewResizeTransformer(o.Resize))
	}
	if o.ImageFormat != "" && o.ImageFormat != OriginalFormat {
		t, err := transformers.NewFormatTransformer(o.ImageFormat)
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
	}

	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	}
	return chain, nil
}

// Download runs a complete series download described by opts
func Download(ctx context.Context, opts Options) ([]ChapterResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, &WebtoonDownloadError{URL: opts.URL, Msg: "invalid options", Errs: []error{err}}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.RunID != "" {
		logger = logger.With("run", opts.RunID)
	}
	opts.Logger = logger

	clientOpts := opts.Client
	clientOpts.Metrics = opts.Metrics
	clientOpts.Logger = logger
	if clientOpts.Referer == "" {
		// the image CDN refuses requests without a webtoons referer
		clientOpts.Referer = client.WebtoonURL + "/"
	}
	c, err := client.New(clientOpts)
	if err != nil {
		return nil, &WebtoonDownloadError{URL: opts.URL, Msg: "invalid client options", Errs: []error{err}}
	}

	t, err := opts.Transformer()
	if err != nil {
		return nil, &WebtoonDownloadError{URL: opts.URL, Msg: "invalid image options", Errs: []error{err}}
	}

	fetcher := sources.NewWebtoons(c, logger)
	if opts.APIURL != "" {
		fetcher.WithAPIBase(opts.APIURL)
	}

	d := NewWebtoonDownloader(opts, fetcher, NewImageDownloader(c, t, opts.Metrics))
	return d.Run(ctx)
}
