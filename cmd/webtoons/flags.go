package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/config"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/exporter"
	"github.com/kerbaras/webtoons/pkg/services"
	"github.com/kerbaras/webtoons/pkg/storage"
	"github.com/kerbaras/webtoons/pkg/transformers"
	"github.com/spf13/pflag"
)

var (
	ErrMissingURL       = errors.New(`a webtoon url of the form "https://www.webtoons.com/.../list?title_no=??" is required`)
	ErrLatestWithRange  = errors.New("options --start/--end and --latest cannot be used together")
	ErrSeparateNonImage = errors.New("option --separate is only compatible with --save-as images")
	ErrInvertedRange    = errors.New("option --start must not be greater than --end")
)

// DeprecatedFlagError is returned when a flag that was replaced is used
type DeprecatedFlagError struct {
	Flag    string
	Instead string
}

func (e *DeprecatedFlagError) Error() string {
	return fmt.Sprintf("--%s is deprecated; use --%s instead", e.Flag, e.Instead)
}

// downloadFlags holds the values of the root command flags
type downloadFlags struct {
	start  int
	end    int
	latest bool

	out         string
	saveAs      string
	imageFormat string
	quality     int
	zipTempFile bool
	maxWidth    int
	grayscale   bool

	separate  bool
	titleDirs bool

	exportMetadata bool
	exportFormat   string

	concurrentChapters int
	concurrentPages    int

	retryStrategy string
	maxRetries    int
	proxy         string
	timeout       time.Duration
	rateLimit     float64

	debug       bool
	plain       bool
	metricsAddr string
	noHistory   bool
	historyDB   string

	// replaced flags, still accepted to point users at their successors
	dest        string
	exportTexts bool
}

func (f *downloadFlags) register(fs *pflag.FlagSet) {
	fs.IntVarP(&f.start, "start", "s", 0, "Start chapter")
	fs.IntVarP(&f.end, "end", "e", 0, "End chapter")
	fs.BoolVarP(&f.latest, "latest", "l", false, "Download only the latest chapter")

	fs.StringVarP(&f.out, "out", "o", "", "Download folder (default: the slugified series title)")
	fs.StringVar(&f.saveAs, "save-as", string(storage.Images), fmt.Sprintf("How to save each chapter: %v", storage.Types))
	fs.StringVarP(&f.imageFormat, "image-format", "f", string(transformers.JPG), "Image format of downloaded pages: jpg, png or original")
	fs.IntVar(&f.quality, "quality", 0, "CDN image quality 1-100 (default: as served)")
	fs.BoolVar(&f.zipTempFile, "zip-buffer-on-disk", false, "Spool archive entries to a temporary file instead of memory")
	fs.IntVar(&f.maxWidth, "max-width", 0, "Scale pages down to this width")
	fs.BoolVar(&f.grayscale, "grayscale", false, "Convert pages to grayscale")

	fs.BoolVar(&f.separate, "separate", false, "Download each chapter in separate folders")
	fs.BoolVar(&f.titleDirs, "title-dirs", false, "Name separate chapter folders after the chapter title")

	fs.BoolVar(&f.exportMetadata, "export-metadata", false, "Export series summary, chapter titles and author notes")
	fs.StringVar(&f.exportFormat, "export-format", string(exporter.JSON), fmt.Sprintf("Format of exported metadata: %v", exporter.Formats))

	fs.IntVar(&f.concurrentChapters, "concurrent-chapters", services.DefaultConcurrentChapters, "Number of chapters downloaded at once")
	fs.IntVar(&f.concurrentPages, "concurrent-pages", services.DefaultConcurrentPages, "Number of pages downloaded at once, shared by all chapters")

	fs.StringVar(&f.retryStrategy, "retry-strategy", string(client.RetryExponential), fmt.Sprintf("Retry strategy: %v", client.Strategies))
	fs.IntVar(&f.maxRetries, "max-retries", 5, "Retries per request")
	fs.StringVar(&f.proxy, "proxy", "", "Proxy address to use for requests, e.g. http://127.0.0.1:7890")
	fs.DurationVar(&f.timeout, "timeout", 10*time.Second, "Timeout of a single request")
	fs.Float64Var(&f.rateLimit, "rate-limit", 0, "Maximum requests per second, 0 for no limit")

	fs.BoolVar(&f.debug, "debug", false, "Write debug logs to the log file")
	fs.BoolVar(&f.plain, "plain", false, "Print plain progress lines instead of the interactive view")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address during the download")
	fs.BoolVar(&f.noHistory, "no-history", false, "Do not record the download in the history database")
	fs.StringVar(&f.historyDB, "history-db", "webtoons.db", "Download history database")

	fs.StringVar(&f.dest, "dest", "", "Use --out instead")
	fs.BoolVar(&f.exportTexts, "export-texts", false, "Use --export-metadata instead")
	fs.MarkHidden("dest")
	fs.MarkHidden("export-texts")
}

// applyConfig fills every flag the user did not set with the loaded configuration
func (f *downloadFlags) applyConfig(fs *pflag.FlagSet, cfg *config.Config) {
	if cfg == nil {
		return
	}
	unset := func(name string) bool { return !fs.Changed(name) }

	if unset("concurrent-chapters") {
		f.concurrentChapters = cfg.ConcurrentChapters
	}
	if unset("concurrent-pages") {
		f.concurrentPages = cfg.ConcurrentPages
	}
	if unset("retry-strategy") {
		f.retryStrategy = cfg.RetryStrategy
	}
	if unset("max-retries") {
		f.maxRetries = cfg.MaxRetries
	}
	if unset("proxy") {
		f.proxy = cfg.Proxy
	}
	if unset("timeout") {
		f.timeout = cfg.Timeout
	}
	if unset("rate-limit") {
		f.rateLimit = cfg.RateLimit
	}
	if unset("history-db") {
		f.historyDB = cfg.HistoryDB
	}
}

// options validates the flags and turns them into download options
func (f *downloadFlags) options(fs *pflag.FlagSet, args []string) (services.Options, error) {
	if fs.Changed("dest") {
		return services.Options{}, &DeprecatedFlagError{Flag: "dest", Instead: "out"}
	}
	if fs.Changed("export-texts") {
		return services.Options{}, &DeprecatedFlagError{Flag: "export-texts", Instead: "export-metadata"}
	}
	if len(args) == 0 || args[0] == "" {
		return services.Options{}, ErrMissingURL
	}
	if f.latest && (f.start != 0 || f.end != 0) {
		return services.Options{}, ErrLatestWithRange
	}
	if f.separate && f.saveAs != string(storage.Images) {
		return services.Options{}, ErrSeparateNonImage
	}
	if f.start != 0 && f.end != 0 && f.start > f.end {
		return services.Options{}, ErrInvertedRange
	}

	saveAs, err := storage.ParseType(f.saveAs)
	if err != nil {
		return services.Options{}, err
	}

	opts := services.DefaultOptions(args[0])
	opts.Range = data.Range{Start: f.start, End: f.end, Latest: f.latest}
	opts.Dest = f.out
	opts.Storage = saveAs
	opts.ZipTempFile = f.zipTempFile
	opts.ImageFormat = f.imageFormat
	opts.Quality = f.quality
	opts.Resize = transformers.ResizeSettings{MaxWidth: f.maxWidth, Grayscale: f.grayscale}
	opts.Separate = f.separate
	opts.TitleDirs = f.titleDirs
	opts.ExportMetadata = f.exportMetadata
	opts.ExportFormat = exporter.Format(f.exportFormat)
	opts.ConcurrentChapters = f.concurrentChapters
	opts.ConcurrentPages = f.concurrentPages

	opts.Client.Retry = client.RetryStrategy(f.retryStrategy)
	opts.Client.MaxRetries = f.maxRetries
	opts.Client.Proxy = f.proxy
	opts.Client.Timeout = f.timeout
	opts.Client.RequestsPerSecond = f.rateLimit

	if err := opts.Validate(); err != nil {
		return services.Options{}, err
	}
	return opts, nil
}
