package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/kerbaras/webtoons/pkg/app"
	"github.com/kerbaras/webtoons/pkg/app/styles"
	"github.com/kerbaras/webtoons/pkg/config"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/kerbaras/webtoons/pkg/metrics"
	"github.com/kerbaras/webtoons/pkg/services"
	"github.com/spf13/cobra"
)

const rateLimitHint = "The server is rate limiting the download. Try lowering --concurrent-chapters and --concurrent-pages, or set --rate-limit."

var flags downloadFlags

var rootCmd = &cobra.Command{
	Use:   "webtoons [url]",
	Short: "Download webtoon series",
	Long: `Download chapters of a webtoons.com series as images, zip/cbz archives, pdf or epub.

The url is the series page, of the form https://www.webtoons.com/.../list?title_no=??.
Defaults can be set with WEBTOON_* environment variables or a .env file.`,
	Version:       "1.0.0",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			return cmd.Help()
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		flags.applyConfig(cmd.Flags(), cfg)

		opts, err := flags.options(cmd.Flags(), args)
		if err != nil {
			return err
		}
		return download(cmd, opts, cfg)
	},
}

func init() {
	flags.register(rootCmd.Flags())
	rootCmd.AddCommand(historyCmd)
}

func download(cmd *cobra.Command, opts services.Options, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger, closeLog, err := newLogger(flags.debug, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	opts.RunID = uuid.NewString()
	opts.Logger = logger

	if flags.metricsAddr != "" {
		opts.Metrics = metrics.New()
		go func() {
			if err := opts.Metrics.Serve(ctx, flags.metricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if !flags.noHistory && flags.historyDB != "" {
		repo, err := data.OpenRepository(flags.historyDB)
		if err != nil {
			// the download does not depend on the history
			logger.Warn("history disabled", "path", flags.historyDB, "error", err)
		} else {
			defer repo.Close()
			opts.Recorder = repo
		}
	}

	out := cmd.OutOrStdout()
	var results []services.ChapterResult
	if !flags.plain && app.Interactive(os.Stdout) {
		results, err = app.NewApp(opts.URL, cancel).Run(opts, func(o services.Options) ([]services.ChapterResult, error) {
			return services.Download(ctx, o)
		})
	} else {
		plain := app.NewPlain(out)
		plain.Bind(&opts)
		results, err = services.Download(ctx, opts)
		plain.Summary(results, err)
	}

	logger.Info("run finished", "chapters", len(results), "error", err)
	return report(out, err)
}

// report turns the outcome of a run into the command error
func report(w io.Writer, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, styles.StatusCanceled.Render("Download stopped"))
		return nil
	case services.IsRateLimited(err):
		fmt.Fprintln(w, styles.StatusCanceled.Render(rateLimitHint))
	}
	return fmt.Errorf("download error: %w", err)
}

// newLogger writes debug logs to path when debug is set and discards them otherwise
func newLogger(debug bool, path string) (*slog.Logger, func() error, error) {
	if !debug {
		return slog.New(slog.DiscardHandler), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger.With(slog.String("app", "webtoons")), f.Close, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.StatusError.Render(err.Error()))
		os.Exit(1)
	}
}
