package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guiyumin/biliget/internal/core/config"
	"github.com/guiyumin/biliget/internal/core/downloader"
	"github.com/guiyumin/biliget/internal/core/history"
	"github.com/guiyumin/biliget/internal/core/merger"
	"github.com/guiyumin/biliget/internal/core/pipeline"
	"github.com/guiyumin/biliget/internal/core/site/bilibili"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

var (
	output   string
	quality  int
	page     int
	info     bool
	verbose  bool
	parallel bool
)

var (
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	okColor   = color.New(color.FgGreen)
	dimColor  = color.New(color.Faint)
)

var rootCmd = &cobra.Command{
	Use:   "biliget [url|BV|av]",
	Short: "Download Bilibili videos as merged mp4 files",
	Long: `Download Bilibili videos. Accepts a BV code, an av number or any
bilibili.com link carrying one. Each part of the video is saved as its own mp4.`,
	Version:       Version,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(verbose)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchFile != "" {
			return runBatch(cmd, batchFile)
		}
		if len(args) == 0 {
			return cmd.Help()
		}
		return runDownload(cmd, args[0])
	},
}

func init() {
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default from config)")
	rootCmd.Flags().IntVarP(&quality, "quality", "q", 0, "quality tier, e.g. 80 for 1080P, 64 for 720P")
	rootCmd.Flags().IntVarP(&page, "page", "p", 0, "download only this part (1-based)")
	rootCmd.Flags().BoolVar(&info, "info", false, "show video info without downloading")
	rootCmd.Flags().StringVarP(&batchFile, "file", "f", "", "download every video listed in a file, one per line")
	rootCmd.Flags().BoolVar(&parallel, "parallel", false, "fetch video and audio tracks concurrently")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

// Execute runs the root command with ctx, which is cancelled on interrupt
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func runDownload(cmd *cobra.Command, input string) error {
	ctx := cmd.Context()
	log := zap.S().Named("cli")
	cfg := config.LoadOrDefault().Effective()

	if !config.Exists() {
		warnColor.Fprintf(os.Stderr, "No config file at %s, using defaults. See 'biliget config --help'.\n", config.SavePath())
	}

	client := bilibili.NewClientFromConfig(cfg)
	opts := downloadOptions(cmd, cfg, input, client.HasSession())

	fetcherOpts := []downloader.Option{
		downloader.WithHeaders(client.Headers),
		downloader.WithParallel(parallel || cfg.ParallelFetch),
	}
	if !info {
		fetcherOpts = append(fetcherOpts, downloader.WithProgress(progressReporter()))
	}

	ffmpeg := merger.NewFFmpeg(cfg.FFmpegPath)
	session := pipeline.NewSession(client, downloader.New(fetcherOpts...), ffmpeg, nil)

	meta, err := fetchMetadata(ctx, input, func(ctx context.Context) (*bilibili.VideoMetadata, error) {
		return session.Inspect(ctx, input)
	})
	if err != nil {
		return err
	}

	if info {
		printInfo(os.Stdout, meta)
		return nil
	}

	if !ffmpeg.Available() {
		warnColor.Fprintf(os.Stderr, "ffmpeg not found at %q; separate video and audio tracks cannot be merged.\n", ffmpeg.Path)
	}

	if db, err := history.OpenDefault(); err != nil {
		log.Warnw("download history disabled", "error", err)
	} else {
		defer db.Close()
		session.History = db
	}

	session.OnPartStart = func(index, total int, part bilibili.PartInfo, title string) {
		fmt.Printf("[%d/%d] %s\n", index, total, title)
	}
	session.OnPartDone = func(r pipeline.PartResult) {
		if r.Err != nil {
			failColor.Fprintf(os.Stderr, "  ✗ P%d %s: %v\n", r.Page, r.Title, r.Err)
			return
		}
		okColor.Printf("  ✓ %s (%s)\n", r.Output, humanize.Bytes(uint64(r.Size)))
	}

	fmt.Printf("%s  by %s\n", meta.Title, meta.Owner)
	report, err := session.Download(ctx, meta, opts)
	if report == nil {
		return err
	}

	if err := downloadError(report, err); err != nil {
		return err
	}
	dimColor.Printf("Saved to %s\n", report.Dir)
	return nil
}

// downloadError summarizes failed parts, keeping the cause reachable so an
// interrupt still matches context.Canceled
func downloadError(report *pipeline.Report, err error) error {
	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d parts failed: %w", failed, len(report.Parts), err)
	}
	return err
}

// downloadOptions merges flags over config values
func downloadOptions(cmd *cobra.Command, cfg *config.Config, input string, loggedIn bool) pipeline.Options {
	opts := pipeline.Options{
		Quality:   cfg.Quality,
		Page:      page,
		OutputDir: cfg.OutputDir,
	}
	if cmd.Flags().Changed("quality") {
		opts.Quality = quality
	}
	if output != "" {
		opts.OutputDir = output
	}
	if opts.Page == 0 {
		opts.Page = bilibili.PageFromURL(input)
	}

	if !bilibili.IsKnownQuality(opts.Quality) {
		warnColor.Fprintf(os.Stderr, "Unknown quality %d, using %d (%s).\n",
			opts.Quality, bilibili.Quality1080P, bilibili.QualityLabel(bilibili.Quality1080P))
		opts.Quality = bilibili.Quality1080P
	}
	if bilibili.QualityNeedsVIP(opts.Quality) && !loggedIn {
		warnColor.Fprintf(os.Stderr, "%s needs a logged-in VIP account; the server will pick a lower tier. Run 'biliget login'.\n",
			bilibili.QualityLabel(opts.Quality))
	}
	return opts
}

func printInfo(w io.Writer, meta *bilibili.VideoMetadata) {
	fmt.Fprintf(w, "  Title: %s\n", meta.Title)
	fmt.Fprintf(w, "  Owner: %s\n", meta.Owner)
	fmt.Fprintf(w, "  ID:    %s\n", meta.ID.String())
	fmt.Fprintf(w, "  Parts (%d):\n", len(meta.Parts))
	for _, p := range meta.Parts {
		fmt.Fprintf(w, "    [P%d] %s  (cid %d)\n", p.Page, p.DisplayTitle(meta.Title), p.CID)
	}
	fmt.Fprintln(w, "  Qualities:")
	for _, qn := range bilibili.Qualities() {
		suffix := ""
		if bilibili.QualityNeedsVIP(qn) {
			suffix = " (VIP)"
		}
		fmt.Fprintf(w, "    %3d  %s%s\n", qn, bilibili.QualityLabel(qn), suffix)
	}
}
