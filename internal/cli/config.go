package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guiyumin/biliget/internal/core/config"
	"github.com/guiyumin/biliget/internal/core/site/bilibili"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage biliget configuration",
	Long:  "View and modify biliget settings. Run 'biliget config path' to locate the file.",
}

// biliget config show
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		printConfig(cmd.OutOrStdout(), config.LoadOrDefault().Effective())
	},
}

// biliget config path
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.SavePath())
	},
}

// biliget config set <key> <value>
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Long: `Change a setting and save the config file.

Keys:
  ` + strings.Join(config.Keys(), "\n  ") + `

Examples:
  biliget config set quality 64
  biliget config set output_dir ~/Videos/bilibili
  biliget config set bilibili.legacy_fallback false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadForUpdate()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				return fmt.Errorf("%w %q, valid keys: %s", err, args[0], strings.Join(config.Keys(), ", "))
			}
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current configuration:")
	fmt.Fprintf(w, "  OutputDir:  %s\n", cfg.OutputDir)
	fmt.Fprintf(w, "  Quality:    %d %s\n", cfg.Quality, bilibili.QualityLabel(cfg.Quality))
	fmt.Fprintf(w, "  FFmpeg:     %s\n", orDefault(cfg.FFmpegPath, "ffmpeg (PATH)"))
	fmt.Fprintf(w, "  Parallel:   %t\n", cfg.ParallelFetch)
	fmt.Fprintf(w, "  Config:     %s\n", config.SavePath())

	fmt.Fprintln(w, "\nBilibili:")
	fmt.Fprintf(w, "  cookie:             %s\n", maskCookie(cfg.Bilibili.Cookie))
	fmt.Fprintf(w, "  legacy_fallback:    %t\n", cfg.Bilibili.LegacyFallback)
	fmt.Fprintf(w, "  accept_numeric_ids: %t\n", cfg.Bilibili.AcceptNumericIDs)
}

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

// maskCookie shows only the ends of the SESSDATA value
func maskCookie(cookie string) string {
	sess := bilibili.ParseCookieString(cookie).SESSDATA
	if sess == "" {
		return "(none)"
	}
	if len(sess) <= 8 {
		return "SESSDATA=****"
	}
	return fmt.Sprintf("SESSDATA=%s...%s", sess[:4], sess[len(sess)-4:])
}
