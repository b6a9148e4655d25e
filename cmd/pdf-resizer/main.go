package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/pageresizer/internal/config"
	"github.com/Lllllllleong/pageresizer/internal/docstore"
	"github.com/Lllllllleong/pageresizer/internal/geometry"
	"github.com/Lllllllleong/pageresizer/internal/services"
)

var (
	configFile string
	verbosity  int
	jsonLogs   bool
	noProgress bool

	// v holds the merged configuration (defaults, file, env, flags). It is
	// built in PersistentPreRunE once flags are parsed.
	v *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "pdf-resizer",
	Short: "Resize every page of PDF documents to a standard paper format",
	Long: `pdf-resizer scales the content of every page to a target format
(A2, A3, A4, A5 or a custom size) and writes the result to an output directory.

Documents come from a single file, a directory, or a manifest file listing
paths in processing order. Directory runs write that manifest so a later run
can replay or hand-edit the order.

Examples:
  pdf-resizer run -i scans/ -o out/              # file or directory, detected
  pdf-resizer dir scans/ -o out/ --order-by creation_time
  pdf-resizer dir scans/ --list                  # show the order, do nothing
  pdf-resizer manifest order.txt -o out/         # replay a manifest
  pdf-resizer report scans/ -o out/              # sequential, with timings`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"input":             "input_path",
	"output":            "output_path",
	"format":            "target_format",
	"custom-width-mm":   "custom_width_mm",
	"custom-height-mm":  "custom_height_mm",
	"order-by":          "order_by",
	"manifest-path":     "manifest_path",
	"manifest-full":     "manifest_full_path",
	"manifest-parallel": "manifest_parallel",
	"suffix":            "document_type_suffix",
	"workers":           "workers",
	"timeout":           "document_timeout",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "TOML config file")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity")
	pf.BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON")
	pf.BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	pf.StringP("input", "i", "", "Input file or directory")
	pf.StringP("output", "o", "", "Output directory")
	pf.StringP("format", "f", "A4", "Target format: "+formatNames())
	pf.Float64("custom-width-mm", 0, "Page width in mm for the custom format")
	pf.Float64("custom-height-mm", 0, "Page height in mm for the custom format")
	pf.String("order-by", "name", "Order: name, creation_time, modification_time or passthrough")
	pf.String("manifest-path", "order.txt", "Manifest file")
	pf.Bool("manifest-full", true, "Write full paths to the manifest instead of file names")
	pf.Bool("manifest-parallel", false, "Process manifest entries in parallel")
	pf.String("suffix", "pdf", "Document file suffix")
	pf.IntP("workers", "w", 0, "Concurrent documents (0 = one per CPU)")
	pf.Duration("timeout", 0, "Per-document time budget (0 = none)")

	rootCmd.AddCommand(runCmd, fileCmd, dirCmd, manifestCmd, reportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err)
		for _, hint := range errors.GetAllHints(err) {
			pterm.Info.Println(hint)
		}
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if verbosity > 0 {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	var err error
	if v, err = config.NewViper(configFile); err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return errors.Wrapf(err, "failed to bind flag %s", flag)
		}
	}
	return nil
}

// newPipeline loads the merged configuration, applies overrides from
// positional arguments and builds the pipeline with terminal progress.
func newPipeline(override func(*config.Config)) (*services.Pipeline, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(&cfg)
	}
	interactive := !noProgress && !jsonLogs
	p, err := services.NewPipeline(cfg, docstore.NewPDFCPU(), services.WithProgress(newTerminal(interactive)))
	if err != nil {
		return nil, err
	}
	if interactive {
		resolved := p.Config()
		pterm.Info.Printf("Target %s: %s pt, %d workers\n", resolved.Format, resolved.Target, resolved.Workers)
	}
	return p, nil
}

func formatNames() string {
	names := make([]string, 0, len(geometry.Formats()))
	for _, f := range geometry.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func exitStatus(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return errors.Newf("%d of %d documents failed", failed, total)
}
