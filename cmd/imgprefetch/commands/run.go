package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/imgprefetch/config"
	"github.com/IvanBrykalov/imgprefetch/engine"
	"github.com/IvanBrykalov/imgprefetch/fetch"
	"github.com/IvanBrykalov/imgprefetch/internal/diag"
	"github.com/IvanBrykalov/imgprefetch/internal/logger"
	"github.com/IvanBrykalov/imgprefetch/internal/manifest"
	"github.com/IvanBrykalov/imgprefetch/metrics/prom"
	"github.com/IvanBrykalov/imgprefetch/profile"
)

var (
	runManifest string
	runOutput   string
	runTimeout  time.Duration
	runServe    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Preload the images of a manifest and print the cache state",
	Long: `Preload every image of a manifest through the engine, wait until nothing
is in flight or waiting for a retry, then print one row per image and the
engine statistics.

With metrics.enabled the diagnostics server (/metrics, /stats, /entries,
/healthz) runs while preloading; --serve keeps it up until interrupted.

Examples:
  imgprefetch run --manifest items.yaml
  imgprefetch run --manifest items.yaml --output json
  IMGPREFETCH_METRICS_ENABLED=true imgprefetch run --manifest items.yaml --serve`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runManifest, "manifest", "m", "", "manifest file listing items and their images")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "table", "output format: table or json")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "give up waiting after this long (0 = no limit)")
	runCmd.Flags().BoolVar(&runServe, "serve", false, "keep the diagnostics server running after the preload finishes")
	_ = runCmd.MarkFlagRequired("manifest")
}

func runRun(cmd *cobra.Command, _ []string) error {
	if runOutput != "table" && runOutput != "json" {
		return fmt.Errorf("unknown output format %q", runOutput)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	log, closer, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	m, err := manifest.Load(runManifest)
	if err != nil {
		return err
	}
	prio, err := m.Prio()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	e, classifier, err := buildEngine(cfg, reg, log)
	if err != nil {
		return err
	}
	defer classifier.Close()
	defer func() { _ = e.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return diag.Serve(srvCtx, cfg.Metrics.Listen, diag.NewRouter(e, reg, log), log)
		})
	}
	g.Go(func() error {
		if !runServe {
			defer stopServer()
		}
		wctx := gctx
		if runTimeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(gctx, runTimeout)
			defer cancel()
		}
		start := time.Now()
		e.PreloadItemImages(m.IDs(), m.ImagesByItem(), prio)
		if err := e.Wait(wctx); err != nil {
			return fmt.Errorf("waiting for preload: %w", err)
		}
		log.Info("preload finished", "items", len(m.Items), "took", time.Since(start))
		return writeReport(cmd.OutOrStdout(), runOutput, e, m.Locators())
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Info("interrupted")
		return nil
	}
	return err
}

// buildEngine wires the configured classifier, HTTP fetcher and metrics
// into an engine. The caller closes both the engine and the classifier.
func buildEngine(cfg *config.Config, reg prometheus.Registerer, log *slog.Logger) (engine.Engine, *profile.Classifier, error) {
	tables, err := cfg.Engine.Tables()
	if err != nil {
		return nil, nil, err
	}
	sizes, err := cfg.Engine.Sizes()
	if err != nil {
		return nil, nil, err
	}
	resolver, err := cfg.Variant.Resolver()
	if err != nil {
		return nil, nil, err
	}

	fopt := cfg.HTTP.FetchOptions()
	fopt.Logger = log
	f := fetch.New(fopt)

	classifier := profile.NewClassifier(cfg.Probe.Probe(), profile.ClassifierOptions{Logger: log})
	e := engine.New(engine.Options{
		Fetcher:        f,
		Preconnector:   f,
		Resolver:       resolver,
		Classifier:     classifier,
		Tables:         tables,
		Policy:         cfg.Engine.Policy(),
		SizeEstimates:  sizes,
		EvictionTarget: cfg.Engine.EvictionTarget,
		Retry:          cfg.Engine.Retry(),
		Metrics:        prom.New(reg, "imgprefetch", "engine", nil),
		Logger:         log,
		OnEvict: func(locator string, r engine.EvictReason) {
			log.Debug("evicted", "locator", locator, "reason", r)
		},
	})
	return e, classifier, nil
}

type report struct {
	Stats   engine.Stats           `json:"stats"`
	Entries []engine.EntrySnapshot `json:"entries"`
}

func writeReport(w io.Writer, format string, e engine.Engine, locators []string) error {
	rep := report{Stats: e.CacheStats()}
	for _, loc := range locators {
		if snap, ok := e.Get(loc); ok {
			rep.Entries = append(rep.Entries, snap)
		}
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	t := newTable(w)
	t.SetHeader([]string{"Locator", "State", "Size", "Bytes", "Retries"})
	for _, s := range rep.Entries {
		t.Append([]string{
			s.Locator,
			s.State.String(),
			s.Size.String(),
			humanize.IBytes(uint64(s.EstimatedBytes)),
			strconv.Itoa(s.RetryCount),
		})
	}
	t.Render()
	fmt.Fprintln(w)

	st := rep.Stats
	t = newTable(w)
	for _, row := range [][]string{
		{"Session", st.SessionID},
		{"Profile", st.DeviceProfile.String() + "/" + st.NetworkProfile.String()},
		{"Concurrency limit", strconv.Itoa(st.ConcurrencyLimit)},
		{"Entries", fmt.Sprintf("%d (%d loaded, %d failed, %d pending)", st.TotalEntries, st.LoadedEntries, st.ErrorEntries, st.PendingEntries)},
		{"Cache size", humanize.IBytes(uint64(st.CacheSizeBytes)) + " / " + humanize.IBytes(uint64(st.MemoryBudget))},
	} {
		t.Append(row)
	}
	t.Render()
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}
