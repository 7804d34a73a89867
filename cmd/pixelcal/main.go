// Command pixelcal calibrates a pixel matrix from an injection scan: it
// bins the hits, fits every pixel and writes the parameter maps, with an
// optional threshold and noise report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/pixelcal/internal/config"
	"github.com/banshee-data/pixelcal/internal/db"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
	"github.com/banshee-data/pixelcal/internal/pixel/pipeline"
	"github.com/banshee-data/pixelcal/internal/pixel/report"
	"github.com/banshee-data/pixelcal/internal/version"
)

var (
	hitsPath    = flag.String("hits", "", "Hit input: a .db hit store or a .csv dump (row,col,inj,tot)")
	configPath  = flag.String("config", "", "Calibration config JSON (defaults apply when empty)")
	outPath     = flag.String("out", "calibration.db", "Output artifact path")
	injLevels   = flag.String("inj", "", "Injection levels: one value, min,max, or an explicit comma-separated list")
	injMin      = flag.Int("inj-min", 0, "Lowest injection DAC code (0 keeps the config value)")
	injMax      = flag.Int("inj-max", 0, "Highest injection DAC code (0 keeps the config value)")
	chunkSize   = flag.Int("chunk", 0, "Hits per chunk (0 keeps the config value)")
	workers     = flag.Int("workers", -1, "Fit workers (0 = all CPUs, -1 keeps the config value)")
	reportDir   = flag.String("report", "", "Write threshold/noise plots and summary to this directory")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *hitsPath == "" {
		log.Fatal("-hits is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("calibration failed: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg, err = applyFlags(cfg, overrides{
		levels:  *injLevels,
		injMin:  *injMin,
		injMax:  *injMax,
		chunk:   *chunkSize,
		workers: *workers,
	})
	if err != nil {
		return err
	}

	src, closeSrc, err := openSource(*hitsPath, cfg.GetChunkSize())
	if err != nil {
		return err
	}
	defer closeSrc()

	res, err := pipeline.Run(ctx, src, cfg, pipeline.Options{OutputPath: *outPath})
	if err != nil {
		return err
	}
	log.Printf("run %s: %d events in %d chunks, artifact %s", res.RunID, res.Events, res.Chunks, *outPath)

	if *reportDir == "" {
		return nil
	}
	_, written, err := report.Writer{}.Write(*reportDir, res.RunID, res.Calibrations,
		res.Artifact.Shape.Rows, res.Artifact.Shape.Cols, report.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	for _, p := range written {
		log.Printf("report: %s", p)
	}
	return nil
}

func loadConfig(path string) (*config.CalibrationConfig, error) {
	if path == "" {
		return config.EmptyCalibrationConfig(), nil
	}
	return config.LoadCalibrationConfig(path)
}

// overrides are the command-line settings layered over the config file.
type overrides struct {
	levels         string
	injMin, injMax int
	chunk          int
	workers        int
}

// applyFlags overlays o on cfg. A level list wins over -inj-min/-inj-max;
// negative workers and zero chunk or range bounds keep the configured
// values.
func applyFlags(cfg *config.CalibrationConfig, o overrides) (*config.CalibrationConfig, error) {
	switch {
	case o.levels != "":
		levels, err := parseLevels(o.levels)
		if err != nil {
			return nil, err
		}
		cfg.InjectionList = levels
	case o.injMin > 0 || o.injMax > 0:
		lo, hi := cfg.GetInjectionMin(), cfg.GetInjectionMax()
		if o.injMin > 0 {
			lo = o.injMin
		}
		if o.injMax > 0 {
			hi = o.injMax
		}
		cfg = cfg.WithInjectionRange(lo, hi)
	}
	if o.chunk > 0 {
		cfg.ChunkSize = &o.chunk
	}
	if o.workers >= 0 {
		cfg.Workers = &o.workers
	}
	return cfg, cfg.Validate()
}

func parseLevels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid injection level %q: %w", p, err)
		}
		out = append(out, v)
	}
	if _, err := hits.ParseAxis(out); err != nil {
		return nil, err
	}
	return out, nil
}

// openSource opens a hit store or CSV dump by extension.
func openSource(path string, chunk int) (hits.Source, func() error, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("hit input: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite":
		database, err := db.OpenDB(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open hit store: %w", err)
		}
		return db.NewHitStore(database).Source(chunk), database.Close, nil
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		src, err := hits.NewCSVSource(f, chunk)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return src, f.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported hit input %s: want .db or .csv", path)
}
