// Command render-plots renders a telemetry CSV to static PNG plots without
// starting the dashboard.
package main

import (
	"flag"
	"log"

	"github.com/gridline-data/lap.report/internal/config"
	"github.com/gridline-data/lap.report/internal/loader"
	"github.com/gridline-data/lap.report/internal/plotout"
	"github.com/gridline-data/lap.report/internal/reconstruct"
)

func main() {
	csvPath := flag.String("csv", "", "telemetry CSV file")
	configPath := flag.String("config", "", "analysis config JSON file")
	baseDir := flag.String("o", "plots", "base output directory")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("a telemetry CSV file is required (-csv)")
	}

	cfg := config.EmptyAnalysisConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAnalysisConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	l := loader.New(loader.Config{
		SpeedUnit:       cfg.GetSpeedUnit(),
		AccelUnit:       cfg.GetAccelUnit(),
		ColumnOverrides: cfg.ColumnOverrides,
	})
	frame, err := l.Load(*csvPath)
	if err != nil {
		log.Fatalf("failed to load telemetry: %v", err)
	}

	keys, recon, err := reconstruct.New(cfg.GetSpeedFloorMPS()).ReconstructLaps(frame)
	if err != nil {
		log.Fatalf("failed to reconstruct track paths: %v", err)
	}

	r := plotout.NewRenderer(plotout.MakePlotOutputDir(*baseDir, *csvPath))
	if err := r.Start(); err != nil {
		log.Fatalf("failed to prepare output dir: %v", err)
	}

	count, err := r.RenderAll(keys, recon)
	if err != nil {
		log.Fatalf("failed to render plots: %v", err)
	}
	log.Printf("✓ Rendered %d plots for %d laps", count, len(keys))
}
