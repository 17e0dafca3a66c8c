package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gridline-data/lap.report/internal/config"
	"github.com/gridline-data/lap.report/internal/dashboard"
	"github.com/gridline-data/lap.report/internal/db"
	"github.com/gridline-data/lap.report/internal/fsutil"
	"github.com/gridline-data/lap.report/internal/laps"
	"github.com/gridline-data/lap.report/internal/loader"
	"github.com/gridline-data/lap.report/internal/reconstruct"
	"github.com/gridline-data/lap.report/internal/snapshot"
	"github.com/gridline-data/lap.report/internal/version"
)

var (
	csvPath     = flag.String("csv", "", "Telemetry CSV file to analyse")
	listen      = flag.String("listen", ":8080", "Listen address")
	devMode     = flag.Bool("dev", false, "Run in dev mode (analysis is not recorded in the session store)")
	configPath  = flag.String("config", "", "Analysis config JSON file")
	dbFile      = flag.String("db", "sessions.db", "Session store sqlite file (empty disables the store)")
	noCache     = flag.Bool("no-cache", false, "Bypass the binary snapshot cache")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() *config.AnalysisConfig {
	if *configPath != "" {
		cfg, err := config.LoadAnalysisConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		return cfg
	}

	cfg, err := config.LoadAnalysisConfig(config.DefaultConfigPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("failed to load %s, using built-in defaults: %v", config.DefaultConfigPath, err)
		}
		return config.EmptyAnalysisConfig()
	}
	return cfg
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("lap-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *csvPath == "" {
		log.Fatal("a telemetry CSV file is required (-csv)")
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := loadConfig()

	var cache *snapshot.Cache
	if !*noCache {
		cache = snapshot.NewCache(fsutil.OSFileSystem{}, cfg.GetCacheDir())
	}

	l := loader.New(loader.Config{
		SpeedUnit:       cfg.GetSpeedUnit(),
		AccelUnit:       cfg.GetAccelUnit(),
		ColumnOverrides: cfg.ColumnOverrides,
		Cache:           cache,
	})

	frame, err := l.LoadCached(*csvPath)
	if err != nil {
		log.Fatalf("failed to load telemetry: %v", err)
	}
	log.Printf("loaded %d samples (%.1fs) from %s", frame.Len(), frame.Duration(), *csvPath)

	integrator := reconstruct.New(cfg.GetSpeedFloorMPS())
	keys, recon, err := integrator.ReconstructLaps(frame)
	if err != nil {
		log.Fatalf("failed to reconstruct track paths: %v", err)
	}

	summaries := laps.Summarize(keys, recon)
	window := laps.ValidityWindow{
		MinDistance: cfg.GetLapMinDistanceMeters(),
		MaxDistance: cfg.GetLapMaxDistanceMeters(),
		MinTime:     cfg.GetLapMinDuration(),
		MaxTime:     cfg.GetLapMaxDuration(),
	}
	valid := window.Filter(summaries)
	if len(valid) == 0 {
		log.Fatal("no laps found in telemetry")
	}

	best := valid[0]
	log.Printf("%d laps (%d valid), fastest %s lap %d: %.3fs over %.0fm",
		len(summaries), len(valid), best.Vehicle, best.Lap, best.LapTime, best.Distance)

	var store *db.DB
	if *dbFile != "" {
		store, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open session store: %v", err)
		}
		defer store.Close()

		if !*devMode {
			info, err := os.Stat(*csvPath)
			if err != nil {
				log.Fatalf("failed to stat telemetry file: %v", err)
			}
			session := store.NewSession(*csvPath, info.Size(), info.ModTime().UnixNano(), cfg.GetSpeedUnit(), frame.Len())
			if err := store.RecordSession(session, summaries, db.LapIDs(valid)); err != nil {
				log.Printf("failed to record session: %v", err)
			} else {
				log.Printf("recorded session %s", session.ID)
			}
		}
	}

	analysis := &dashboard.Analysis{
		SourcePath: *csvPath,
		Laps:       recon,
		Summaries:  valid,
		Reference:  best.Key(),
		GridStep:   cfg.GetDeltaGridStepMeters(),
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := dashboard.NewWebServer(dashboard.WebServerConfig{
			Address:  *listen,
			Analysis: analysis,
			DB:       store,
		})
		if err := ws.Start(ctx); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
