package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/balloon.report/internal/api"
	"github.com/banshee-data/balloon.report/internal/artifacts"
	"github.com/banshee-data/balloon.report/internal/config"
	"github.com/banshee-data/balloon.report/internal/db"
	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/units"
	"github.com/banshee-data/balloon.report/internal/version"
)

var (
	input       = flag.String("input", "", "Frames JSON file ({\"results\":[...]})")
	feedURL     = flag.String("url", "", "Base URL serving the hourly snapshots 00.json..23.json")
	windFile    = flag.String("wind", "", "Wind series JSON file used for nowcasts and layer transitions")
	configFile  = flag.String("config", "", "Tuning config JSON (default "+config.DefaultConfigPath+" when present)")
	dbFile      = flag.String("db", "", "SQLite file that records a report for every run")
	outDir      = flag.String("out", "", "Directory for output artifacts")
	prefix      = flag.String("prefix", "tracks", "File-name stem for output artifacts")
	plotOut     = flag.Bool("plot", false, "Write the altitude profile PNG to -out")
	htmlOut     = flag.Bool("html", false, "Write the interactive track map HTML to -out")
	listen      = flag.String("serve", "", "Serve the HTTP API on this address instead of running once")
	windURL     = flag.String("wind-url", "", "Wind endpoint queried by the HTTP API")
	unitsFlag   = flag.String("units", units.KMPH, "Speed units for display ("+units.GetValidUnitsString()+")")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid -units %q; valid options: %s", *unitsFlag, units.GetValidUnitsString())
	}
	if *listen == "" && *input == "" && *feedURL == "" {
		log.Fatal("one of -input, -url or -serve is required")
	}
	if *input != "" && *feedURL != "" {
		log.Fatal("-input and -url are mutually exclusive")
	}
	if (*plotOut || *htmlOut) && *outDir == "" {
		log.Fatal("-plot and -html require -out")
	}

	tuning, err := loadTuning(*configFile)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	metrics, err := monitoring.NewCollector(nil)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	var store *db.DB
	if *dbFile != "" {
		store, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listen != "" {
		srv := api.NewServer(api.Options{
			Tuning:  tuning,
			DB:      store,
			Metrics: metrics,
			Units:   *unitsFlag,
			WindURL: *windURL,
		})
		serve(ctx, *listen, srv)
		return
	}

	cfg := runConfig{
		Input:    *input,
		FeedURL:  *feedURL,
		WindFile: *windFile,
		OutDir:   *outDir,
		Prefix:   *prefix,
		Plot:     *plotOut,
		HTML:     *htmlOut,
		Units:    *unitsFlag,
		Tuning:   tuning,
		DB:       store,
		Metrics:  metrics,
		FS:       artifacts.OSFileSystem{},
		Stdout:   os.Stdout,
	}
	if err := run(ctx, cfg); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

// loadTuning reads path, or the default config file when path is empty and
// the file exists, or falls back to built-in defaults.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyTuningConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded tuning config from %s", path)
	return cfg, nil
}

func serve(ctx context.Context, addr string, srv *api.Server) {
	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(srv.ServeMux()),
	}

	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("serving HTTP API on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server stopped")
}
