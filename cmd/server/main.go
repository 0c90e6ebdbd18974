package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Cod-e-Codes/clack/config"
	"github.com/Cod-e-Codes/clack/server"
	"github.com/Cod-e-Codes/clack/shared"
)

var (
	configDir     = flag.String("config-dir", "", "Configuration directory holding .env (default: $CLACK_CONFIG_DIR or the user config dir)")
	port          = flag.Int("port", 0, "Port to listen on, 1024-49151 (overrides CLACK_PORT)")
	transportFlag = flag.String("transport", "", "Transport: ws or tcp (overrides CLACK_TRANSPORT)")
	showVersion   = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(versionLine())
		return
	}

	if err := run(); err != nil {
		log.Fatalf("clack-server: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfigWithoutValidation(*configDir)
	if err != nil {
		return err
	}
	applyFlags(cfg, *port, *transportFlag)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := server.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	server.SetLogLevel(level)
	if cfg.LogFile != "" {
		if err := server.LogToFile(cfg.LogFile); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := server.NewFileStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.StagingRetention > 0 {
		janitor, err := server.NewJanitor(store, cfg.CleanupSchedule, cfg.StagingRetention)
		if err != nil {
			return err
		}
		janitor.Start()
		defer janitor.Stop()
	}

	srv, err := server.New(cfg, store)
	if err != nil {
		return err
	}

	printBanner(os.Stdout, cfg)
	return srv.ListenAndServe(ctx)
}

func versionLine() string {
	return "clack-server " + shared.GetServerVersionInfo()
}

// applyFlags lets command-line flags override the environment. Zero values
// mean the flag was not given.
func applyFlags(cfg *config.Config, port int, transport string) {
	if port != 0 {
		cfg.Port = port
	}
	if transport != "" {
		cfg.Transport = transport
	}
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Clack server %s\n", shared.ServerVersion)
	fmt.Fprintf(w, "  listening: %s (%s)\n", cfg.Addr(), cfg.Transport)
	fmt.Fprintf(w, "  name:      %s\n", cfg.ServerName)
	switch cfg.Store {
	case config.StoreDir:
		fmt.Fprintf(w, "  staging:   %s\n", cfg.StagingDir)
	case config.StoreSQLite:
		fmt.Fprintf(w, "  staging:   sqlite %s\n", cfg.DBPath)
	default:
		fmt.Fprintf(w, "  staging:   %s\n", cfg.Store)
	}
	if cfg.StagingRetention > 0 {
		fmt.Fprintf(w, "  cleanup:   %s, keep %s\n", cfg.CleanupSchedule, cfg.StagingRetention)
	}
	fmt.Fprintln(w, "[Server listening. Press Ctrl+C to stop.]")
}
