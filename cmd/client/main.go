package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Cod-e-Codes/clack/client"
	"github.com/Cod-e-Codes/clack/client/config"
	"github.com/Cod-e-Codes/clack/shared"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("clack: ")

	cfg, showVersion, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if showVersion {
		fmt.Println(versionLine())
		return
	}
	if err != nil {
		log.Printf("%v", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := client.NewSession(client.Options{
		Config:   cfg,
		Renderer: client.NewRenderer(cfg.Theme, cfg.Username, client.StdoutIsTerminal()),
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Console reads cannot be interrupted, so an interrupt exits from here.
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr)
		log.Fatalf("%v", err)
	}
}

func versionLine() string {
	return "clack " + shared.GetVersionInfo()
}

// parseConfig loads the JSON config and applies the flags that were given
// explicitly. A missing config file is only an error when -config names it.
func parseConfig(args []string, output io.Writer) (config.Config, bool, error) {
	fs := flag.NewFlagSet("clack", flag.ContinueOnError)
	fs.SetOutput(output)

	configPath := fs.String("config", config.DefaultConfigPath(), "Path to the client JSON config")
	host := fs.String("host", "", "Server host")
	port := fs.Int("port", 0, "Server port, 1-49151")
	username := fs.String("username", "", "Username placed on outgoing messages")
	transport := fs.String("transport", "", "Transport: ws or tcp")
	theme := fs.String("theme", "", "Theme: plain, default, slack, discord or aim")
	showVersion := fs.Bool("version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, false, err
	}
	if *showVersion {
		return config.Config{}, true, nil
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.LoadConfig(*configPath)
	if err != nil && (set["config"] || !config.IsNotExist(err)) {
		return config.Config{}, false, err
	}

	if set["host"] {
		cfg.Host = *host
	}
	if set["port"] {
		cfg.Port = *port
	}
	if set["username"] {
		cfg.Username = *username
	}
	if set["transport"] {
		cfg.Transport = *transport
	}
	if set["theme"] {
		cfg.Theme = *theme
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, false, err
	}
	return cfg, false, nil
}
