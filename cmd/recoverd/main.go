package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"recoverd/internal/adapters/api"
	"recoverd/internal/config"
	"recoverd/internal/recovery"
	"recoverd/internal/scan"
	"recoverd/internal/scanners"
	"recoverd/internal/syscmd"
	"recoverd/internal/system"
)

var (
	configPath string
	unlock     bool
)

func main() {
	root := &cobra.Command{
		Use:   "recoverd",
		Short: "Deleted file recovery service for macOS",
		Long: "recoverd finds deleted files across the Trash, APFS local snapshots,\n" +
			"Time Machine backups, the Spotlight index and raw-disk carving, and\n" +
			"copies selected files to a safe destination.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (TOML)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the recovery API server",
		RunE:  runServe,
	}
	serve.Flags().BoolVar(&unlock, "unlock", false, "Prompt for the admin password at startup")
	root.AddCommand(serve)

	sources := &cobra.Command{
		Use:   "sources",
		Short: "List recovery sources and their availability",
		RunE:  runSources,
	}
	root.AddCommand(sources)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	creds := &syscmd.Credentials{}
	runner := syscmd.NewRunner(creds, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if unlock {
		if err := promptAndStoreCredential(ctx, runner); err != nil {
			return err
		}
	}

	registry := buildRegistry(cfg, runner, logger)
	scans := scan.NewManager(registry, logger)
	recov := recovery.NewManager(scans, logger)
	inspector := system.NewInspector(runner, registry, logger)

	server := api.NewServer(api.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Logger:          logger,
		Registry:        registry,
		Scans:           scans,
		Recovery:        recov,
		Inspector:       inspector,
		Runner:          runner,
		MaxPreviewBytes: cfg.MaxPreviewBytes(),
	})
	server.StartBackground(ctx)

	logger.Printf("[Main] recoverd listening on http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	<-ctx.Done()
	logger.Printf("[Main] Shutdown signal received")
	return nil
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", 0)
	runner := syscmd.NewRunner(&syscmd.Credentials{}, logger)
	registry := buildRegistry(cfg, runner, logger)

	for _, scanner := range registry.All() {
		avail := scanner.CheckAvailability(cmd.Context())
		state := "unavailable"
		if avail.Available {
			state = "available"
		}
		fmt.Printf("%-20s %-12s %s\n", avail.SourceID, state, avail.Detail)
	}
	return nil
}

func buildRegistry(cfg *config.Config, runner *syscmd.Runner, logger *log.Logger) *scanners.Registry {
	home, _ := os.UserHomeDir()

	registry := scanners.NewRegistry()
	registry.Register(scanners.NewTrashScanner(logger))
	registry.Register(scanners.NewSnapshotScanner(runner, cfg.Scan.SnapshotMountBase, logger))
	registry.Register(scanners.NewTimeMachineScanner(runner, logger))
	registry.Register(scanners.NewSpotlightScanner(runner, home, logger))
	registry.Register(scanners.NewCarvingScanner(runner, logger))
	registry.Register(scanners.NewCloudTrashScanner())
	return registry
}

// promptAndStoreCredential reads the admin password from the terminal without
// echo, validates it against sudo and stores it for the session.
func promptAndStoreCredential(ctx context.Context, runner *syscmd.Runner) error {
	fmt.Fprint(os.Stderr, "Admin password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	password := string(raw)
	if password == "" {
		return fmt.Errorf("empty password")
	}
	if !runner.ValidateCredential(ctx, password) {
		return fmt.Errorf("admin password rejected")
	}
	runner.Credentials().Set(password)
	return nil
}
