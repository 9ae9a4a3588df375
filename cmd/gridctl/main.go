package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"gridbase/internal/app"
	"gridbase/internal/config"
	"gridbase/internal/metadata"

	"github.com/spf13/pflag"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gridctl error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")
	tableFlag := pflag.String("table", "", "Query rows from this table")
	presetFlag := pflag.String("preset", "", "Selection preset for --table (overrides query.default_preset)")
	rowFlag := pflag.String("row", "", "Fetch one row from --table by primary key value")
	cursorFlag := pflag.String("cursor", "", "Resume a --table scan from this page cursor")
	limitFlag := pflag.Int("limit", 0, "Page size for --table scans")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("gridctl %s (%s)\n", Version, Commit)
		return nil
	}

	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger, loggerProvider, err := app.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Init(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	catalog, err := a.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	if *tableFlag != "" {
		if *rowFlag != "" {
			return runRowFetch(ctx, a, catalog, *tableFlag, *rowFlag)
		}
		preset := *presetFlag
		if preset == "" {
			preset = cfg.Query.DefaultPreset
		}
		return runTableQuery(ctx, a, catalog, *tableFlag, preset, *cursorFlag, *limitFlag)
	}

	printCatalogSummary(catalog)
	return nil
}

func runTableQuery(ctx context.Context, a *app.App, catalog metadata.Catalog, tableName, preset, cursor string, limit int) error {
	page, err := a.FetchRowsPage(ctx, catalog, tableName, preset, cursor, limit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	pretty, err := json.MarshalIndent(page.Rows, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("# table: %s, preset: %s, rows: %d\n%s\n", tableName, preset, len(page.Rows), pretty)
	if page.NextCursor != "" {
		fmt.Printf("# next: --table %s --cursor %s\n", tableName, page.NextCursor)
	}
	return nil
}

func runRowFetch(ctx context.Context, a *app.App, catalog metadata.Catalog, tableName, keyValue string) error {
	data, err := a.FetchRow(ctx, catalog, tableName, keyValue)
	if err != nil {
		return fmt.Errorf("row fetch failed: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func printCatalogSummary(catalog metadata.Catalog) {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%d tables\n", len(names))
	for _, name := range names {
		table := catalog.Table(name)
		pk := "-"
		if key := table.PrimaryKey(); key != nil {
			pk = key.Name
		}
		fmt.Printf("  %-30s %3d fields  %2d relations  pk=%s\n",
			name, len(table.Fields), len(table.Relations.All()), pk)
	}
}
