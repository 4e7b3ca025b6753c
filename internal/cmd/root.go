package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"commerce-insights/internal/config"
	"commerce-insights/internal/models"
	"commerce-insights/internal/observability"
	"commerce-insights/internal/services"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	dataFile string
	noCache  bool
	minShare float64
	logLevel string

	year     string
	region   string
	category string
	product  string
}

// NewRootCmd builds the dashctl command tree. Command output goes to the
// command's out writer; logs go to its err writer.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "dashctl",
		Short: "Query the commerce dashboard from the command line",
		Long: `dashctl loads a dashboard payload and runs the same filter, guard and
aggregation cycle as the web dashboard, printing the results as JSON.

Configuration is read the same way as the server (CONFIG_FILE and
environment variables); flags override it.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.dataFile, "data", "", "Dashboard payload file (defaults to DATA_FILE)")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Skip the normalized fact cache")
	flags.Float64Var(&opts.minShare, "min-share", -1, "Override the bucket minimum share (0 disables the floor)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level for stderr output")
	flags.StringVar(&opts.year, "year", "", "Year filter (\"all\" for every year)")
	flags.StringVar(&opts.region, "region", "", "Region filter")
	flags.StringVar(&opts.category, "category", "", "Category filter")
	flags.StringVar(&opts.product, "product", "", "Product filter")

	root.AddCommand(newSnapshotCmd(opts), newOptionsCmd(opts), newGuardCmd(opts))
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// update collects the filter flags the user actually set.
func (o *rootOptions) update(cmd *cobra.Command) models.FilterUpdate {
	var u models.FilterUpdate
	flags := cmd.Flags()
	if flags.Changed("year") {
		u.Year = models.Set(o.year)
	}
	if flags.Changed("region") {
		u.Region = models.Set(o.region)
	}
	if flags.Changed("category") {
		u.Category = models.Set(o.category)
	}
	if flags.Changed("product") {
		u.Product = models.Set(o.product)
	}
	return u
}

// session loads the payload into a fresh in-memory session.
func (o *rootOptions) session(cmd *cobra.Command) (*services.Analytics, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.dataFile != "" {
		cfg.Data.File = o.dataFile
	}
	if o.minShare >= 0 {
		cfg.Engine.BucketMinShare = o.minShare
	}
	cfg.Logger.Level = o.logLevel

	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logger)

	analyticsOpts := services.AnalyticsOptions{
		Engine: services.EngineOptions(cfg.Engine),
		Logger: logger,
	}
	if cfg.Data.CacheEnabled && !o.noCache {
		analyticsOpts.Cache = services.NewFactCache(cfg.Data.CacheDir)
	}
	analytics := services.NewAnalytics(analyticsOpts)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Data.LoadTimeout)
	defer cancel()
	if err := analytics.LoadFromFile(ctx, cfg.Data.File); err != nil {
		return nil, err
	}
	return analytics, nil
}

// selected applies the filter flags and returns the resulting snapshot.
func (o *rootOptions) selected(cmd *cobra.Command) (*services.Analytics, models.Snapshot, []models.Dimension, error) {
	analytics, err := o.session(cmd)
	if err != nil {
		return nil, models.Snapshot{}, nil, err
	}
	snapshot, reset, err := analytics.Select(cmd.Context(), o.update(cmd))
	if err != nil {
		return nil, models.Snapshot{}, nil, err
	}
	if reset == nil {
		reset = []models.Dimension{}
	}
	return analytics, snapshot, reset, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
