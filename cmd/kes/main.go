// ABOUTME: CLI entrypoint for kes: serve the Markdown site, export it as static files, or print the merged config.
// ABOUTME: Startup is strictly sequential (config, logger, templates, posts) before any listener opens.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/2389-research/kes/config"
	"github.com/2389-research/kes/export"
	"github.com/2389-research/kes/logging"
	"github.com/2389-research/kes/metrics"
	"github.com/2389-research/kes/posts"
	"github.com/2389-research/kes/templates"
	"github.com/2389-research/kes/web"
)

var version = "dev"

func main() {
	if _, err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds flags shared by every subcommand.
type options struct {
	configPath string
	outDir     string
}

func addConfigFlag(fs *pflag.FlagSet, opts *options) {
	fs.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to the TOML config file")
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "kes",
		Short: "Serve a directory of Markdown posts as a small website",
		Long: `kes renders every *.md file in the posts directory once at startup and
serves a home listing, one page per post, a 404 page, and static assets.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	addConfigFlag(root.PersistentFlags(), opts)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Render all posts and start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	exp := &cobra.Command{
		Use:   "export",
		Short: "Render the site into a directory of static HTML files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}
	exp.Flags().StringVarP(&opts.outDir, "out", "o", "public", "output directory")

	show := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfig(cmd, opts)
		},
	}

	root.AddCommand(serve, exp, show)
	return root
}

// site is everything built before serving; all of it is read-only afterwards.
type site struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *templates.Engine
	store  *posts.Store
}

func buildSite(opts *options) (*site, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, nil)
	if err != nil {
		return nil, err
	}

	engine, err := templates.New(templates.Paths{
		Home:     cfg.HomeTemplate,
		Post:     cfg.PostTemplate,
		NotFound: cfg.NotFoundTemplate,
	}, logger.Named("templates"))
	if err != nil {
		return nil, err
	}

	store, err := posts.Load(cfg.PostsDir, engine, logger.Named("posts"))
	if err != nil {
		return nil, err
	}

	return &site{cfg: cfg, logger: logger, engine: engine, store: store}, nil
}

func runServe(cmd *cobra.Command, opts *options) error {
	s, err := buildSite(opts)
	if err != nil {
		return err
	}
	defer s.logger.Sync() //nolint:errcheck

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.PostsLoaded.Set(float64(s.store.Len()))

	srv, err := web.NewServer(web.ServerConfig{
		Addr:        s.cfg.Addr(),
		MetricsAddr: s.cfg.MetricsAddr(),
		AssetsDir:   s.cfg.AssetsDir,
		Workers:     s.cfg.Workers,
	}, s.store, s.engine, m, s.logger.Named("web"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}

func runExport(cmd *cobra.Command, opts *options) error {
	s, err := buildSite(opts)
	if err != nil {
		return err
	}
	defer s.logger.Sync() //nolint:errcheck

	res, err := export.Site(opts.outDir, s.store, s.engine, s.logger.Named("export"))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files to %s\n", len(res.Files), res.Dir)
	return nil
}

func runConfig(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
