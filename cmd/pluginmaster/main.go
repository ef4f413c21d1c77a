package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thakyz/pluginmaster/internal/config"
	"github.com/thakyz/pluginmaster/internal/master"
	"github.com/thakyz/pluginmaster/internal/metrics"
	"github.com/thakyz/pluginmaster/internal/pipeline"
	"github.com/thakyz/pluginmaster/internal/release"
)

var version = "dev"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cfg, err := config.NewConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	cfg.Version = version

	cmd := &cobra.Command{
		Use:     "pluginmaster",
		Short:   "Generate the plugin master list from the plugin manifests",
		Version: version,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(log, cmd, cfg); err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&cfg.PluginsDir, "plugins-dir", "d", cfg.PluginsDir, "directory containing the plugin manifests")
	flags.StringVarP(&cfg.Output, "output", "o", cfg.Output, "path of the master document")
	flags.StringVar(&cfg.Owner, "owner", cfg.Owner, "owner of the plugin release repositories")
	flags.StringVar(&cfg.GitHubAPIURL, "github-api-url", cfg.GitHubAPIURL, "GitHub API base URL")
	flags.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "timeout of a single release lookup")
	flags.BoolVar(&cfg.StrictHistory, "strict-history", cfg.StrictHistory, "fail if the previous master document does not exist")
	flags.BoolVar(&cfg.Offline, "offline", cfg.Offline, "skip release lookups and report zero downloads")
	flags.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "publish the master document to this bucket")
	flags.StringVar(&cfg.S3Key, "s3-key", cfg.S3Key, "object key of the published master document")
	flags.StringVar(&cfg.MetricsProjectID, "metrics-project", cfg.MetricsProjectID, "export metrics to this Google Cloud project")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flags.SortFlags = false

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newProvider(cfg *config.Config, tables config.Tables) (release.DownloadCountProvider, error) {
	if cfg.Offline {
		return release.StaticProvider{}, nil
	}
	ghProvider, err := release.NewGitHubProvider(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.GitHubAPIURL, tables.ReleaseTagPrefix)
	if err != nil {
		return nil, err
	}
	return release.NewCachedProvider(ghProvider), nil
}

func run(log *logrus.Logger, _ *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	log.Infof("starting pluginmaster (version=%s)", cfg.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsProjectID != "" {
		log.Infof("exporting metrics to %s", cfg.MetricsProjectID)
		exporter, err := metrics.NewExporter(cfg.MetricsProjectID)
		if err != nil {
			return err
		}
		defer func() {
			exporter.Flush()
			exporter.StopMetricsExporter()
		}()
	} else if err := metrics.Register(); err != nil {
		return err
	}

	tables := config.DefaultTables()
	provider, err := newProvider(cfg, tables)
	if err != nil {
		return err
	}
	if cfg.Offline {
		log.Warn("offline mode, download counts are not fetched")
	}

	opts := pipeline.Options{
		PluginsDir:    cfg.PluginsDir,
		Output:        cfg.Output,
		Owner:         cfg.Owner,
		StrictHistory: cfg.StrictHistory,
		Tables:        tables,
		Provider:      provider,
	}
	if cfg.PublishEnabled() {
		s3Client, err := cfg.CreateS3Client(ctx)
		if err != nil {
			return err
		}
		opts.Publisher = master.NewS3Publisher(s3Client, *cfg.GetBucket(), cfg.S3Key)
	}

	if _, err := pipeline.Run(ctx, log, opts); err != nil {
		return err
	}

	summary, err := metrics.Summary()
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"manifests": summary.Manifests,
		"downloads": summary.Downloads,
		"lookups":   summary.Lookups,
	}).Info("done!")
	return nil
}
