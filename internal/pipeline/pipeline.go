package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thakyz/pluginmaster/internal/config"
	"github.com/thakyz/pluginmaster/internal/enrich"
	"github.com/thakyz/pluginmaster/internal/history"
	"github.com/thakyz/pluginmaster/internal/manifest"
	"github.com/thakyz/pluginmaster/internal/master"
	"github.com/thakyz/pluginmaster/internal/metrics"
	"github.com/thakyz/pluginmaster/internal/release"
)

type Publisher interface {
	Publish(ctx context.Context, fn string) error
}

type Options struct {
	PluginsDir    string
	Output        string
	Owner         string
	StrictHistory bool
	Tables        config.Tables
	Provider      release.DownloadCountProvider
	// Publisher is optional.
	Publisher Publisher
	// Now defaults to time.Now.
	Now func() time.Time
}

type Result struct {
	Entries manifest.Manifests
	Report  history.Report
}

// Run generates the master document. Nothing is written unless every stage
// before the writer succeeded.
func Run(ctx context.Context, log *logrus.Logger, opts Options) (*Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	log.Infof("loading manifests from %s...", opts.PluginsDir)
	manifests, err := manifest.Load(opts.PluginsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifests: %w", err)
	}
	log.Infof("found %d manifests", len(manifests))

	entries := manifest.TrimAll(manifests, opts.Tables.AllowedFields)

	log.Println("fetching release download counts...")
	enricher := enrich.New(log, opts.Tables, opts.Owner, opts.Provider)
	if err := enricher.Enrich(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to enrich manifests: %w", err)
	}

	fileLock, err := master.Lock(ctx, opts.Output)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			log.Error(err)
		}
	}()

	previous, err := history.LoadPrevious(opts.Output, opts.StrictHistory)
	if err != nil {
		return nil, err
	}
	if len(previous) == 0 {
		log.Warnf("no previous entries found in %s, all plugins are treated as updated", opts.Output)
	}
	report := history.Merge(entries, previous, opts.Now())
	for _, e := range report {
		if e.Change == history.ChangeUnchanged {
			continue
		}
		log.WithFields(logrus.Fields{
			"plugin":   e.InternalName,
			"version":  e.Version,
			"previous": e.PreviousVersion,
		}).Infof("plugin %s", e.Change)
	}

	log.Infof("writing %s...", opts.Output)
	if err := master.Write(opts.Output, entries); err != nil {
		return nil, err
	}
	metrics.RecordManifests(ctx, len(entries))

	if opts.Publisher != nil {
		log.Println("publishing master...")
		if err := opts.Publisher.Publish(ctx, opts.Output); err != nil {
			return nil, err
		}
	}

	return &Result{Entries: entries, Report: report}, nil
}
