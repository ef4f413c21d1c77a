package enrich

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/thakyz/pluginmaster/internal/config"
	"github.com/thakyz/pluginmaster/internal/manifest"
	"github.com/thakyz/pluginmaster/internal/metrics"
	"github.com/thakyz/pluginmaster/internal/release"
)

type MissingFieldError struct {
	Field string
	Index int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("manifest %d: missing field %s", e.Index, e.Field)
}

type Enricher struct {
	log      *logrus.Logger
	tables   config.Tables
	owner    string
	provider release.DownloadCountProvider
}

func New(log *logrus.Logger, tables config.Tables, owner string, provider release.DownloadCountProvider) *Enricher {
	return &Enricher{
		log:      log,
		tables:   tables,
		owner:    owner,
		provider: provider,
	}
}

func requireString(m manifest.Manifest, i int, field string) (string, error) {
	v, ok := m.String(field)
	if !ok {
		return "", &MissingFieldError{Field: field, Index: i}
	}
	return v, nil
}

// DownloadLink renders the install link for a manifest.
func (e *Enricher) DownloadLink(m manifest.Manifest, i int) (string, error) {
	repoURL, err := requireString(m, i, config.FieldRepoURL)
	if err != nil {
		return "", err
	}
	version, err := requireString(m, i, config.FieldAssemblyVersion)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(e.tables.DownloadURLTemplate, repoURL, version), nil
}

func (e *Enricher) applyDefaults(m manifest.Manifest) {
	for _, d := range e.tables.Defaults {
		if !m.Has(d.Field) {
			m[d.Field] = d.Value
		}
	}
}

func (e *Enricher) applyDuplicates(m manifest.Manifest, i int) error {
	for _, d := range e.tables.Duplicates {
		for _, alias := range d.Aliases {
			if m.Has(alias) {
				continue
			}
			v, ok := m[d.Source]
			if !ok {
				return &MissingFieldError{Field: d.Source, Index: i}
			}
			m[alias] = v
		}
	}
	return nil
}

// Enrich adds the computed, default and duplicated fields and the release
// download count to every manifest, in order. Manifests are modified in place.
func (e *Enricher) Enrich(ctx context.Context, manifests manifest.Manifests) error {
	for i, m := range manifests {
		link, err := e.DownloadLink(m, i)
		if err != nil {
			return err
		}
		m[config.FieldDownloadLinkInstall] = link
		e.applyDefaults(m)
		if err := e.applyDuplicates(m, i); err != nil {
			return err
		}

		name, err := requireString(m, i, config.FieldInternalName)
		if err != nil {
			return err
		}
		version := m.AssemblyVersion()
		count, err := e.provider.DownloadCount(ctx, e.owner, name, version)
		if err != nil {
			return err
		}
		m[config.FieldDownloadCount] = count
		metrics.RecordDownloads(ctx, count)
		e.log.WithFields(logrus.Fields{
			"plugin":    name,
			"version":   version,
			"downloads": count,
		}).Debug("enriched manifest")
	}
	return nil
}
