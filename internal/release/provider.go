package release

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/thakyz/pluginmaster/internal/metrics"
)

// DownloadCountProvider returns the total number of downloads of the release
// of repo tagged with version.
type DownloadCountProvider interface {
	DownloadCount(ctx context.Context, owner, repo, version string) (int, error)
}

// StaticProvider serves counts from a fixed map keyed by repository name.
// Unknown repositories have zero downloads.
type StaticProvider map[string]int

func (p StaticProvider) DownloadCount(_ context.Context, _, repo, _ string) (int, error) {
	return p[repo], nil
}

// CachedProvider remembers results of the wrapped provider for the lifetime of
// the value, so identical identities are only looked up once per run.
type CachedProvider struct {
	next  DownloadCountProvider
	cache *cache.Cache
}

func NewCachedProvider(next DownloadCountProvider) *CachedProvider {
	return &CachedProvider{
		next:  next,
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func cacheKey(owner, repo, version string) string {
	return fmt.Sprintf("%s/%s@%s", owner, repo, version)
}

func (p *CachedProvider) DownloadCount(ctx context.Context, owner, repo, version string) (int, error) {
	k := cacheKey(owner, repo, version)
	if v, ok := p.cache.Get(k); ok {
		metrics.RecordLookup(ctx, metrics.StatusCached)
		return v.(int), nil
	}
	n, err := p.next.DownloadCount(ctx, owner, repo, version)
	if err != nil {
		return 0, err
	}
	p.cache.Set(k, n, cache.NoExpiration)
	return n, nil
}
