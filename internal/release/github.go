package release

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/thakyz/pluginmaster/internal/metrics"
)

const DefaultTimeout = 10 * time.Second

type GitHubProvider struct {
	ghClient  *github.Client
	tagPrefix string
}

// NewGitHubProvider creates a provider that reads release assets from the
// GitHub REST API. An empty baseURL uses api.github.com. If httpClient is nil
// a client with DefaultTimeout is used.
func NewGitHubProvider(httpClient *http.Client, baseURL, tagPrefix string) (*GitHubProvider, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	ghClient := github.NewClient(httpClient)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		ghClient.BaseURL = u
	}
	return &GitHubProvider{
		ghClient:  ghClient,
		tagPrefix: tagPrefix,
	}, nil
}

// DownloadCount sums the download counts of all assets attached to the release
// tagged <tagPrefix><version>. Any HTTP status other than 200 counts as zero
// downloads; transport errors are returned.
func (p *GitHubProvider) DownloadCount(ctx context.Context, owner, repo, version string) (int, error) {
	tag := p.tagPrefix + version
	release, resp, err := p.ghClient.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	if resp != nil && resp.StatusCode != http.StatusOK {
		metrics.RecordLookup(ctx, metrics.StatusNotFound)
		return 0, nil
	}
	if err != nil {
		metrics.RecordLookup(ctx, metrics.StatusError)
		return 0, fmt.Errorf("failed to get release %s/%s@%s: %w", owner, repo, tag, err)
	}
	metrics.RecordLookup(ctx, metrics.StatusFound)
	return sumDownloads(release.Assets), nil
}

func sumDownloads(assets []*github.ReleaseAsset) int {
	total := 0
	for _, asset := range assets {
		total += asset.GetDownloadCount()
	}
	return total
}
