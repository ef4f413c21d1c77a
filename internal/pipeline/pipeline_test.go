package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/thakyz/pluginmaster/internal/config"
	"github.com/thakyz/pluginmaster/internal/history"
	"github.com/thakyz/pluginmaster/internal/release"
)

var (
	firstRun  = time.Unix(1700000000, 0)
	secondRun = time.Unix(1700086400, 0)
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeManifest(t *testing.T, root, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, dir, file), []byte(content), 0o644))
}

func newOptions(t *testing.T, provider release.DownloadCountProvider, now time.Time) Options {
	dir := t.TempDir()
	return Options{
		PluginsDir: filepath.Join(dir, "plugins"),
		Output:     filepath.Join(dir, "pluginmaster.json"),
		Owner:      "thakyZ",
		Tables:     config.DefaultTables(),
		Provider:   provider,
		Now:        func() time.Time { return now },
	}
}

func readMaster(t *testing.T, fn string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(fn)
	require.NoError(t, err)
	var ret []map[string]any
	require.NoError(t, json.Unmarshal(data, &ret))
	return ret
}

func keys(m map[string]any) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

func TestRunSingleManifestWithoutHistory(t *testing.T) {
	opts := newOptions(t, release.StaticProvider{"Foo": 12}, firstRun)
	writeManifest(t, opts.PluginsDir, "Foo", "Foo.json", `{"InternalName":"Foo","RepoUrl":"https://x/Foo","AssemblyVersion":"1.0"}`)

	res, err := Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, history.ChangeNew, res.Report[0].Change)

	entries := readMaster(t, opts.Output)
	require.Len(t, entries, 1)
	e := entries[0]
	link := "https://x/Foo/releases/download/v1.0/latest.zip"
	require.Equal(t, link, e["DownloadLinkInstall"])
	require.Equal(t, link, e["DownloadLinkTesting"])
	require.Equal(t, link, e["DownloadLinkUpdate"])
	require.Equal(t, false, e["IsHide"])
	require.Equal(t, false, e["IsTestingExclusive"])
	require.Equal(t, "any", e["ApplicableVersion"])
	require.Equal(t, float64(12), e["DownloadCount"])
	require.Equal(t, strconv.FormatInt(firstRun.Unix(), 10), e["LastUpdate"])
}

func TestRunOutputFieldSet(t *testing.T) {
	opts := newOptions(t, release.StaticProvider{}, firstRun)
	writeManifest(t, opts.PluginsDir, "Full", "Full.json", `{
		"Author": "someone",
		"Name": "Full Plugin",
		"Punchline": "does things",
		"Description": "does many things",
		"Changelog": "fixed things",
		"InternalName": "Full",
		"AssemblyVersion": "1.2.3.4",
		"RepoUrl": "https://github.com/thakyZ/Full",
		"ApplicableVersion": "any",
		"Tags": ["a", "b"],
		"CategoryTags": ["utility"],
		"DalamudApiLevel": 9,
		"IconUrl": "https://x/icon.png",
		"ImageUrls": ["https://x/1.png"],
		"LoadPriority": 0,
		"Punchline2": "dropped",
		"AcceptsFeedback": true
	}`)

	_, err := Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)
	entries := readMaster(t, opts.Output)
	require.Len(t, entries, 1)

	expected := append([]string{}, opts.Tables.AllowedFields...)
	expected = append(expected,
		"DownloadLinkInstall", "DownloadLinkTesting", "DownloadLinkUpdate",
		"DownloadCount", "LastUpdate", "IsHide", "IsTestingExclusive",
	)
	sort.Strings(expected)
	require.Equal(t, expected, keys(entries[0]))
	require.Equal(t, float64(9), entries[0]["DalamudApiLevel"])
}

func TestRunSkipsMismatchedDirectories(t *testing.T) {
	opts := newOptions(t, release.StaticProvider{}, firstRun)
	writeManifest(t, opts.PluginsDir, "Foo", "Foo.json", `{"InternalName":"Foo","RepoUrl":"https://x/Foo","AssemblyVersion":"1.0"}`)
	writeManifest(t, opts.PluginsDir, "Mismatch", "Bar.json", `{"InternalName":"Bar","RepoUrl":"https://x/Bar","AssemblyVersion":"1.0"}`)
	writeManifest(t, opts.PluginsDir, "Mismatch", "Baz.json", `{"InternalName":"Baz","RepoUrl":"https://x/Baz","AssemblyVersion":"1.0"}`)

	res, err := Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "Foo", res.Entries[0].InternalName())
}

func TestRunReleaseNotFound(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatchHandler(
			mock.GetReposReleasesTagsByOwnerByRepoByTag,
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				mock.WriteError(w, http.StatusNotFound, "Not Found")
			}),
		),
	)
	provider, err := release.NewGitHubProvider(mockedHTTPClient, "", "v")
	require.NoError(t, err)
	opts := newOptions(t, provider, firstRun)
	writeManifest(t, opts.PluginsDir, "Foo", "Foo.json", `{"InternalName":"Foo","RepoUrl":"https://x/Foo","AssemblyVersion":"1.0"}`)

	_, err = Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)
	entries := readMaster(t, opts.Output)
	require.Equal(t, float64(0), entries[0]["DownloadCount"])
}

func TestRunPreservesLastUpdate(t *testing.T) {
	opts := newOptions(t, release.StaticProvider{}, firstRun)
	writeManifest(t, opts.PluginsDir, "Stable", "Stable.json", `{"InternalName":"Stable","RepoUrl":"https://x/Stable","AssemblyVersion":"1.0"}`)
	writeManifest(t, opts.PluginsDir, "Moving", "Moving.json", `{"InternalName":"Moving","RepoUrl":"https://x/Moving","AssemblyVersion":"1.0"}`)
	_, err := Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)

	writeManifest(t, opts.PluginsDir, "Moving", "Moving.json", `{"InternalName":"Moving","RepoUrl":"https://x/Moving","AssemblyVersion":"1.1"}`)
	writeManifest(t, opts.PluginsDir, "Fresh", "Fresh.json", `{"InternalName":"Fresh","RepoUrl":"https://x/Fresh","AssemblyVersion":"0.1"}`)
	opts.Now = func() time.Time { return secondRun }
	res, err := Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)

	lastUpdates := make(map[string]any)
	for _, e := range readMaster(t, opts.Output) {
		lastUpdates[e["InternalName"].(string)] = e["LastUpdate"]
	}
	require.Equal(t, map[string]any{
		"Stable": "1700000000",
		"Moving": "1700086400",
		"Fresh":  "1700086400",
	}, lastUpdates)
	require.Equal(t, 1, res.Report.Count(history.ChangeUnchanged))
	require.Equal(t, 1, res.Report.Count(history.ChangeUpgraded))
	require.Equal(t, 1, res.Report.Count(history.ChangeNew))
}

func TestRunRoundTrip(t *testing.T) {
	opts := newOptions(t, release.StaticProvider{"Foo": 1, "Bar": 2}, firstRun)
	writeManifest(t, opts.PluginsDir, "Foo", "Foo.json", `{"InternalName":"Foo","RepoUrl":"https://x/Foo","AssemblyVersion":"1.0","Tags":["x"],"DalamudApiLevel":9}`)
	writeManifest(t, opts.PluginsDir, "Bar", "Bar.json", `{"InternalName":"Bar","RepoUrl":"https://x/Bar","AssemblyVersion":"2.0","IsHide":true}`)
	_, err := Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)
	first, err := os.ReadFile(opts.Output)
	require.NoError(t, err)

	opts.Now = func() time.Time { return secondRun }
	_, err = Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)
	second, err := os.ReadFile(opts.Output)
	require.NoError(t, err)

	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("master changed between identical runs (-first +second):\n%s", diff)
	}
}

func TestRunStrictHistory(t *testing.T) {
	opts := newOptions(t, release.StaticProvider{}, firstRun)
	opts.StrictHistory = true
	writeManifest(t, opts.PluginsDir, "Foo", "Foo.json", `{"InternalName":"Foo","RepoUrl":"https://x/Foo","AssemblyVersion":"1.0"}`)
	_, err := Run(context.Background(), newTestLogger(), opts)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.NoFileExists(t, opts.Output)
}

func TestRunFailsWithoutPartialOutput(t *testing.T) {
	opts := newOptions(t, release.StaticProvider{}, firstRun)
	writeManifest(t, opts.PluginsDir, "Foo", "Foo.json", `{"InternalName":"Foo","RepoUrl":"https://x/Foo","AssemblyVersion":"1.0"}`)
	_, err := Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)
	before, err := os.ReadFile(opts.Output)
	require.NoError(t, err)

	// a manifest without a repository URL aborts enrichment
	writeManifest(t, opts.PluginsDir, "Broken", "Broken.json", `{"InternalName":"Broken","AssemblyVersion":"1.0"}`)
	_, err = Run(context.Background(), newTestLogger(), opts)
	require.ErrorContains(t, err, "missing field RepoUrl")
	after, err := os.ReadFile(opts.Output)
	require.NoError(t, err)
	require.Equal(t, before, after)

	// so does invalid JSON
	writeManifest(t, opts.PluginsDir, "Broken", "Broken.json", `{`)
	_, err = Run(context.Background(), newTestLogger(), opts)
	require.ErrorContains(t, err, "failed to parse manifest")
}

type recordingPublisher struct {
	published []string
}

func (p *recordingPublisher) Publish(_ context.Context, fn string) error {
	p.published = append(p.published, fn)
	return nil
}

func TestRunPublishes(t *testing.T) {
	publisher := &recordingPublisher{}
	opts := newOptions(t, release.StaticProvider{}, firstRun)
	opts.Publisher = publisher
	writeManifest(t, opts.PluginsDir, "Foo", "Foo.json", `{"InternalName":"Foo","RepoUrl":"https://x/Foo","AssemblyVersion":"1.0"}`)
	_, err := Run(context.Background(), newTestLogger(), opts)
	require.NoError(t, err)
	require.Equal(t, []string{opts.Output}, publisher.published)
}
