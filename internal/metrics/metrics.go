package metrics

import (
	"context"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	CounterManifests      = stats.Int64("manifests", "Number of manifests written to the master document", "1")
	CounterReleaseLookups = stats.Int64("release_lookups", "Number of release download count lookups", "1")
	CounterDownloads      = stats.Int64("downloads", "Sum of release download counts", "1")

	TagStatus = tag.MustNewKey("status")
)

const (
	StatusFound    = "found"
	StatusNotFound = "not_found"
	StatusCached   = "cached"
	StatusError    = "error"
)

var views = []*view.View{
	{
		Name:        "manifests",
		Measure:     CounterManifests,
		Description: "Number of manifests written to the master document",
		Aggregation: view.Sum(),
	},
	{
		Name:        "release_lookups",
		Measure:     CounterReleaseLookups,
		Description: "Number of release download count lookups",
		TagKeys:     []tag.Key{TagStatus},
		Aggregation: view.Count(),
	},
	{
		Name:        "downloads",
		Measure:     CounterDownloads,
		Description: "Sum of release download counts",
		Aggregation: view.Sum(),
	},
}

// Register makes the views available for Summary and exporters. Registering
// more than once is harmless.
func Register() error {
	return view.Register(views...)
}

func RecordLookup(ctx context.Context, status string) {
	ctx, _ = tag.New(ctx, tag.Upsert(TagStatus, status))
	stats.Record(ctx, CounterReleaseLookups.M(1))
}

func RecordDownloads(ctx context.Context, n int) {
	stats.Record(ctx, CounterDownloads.M(int64(n)))
}

func RecordManifests(ctx context.Context, n int) {
	stats.Record(ctx, CounterManifests.M(int64(n)))
}

type RunSummary struct {
	Manifests int64
	Downloads int64
	Lookups   map[string]int64
}

func Summary() (*RunSummary, error) {
	ret := &RunSummary{Lookups: make(map[string]int64)}
	rows, err := view.RetrieveData("manifests")
	if err != nil {
		return nil, err
	}
	ret.Manifests = sumRows(rows)
	rows, err = view.RetrieveData("downloads")
	if err != nil {
		return nil, err
	}
	ret.Downloads = sumRows(rows)
	rows, err = view.RetrieveData("release_lookups")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		status := ""
		for _, t := range row.Tags {
			if t.Key == TagStatus {
				status = t.Value
			}
		}
		if cd, ok := row.Data.(*view.CountData); ok {
			ret.Lookups[status] += cd.Value
		}
	}
	return ret, nil
}

func sumRows(rows []*view.Row) int64 {
	var total int64
	for _, row := range rows {
		if sd, ok := row.Data.(*view.SumData); ok {
			total += int64(sd.Value)
		}
	}
	return total
}

func NewExporter(projectID string) (*stackdriver.Exporter, error) {
	err := Register()
	if err != nil {
		return nil, err
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    projectID,
		MetricPrefix: "pluginmaster",
	})
	if err != nil {
		return nil, err
	}
	err = exporter.StartMetricsExporter()
	if err != nil {
		return nil, err
	}
	return exporter, nil
}
