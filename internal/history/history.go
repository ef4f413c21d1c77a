package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/thakyz/pluginmaster/internal/config"
	"github.com/thakyz/pluginmaster/internal/manifest"
)

// LoadPrevious reads the master document written by an earlier run. A missing
// file is an error only when strict is set; otherwise the history is empty.
func LoadPrevious(fn string, strict bool) (manifest.Manifests, error) {
	data, err := os.ReadFile(fn)
	if errors.Is(err, os.ErrNotExist) && !strict {
		return manifest.Manifests{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read previous master %s: %w", fn, err)
	}
	var previous manifest.Manifests
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&previous); err != nil {
		return nil, fmt.Errorf("failed to parse previous master %s: %w", fn, err)
	}
	return previous, nil
}

type Change string

const (
	ChangeNew        Change = "new"
	ChangeUnchanged  Change = "unchanged"
	ChangeUpgraded   Change = "upgraded"
	ChangeDowngraded Change = "downgraded"
	// ChangeChanged is used when a version differs but cannot be ordered.
	ChangeChanged Change = "changed"
)

type Entry struct {
	InternalName    string
	Version         string
	PreviousVersion string
	Change          Change
}

type Report []Entry

func (r Report) Count(c Change) int {
	n := 0
	for _, e := range r {
		if e.Change == c {
			n++
		}
	}
	return n
}

func compareVersions(previous, current string) Change {
	if previous == current {
		return ChangeUnchanged
	}
	pv, err := semver.NewVersion(previous)
	if err != nil {
		return ChangeChanged
	}
	cv, err := semver.NewVersion(current)
	if err != nil {
		return ChangeChanged
	}
	switch cv.Compare(pv) {
	case 1:
		return ChangeUpgraded
	case -1:
		return ChangeDowngraded
	}
	return ChangeChanged
}

// Merge stamps every current manifest with now as its last update, unless the
// first previous entry with the same internal name also has the same version,
// in which case its last update is carried over.
func Merge(current, previous manifest.Manifests, now time.Time) Report {
	ts := strconv.FormatInt(now.Unix(), 10)
	report := make(Report, 0, len(current))
	for _, m := range current {
		m[config.FieldLastUpdate] = ts
		entry := Entry{
			InternalName: m.InternalName(),
			Version:      m.AssemblyVersion(),
			Change:       ChangeNew,
		}
		if prev := previous.Find(entry.InternalName); prev != nil {
			entry.PreviousVersion = prev.AssemblyVersion()
			entry.Change = compareVersions(entry.PreviousVersion, entry.Version)
			if entry.Change == ChangeUnchanged {
				if lu, ok := prev[config.FieldLastUpdate]; ok {
					m[config.FieldLastUpdate] = lu
				}
			}
		}
		report = append(report, entry)
	}
	return report
}
