package config

// Default is a field value applied to a manifest that does not set it.
type Default struct {
	Field string
	Value any
}

// Duplicate copies the value of Source into each alias that is not set.
type Duplicate struct {
	Source  string
	Aliases []string
}

// Tables holds the constant data that drives trimming and enrichment. Values
// returned by DefaultTables are fresh copies and may be modified by callers
// without affecting other runs.
type Tables struct {
	AllowedFields       []string
	Defaults            []Default
	Duplicates          []Duplicate
	DownloadURLTemplate string
	ReleaseTagPrefix    string
}

const (
	FieldInternalName        = "InternalName"
	FieldAssemblyVersion     = "AssemblyVersion"
	FieldRepoURL             = "RepoUrl"
	FieldDownloadLinkInstall = "DownloadLinkInstall"
	FieldDownloadLinkTesting = "DownloadLinkTesting"
	FieldDownloadLinkUpdate  = "DownloadLinkUpdate"
	FieldDownloadCount       = "DownloadCount"
	FieldLastUpdate          = "LastUpdate"
	FieldIsHide              = "IsHide"
	FieldIsTestingExclusive  = "IsTestingExclusive"
	FieldApplicableVersion   = "ApplicableVersion"
)

func DefaultTables() Tables {
	return Tables{
		AllowedFields: []string{
			"Author",
			"Name",
			"Punchline",
			"Description",
			"Changelog",
			FieldInternalName,
			FieldAssemblyVersion,
			FieldRepoURL,
			FieldApplicableVersion,
			"Tags",
			"CategoryTags",
			"DalamudApiLevel",
			"IconUrl",
			"ImageUrls",
		},
		Defaults: []Default{
			{Field: FieldIsHide, Value: false},
			{Field: FieldIsTestingExclusive, Value: false},
			{Field: FieldApplicableVersion, Value: "any"},
		},
		Duplicates: []Duplicate{
			{Source: FieldDownloadLinkInstall, Aliases: []string{FieldDownloadLinkTesting, FieldDownloadLinkUpdate}},
		},
		DownloadURLTemplate: "%s/releases/download/v%s/latest.zip",
		ReleaseTagPrefix:    "v",
	}
}

// ReleaseTag returns the git tag a manifest version is released under.
func (t Tables) ReleaseTag(version string) string {
	return t.ReleaseTagPrefix + version
}
