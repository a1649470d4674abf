package models

// FetchTarget is one URL to download for a job and the file it lands in.
type FetchTarget struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Job      Job    `json:"-"`
}

// FetchStatus is the outcome of a single fetch target.
type FetchStatus string

const (
	FetchOK         FetchStatus = "ok"
	FetchHTTPStatus FetchStatus = "http_status"
	FetchError      FetchStatus = "error"
)

// FetchResult is the outcome of downloading one FetchTarget.
type FetchResult struct {
	Target     FetchTarget `json:"target"`
	Status     FetchStatus `json:"status"`
	StatusCode int         `json:"status_code,omitempty"`
	Bytes      int64       `json:"bytes,omitempty"`
	Error      *ItemError  `json:"error,omitempty"`
}

// ExtractRule selects how a downloaded file is turned into target contents.
// Exactly one rule applies to every file name.
type ExtractRule string

const (
	// RuleMainArchive unpacks <job>.zip and merges its <job>/ wrapper.
	RuleMainArchive ExtractRule = "main_archive"
	// RuleArchive unpacks any other .zip directly into the target.
	RuleArchive ExtractRule = "archive"
	// RuleCopy copies the file verbatim.
	RuleCopy ExtractRule = "copy"
)

// ExtractResult is the outcome of processing one download directory entry.
type ExtractResult struct {
	Filename string      `json:"filename"`
	Rule     ExtractRule `json:"rule"`
	Error    *ItemError  `json:"error,omitempty"`
}
