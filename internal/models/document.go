package models

import "time"

// Document download statuses.
const (
	// DocumentPending means the document was discovered but not yet fetched
	DocumentPending = "pending"
	// DocumentDownloaded means the content is stored and hashed
	DocumentDownloaded = "downloaded"
	// DocumentSkipped means an identical document was already present, no network fetch occurred
	DocumentSkipped = "skipped"
	// DocumentFailed means the fetch failed after retries; Error holds the reason
	DocumentFailed = "failed"
	// DocumentExternal means the URL is hosted on a separate government system requiring its own auth
	DocumentExternal = "external"
)

// DocumentRef is a document discovered on a case detail page, before download.
type DocumentRef struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
	Index    int    `json:"index"` // Portal-provided position, preserved for display
}

// CaseDocument is one manifest entry: a discovered document and its download
// outcome. Identity is (CaseID, SourceURL); re-crawls must not duplicate
// entries or re-fetch downloaded content.
type CaseDocument struct {
	ID        string `json:"id" badgerhold:"unique"` // <case_id>:<index>
	CaseID    string `json:"case_id" badgerhold:"index"`
	SourceURL string `json:"source_url"`

	Name     string `json:"name"`
	FileName string `json:"file_name"` // Sanitized local name, %02d_ prefix
	MimeType string `json:"mime_type"`
	Index    int    `json:"index"`

	Status     string `json:"status"`
	StorageKey string `json:"storage_key,omitempty"` // KV key holding the content (base64)
	SHA256     string `json:"sha256,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Error      string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DownloadResult is the outcome of a single document download attempt.
type DownloadResult struct {
	Status string // downloaded, skipped, failed, external
	Error  string
}

// ManifestStats summarizes a case's manifest for completeness reporting.
type ManifestStats struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	External   int `json:"external"`
}
