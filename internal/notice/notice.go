package notice

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Stub is a lightweight row scanned from the OA notice list. It carries just
// enough to identify the notice and reach its detail page.
type Stub struct {
	Title       string    `json:"title"`
	Department  string    `json:"department"`
	PublishedAt time.Time `json:"published_at"`
	DetailURL   string    `json:"detail_url"`
}

// IdentityKey derives a stable key from the observable fields. The OA system
// exposes no numeric notice ID, so duplicates across runs are detected by
// hashing what the list page shows.
func (s Stub) IdentityKey() string {
	h := sha256.New()
	h.Write([]byte(s.Title))
	h.Write([]byte{0})
	h.Write([]byte(s.Department))
	h.Write([]byte{0})
	h.Write([]byte(s.PublishedAt.Format("2006-01-02")))
	h.Write([]byte{0})
	h.Write([]byte(s.DetailURL))
	return hex.EncodeToString(h.Sum(nil))
}

// Record is a Stub refined with the detail-page text and, once the
// summarizer has run, an AI summary. An empty Summary means absent.
type Record struct {
	Stub
	FullText  string    `json:"full_text"`
	Summary   string    `json:"summary,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	Processed bool      `json:"processed"`
}
