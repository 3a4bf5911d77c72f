package models

import "time"

// CrawlResult reports a crawled URL and the file it was stored as.
type CrawlResult struct {
	URL  string `json:"url"`
	File string `json:"file"`
}

// CrawlMeta is the sidecar written next to a crawl file so the original URL
// survives for the file listing.
type CrawlMeta struct {
	OriginalURL string    `json:"originalUrl"`
	Title       string    `json:"title,omitempty"`
	CrawledAt   time.Time `json:"crawledAt"`
}

// IngestResponse is the body of POST /api/ingest.
type IngestResponse struct {
	Success  bool         `json:"success"`
	UserID   string       `json:"userId"`
	Files    []string     `json:"files"`
	Text     string       `json:"text,omitempty"`
	Crawl    *CrawlResult `json:"crawl,omitempty"`
	Indexing any          `json:"indexing"`
}

// FileInfo describes one previously ingested artifact.
type FileInfo struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"` // "document", "text" or "crawl"
	UploadDate  time.Time `json:"uploadDate"`
	Size        int64     `json:"size"`
	OriginalURL string    `json:"originalUrl,omitempty"`
}
