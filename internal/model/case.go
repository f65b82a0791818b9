package model

import "time"

// CaseStats exists only after a successful summarization. CompressionRatio is
// the percentage reduction from the original text to the summary.
type CaseStats struct {
	OriginalLength   int64     `json:"originalLength"`
	SummaryLength    int64     `json:"summaryLength"`
	CompressionRatio float64   `json:"compressionRatio"`
	ProcessingTime   float64   `json:"processingTime"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CompressionRatio computes (original-summary)/original*100, defined as 0 when
// the original is empty.
func CompressionRatio(originalLength, summaryLength int64) float64 {
	if originalLength <= 0 {
		return 0
	}
	return float64(originalLength-summaryLength) / float64(originalLength) * 100
}

// Case is a user-owned unit of work: an uploaded document, its extracted text
// and an optional AI-generated summary.
type Case struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	FileURL        string     `json:"fileUrl"`
	TextContent    string     `json:"textContent,omitempty"`
	Summary        *string    `json:"summary,omitempty"`
	SummaryFileURL *string    `json:"summaryFileUrl,omitempty"`
	Stats          *CaseStats `json:"stats,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ListItem is the listing projection of a Case. TextContent is elided to keep
// cached payloads small; clients fetch the detail endpoint for full text.
type ListItem struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	FileURL        string     `json:"fileUrl"`
	Summary        *string    `json:"summary,omitempty"`
	SummaryFileURL *string    `json:"summaryFileUrl,omitempty"`
	Stats          *CaseStats `json:"stats,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ListProjection strips the heavy fields from a Case.
func (c *Case) ListProjection() ListItem {
	return ListItem{
		ID:             c.ID,
		UserID:         c.UserID,
		Title:          c.Title,
		Description:    c.Description,
		FileURL:        c.FileURL,
		Summary:        c.Summary,
		SummaryFileURL: c.SummaryFileURL,
		Stats:          c.Stats,
		CreatedAt:      c.CreatedAt,
	}
}
