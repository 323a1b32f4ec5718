package domain

import (
	"github.com/google/uuid"
)

// ChunkRef identifies a content chunk of a source, as listed for recording
// task generation. ChunkType and Instruction come from the crawl stage and
// seed the recording task's config.
type ChunkRef struct {
	ID          uuid.UUID `json:"id"`
	ChunkType   ChunkType `json:"chunk_type"`
	Instruction string    `json:"instruction,omitempty"`
}

// ChunkContext is the denormalized context the executor needs to build an
// instruction payload for one chunk: where the content came from and the
// content itself. AppURL is optional; when set it is the preferred navigation
// target for the recorder.
type ChunkContext struct {
	ChunkID       uuid.UUID `json:"chunk_id"`
	SourceID      uuid.UUID `json:"source_id"`
	DocumentURL   string    `json:"document_url"`
	DocumentTitle string    `json:"document_title"`
	SourceDomain  string    `json:"source_domain"`
	Content       string    `json:"content"`
	AppURL        string    `json:"app_url,omitempty"`
}

// StartURL returns the URL the recorder should open first: the app URL when
// the crawl resolved one, otherwise the document URL.
func (c *ChunkContext) StartURL() string {
	if c.AppURL != "" {
		return c.AppURL
	}
	return c.DocumentURL
}
