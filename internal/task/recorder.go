package task

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/tkassel/actionforge/internal/domain"
)

// contentCharBudget caps the chunk content embedded in an instruction
// payload. Oversized content is cut and marked so the recorder knows it is
// looking at a prefix.
const (
	contentCharBudget = 8000
	truncationMarker  = "\n\n[content truncated]"
)

// InstructionPayload is the instruction set handed to the recorder for one
// recording task. The guided variant navigates and records; the exploratory
// variant only records from the start URL.
type InstructionPayload struct {
	Mode          domain.ChunkType `json:"mode"`
	Objective     string           `json:"objective,omitempty"`
	DocumentURL   string           `json:"document_url"`
	DocumentTitle string           `json:"document_title"`
	SourceDomain  string           `json:"source_domain"`
	Content       string           `json:"content"`
	Navigate      bool             `json:"navigate"`
}

// BuildInstructionPayload assembles the payload for a chunk from its
// denormalized context and the task's config.
func BuildInstructionPayload(
	chunk *domain.ChunkContext,
	cfg domain.RecordingTaskConfig,
) InstructionPayload {
	mode := cfg.ChunkType
	if mode == "" {
		// Older crawls did not set a chunk type; an explicit instruction
		// implies the guided variant.
		if cfg.Instruction != "" {
			mode = domain.ChunkTypeTaskDriven
		} else {
			mode = domain.ChunkTypeExploratory
		}
	}

	return InstructionPayload{
		Mode:          mode,
		Objective:     cfg.Instruction,
		DocumentURL:   chunk.DocumentURL,
		DocumentTitle: chunk.DocumentTitle,
		SourceDomain:  chunk.SourceDomain,
		Content:       truncateContent(chunk.Content),
		Navigate:      mode == domain.ChunkTypeTaskDriven,
	}
}

func truncateContent(content string) string {
	if len(content) <= contentCharBudget {
		return content
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := contentCharBudget
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + truncationMarker
}

// RecorderUsage reports the recorder's model token consumption for one run.
type RecorderUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RecorderResult is the outcome of one recorder run.
type RecorderResult struct {
	Success           bool                       `json:"success"`
	Elements          map[string]json.RawMessage `json:"elements"`
	Usage             RecorderUsage              `json:"usage"`
	SavedArtifactPath string                     `json:"saved_artifact_path,omitempty"`
}

// PartialResult is whatever the recorder had produced before a run was cut
// off by a timeout.
type PartialResult struct {
	Elements map[string]json.RawMessage `json:"elements"`
	Count    int                        `json:"count"`
}

// Recorder is the external browser-automation + model-driven recording
// collaborator. Implementations may return transient connection or session
// errors from any method; the executor classifies and retries them.
type Recorder interface {
	// Initialize prepares a recording session. Called once per attempt.
	Initialize(ctx context.Context) error

	// Run drives the recorder through the instruction payload starting from
	// startURL and returns the discovered elements.
	Run(ctx context.Context, startURL string, payload InstructionPayload) (*RecorderResult, error)

	// SalvagePartial returns whatever the recorder produced before an
	// aborted run, or (nil, nil) if it exposes nothing.
	SalvagePartial(ctx context.Context) (*PartialResult, error)

	// Close releases any per-attempt resources. Safe to call after a failed
	// Initialize or Run.
	Close(ctx context.Context) error
}
