// Package builder submits and tracks remote build workflows.
package builder

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// StatusSuccess is the terminal status value that marks a finished build as
// successful. Any other value, or a missing status field, is a failure.
const StatusSuccess = "SUCCESS"

// Status is the provider's structured build status document. The payload is
// kept opaque for journaling; only the identifier and terminal status fields
// are interpreted.
type Status struct {
	Raw json.RawMessage
}

type statusFields struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// ParseStatus wraps a raw status document, rejecting payloads that are not
// valid JSON objects.
func ParseStatus(raw []byte) (*Status, error) {
	var fields statusFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return &Status{Raw: json.RawMessage(raw)}, nil
}

func (s *Status) fields() statusFields {
	var f statusFields
	_ = json.Unmarshal(s.Raw, &f)
	return f
}

// BuildID returns the identifier field of the payload, if present.
func (s *Status) BuildID() string { return s.fields().ID }

// Terminal returns the terminal status field and whether it is present.
func (s *Status) Terminal() (string, bool) {
	f := s.fields()
	return f.Status, f.Status != ""
}

// Succeeded reports whether the payload exposes the success sentinel.
func (s *Status) Succeeded() bool {
	terminal, ok := s.Terminal()
	return ok && terminal == StatusSuccess
}

// SubmitRequest describes one workflow submission.
type SubmitRequest struct {
	// ConfigPath is the build configuration file for this workflow.
	ConfigPath string
	// SourcePath is the source archive to upload; empty means the build
	// runs without source.
	SourcePath string
	// Substitutions is the fully composed substitution set, derived
	// variables included.
	Substitutions map[string]string
}

// Submission is the provider's acknowledgment of a started build.
type Submission struct {
	ID     uuid.UUID
	Status *Status
}

// Runner starts remote builds and can block until they finish. Await failure
// and Describe failure both mean the build outcome is unknown; callers abort
// the chain and let the next poll retry.
type Runner interface {
	Start(ctx context.Context, req SubmitRequest) (*Submission, error)
	Await(ctx context.Context, id uuid.UUID) error
	Describe(ctx context.Context, id uuid.UUID) (*Status, error)
}
