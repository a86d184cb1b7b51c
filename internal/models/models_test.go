package models

import (
	"testing"
	"time"
)

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, false},
		{JobStatusActive, false},
		{JobStatusDone, true},
		{JobStatusError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestJobCloneIsDeep(t *testing.T) {
	now := time.Now()
	job := &Job{
		ID:          "1",
		Kind:        JobKindTrain,
		Chunks:      []string{"a"},
		Metrics:     map[string]any{"loss": 0.5},
		Errors:      []string{"boom"},
		CompletedAt: &now,
	}

	c := job.Clone()
	c.Chunks[0] = "changed"
	c.Metrics["loss"] = 1.0
	c.Errors[0] = "changed"
	*c.CompletedAt = now.Add(time.Hour)

	if job.Chunks[0] != "a" {
		t.Errorf("clone shares chunks with original")
	}
	if job.Metrics["loss"] != 0.5 {
		t.Errorf("clone shares metrics with original")
	}
	if job.Errors[0] != "boom" {
		t.Errorf("clone shares errors with original")
	}
	if !job.CompletedAt.Equal(now) {
		t.Errorf("clone shares completed_at with original")
	}
}

func TestJobText(t *testing.T) {
	job := &Job{Chunks: []string{"hello", " ", "world"}}
	if got := job.Text(); got != "hello world" {
		t.Errorf("Text() = %q, want %q", got, "hello world")
	}
}

func TestModelHasSource(t *testing.T) {
	m := &Model{Sources: []string{"http://a", "http://b"}}
	if !m.HasSource("http://b") {
		t.Error("expected http://b to be a known source")
	}
	if m.HasSource("http://c") {
		t.Error("http://c should not be a known source")
	}
}

func TestModelCloneNeverNilSources(t *testing.T) {
	m := &Model{ID: "1", Name: "gpt"}
	c := m.Clone()
	if c.Sources == nil {
		t.Fatal("Clone should normalise nil sources to an empty slice")
	}
	c.Sources = append(c.Sources, "x")
	if len(m.Sources) != 0 {
		t.Error("clone shares sources with original")
	}
}
