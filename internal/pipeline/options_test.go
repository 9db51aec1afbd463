package pipeline

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"defaults", func(*Options) {}, ""},
		{"smallest chunk", func(o *Options) { o.ChunkSize, o.ChunkOverlap = 100, 99 }, ""},
		{"overlap not below size", func(o *Options) { o.ChunkSize, o.ChunkOverlap = 100, 150 }, "chunk_overlap must be smaller than chunk_size"},
		{"overlap equal size", func(o *Options) { o.ChunkSize, o.ChunkOverlap = 500, 500 }, "chunk_overlap"},
		{"chunk too small", func(o *Options) { o.ChunkSize, o.ChunkOverlap = 99, 0 }, "chunk_size must be >= 100"},
		{"chunk too large", func(o *Options) { o.ChunkSize = 5001 }, "chunk_size must be <= 5000"},
		{"overlap too large", func(o *Options) { o.ChunkSize, o.ChunkOverlap = 5000, 1001 }, "chunk_overlap must be <= 1000"},
		{"negative overlap", func(o *Options) { o.ChunkOverlap = -1 }, "chunk_overlap must be >= 0"},
		{"unknown strategy", func(o *Options) { o.SplitStrategy = "paragraph" }, "split_strategy must be one of"},
		{"zero questions", func(o *Options) { o.TotalQuestions = 0 }, "total_questions must be >= 1"},
		{"too many questions", func(o *Options) { o.TotalQuestions = 51 }, "total_questions must be <= 50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidOptions) {
				t.Fatalf("expected ErrInvalidOptions, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestOptions_ReportsEveryField(t *testing.T) {
	opts := Options{ChunkSize: 10, ChunkOverlap: 20, SplitStrategy: "x", TotalQuestions: 0}
	err := opts.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, field := range []string{"chunk_size", "chunk_overlap", "split_strategy", "total_questions"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestOptions_JSONKeepsDefaults(t *testing.T) {
	opts := DefaultOptions()
	if err := json.Unmarshal([]byte(`{"total_questions": 5, "force_reingest": true}`), &opts); err != nil {
		t.Fatal(err)
	}
	if opts.ChunkSize != 1200 || opts.ChunkOverlap != 200 || opts.SplitStrategy != "header_aware" {
		t.Errorf("defaults lost: %+v", opts)
	}
	if opts.TotalQuestions != 5 || !opts.ForceReingest {
		t.Errorf("fields not applied: %+v", opts)
	}
}
