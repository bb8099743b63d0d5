// Package cli provides tests for skeleton CLI helpers.
package cli

import (
	"testing"

	"github.com/batchforge/batchforge/internal/templates"
)

func TestFilterSkeletons(t *testing.T) {
	items := []*templates.Skeleton{
		{Name: "a", Tags: []string{"slurm", "parallel"}},
		{Name: "b", Tags: []string{"local"}},
		{Name: "c", Tags: []string{"slurm"}},
		{Name: "d", Tags: nil},
	}

	tests := []struct {
		name     string
		tags     []string
		expected int
	}{
		{"no filter", nil, 4},
		{"filter slurm", []string{"slurm"}, 2},
		{"filter local", []string{"local"}, 1},
		{"filter multiple", []string{"slurm", "local"}, 3},
		{"case insensitive", []string{"SLURM"}, 2},
		{"filter nonexistent", []string{"nonexistent"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filterSkeletons(items, tt.tags)
			if len(result) != tt.expected {
				t.Errorf("filterSkeletons() = %d items, want %d", len(result), tt.expected)
			}
		})
	}
}
