// Package templates provides job-script skeleton loading and rendering.
package templates

import (
	"fmt"
	"strings"
)

// Skeleton represents a single job-script skeleton.
type Skeleton struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Script      string        `yaml:"script"`
	Variables   []SkeletonVar `yaml:"variables,omitempty"`
	Passthrough []string      `yaml:"passthrough,omitempty"`
	Tags        []string      `yaml:"tags,omitempty"`
	Source      string        // file path or "builtin"
}

// SkeletonVar describes a variable used in a skeleton.
type SkeletonVar struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     string `yaml:"default,omitempty"`
	Required    bool   `yaml:"required"`
}

// RenderSkeleton renders a skeleton with the provided variables. Declared
// defaults fill unset variables; a declared required variable with no value
// fails before any substitution happens.
func RenderSkeleton(skel *Skeleton, vars map[string]string) (string, error) {
	if skel == nil {
		return "", fmt.Errorf("skeleton is required")
	}

	data := make(map[string]string, len(vars))
	for key, value := range vars {
		data[key] = value
	}

	for _, variable := range skel.Variables {
		value := strings.TrimSpace(data[variable.Name])
		if value == "" {
			if variable.Default != "" {
				data[variable.Name] = variable.Default
				continue
			}
			if variable.Required {
				return "", fmt.Errorf("skeleton %q: %w", skel.Name, &MissingVariableError{Name: variable.Name})
			}
		}
	}

	rendered, err := Render(skel.Script, data, skel.Passthrough)
	if err != nil {
		return "", fmt.Errorf("render skeleton %q: %w", skel.Name, err)
	}

	return rendered, nil
}
