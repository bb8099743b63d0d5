package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSkeleton reads a single skeleton from disk.
func LoadSkeleton(path string) (*Skeleton, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("skeleton path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skeleton %s: %w", path, err)
	}

	skel, err := parseSkeleton(data)
	if err != nil {
		return nil, fmt.Errorf("parse skeleton %s: %w", path, err)
	}
	skel.Source = path
	return skel, nil
}

// LoadSkeletonsFromDir loads all skeletons from a directory.
func LoadSkeletonsFromDir(dir string) ([]*Skeleton, error) {
	if strings.TrimSpace(dir) == "" {
		return []*Skeleton{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Skeleton{}, nil
		}
		return nil, fmt.Errorf("read skeletons dir %s: %w", dir, err)
	}

	skeletons := make([]*Skeleton, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, name)
		skel, err := LoadSkeleton(path)
		if err != nil {
			return nil, err
		}
		skeletons = append(skeletons, skel)
	}

	sort.Slice(skeletons, func(i, j int) bool {
		return skeletons[i].Name < skeletons[j].Name
	})

	return skeletons, nil
}

func parseSkeleton(data []byte) (*Skeleton, error) {
	var skel Skeleton
	if err := yaml.Unmarshal(data, &skel); err != nil {
		return nil, err
	}

	skel.Name = strings.TrimSpace(skel.Name)
	if skel.Name == "" {
		return nil, fmt.Errorf("skeleton name is required")
	}
	if strings.TrimSpace(skel.Script) == "" {
		return nil, fmt.Errorf("skeleton %q: script is required", skel.Name)
	}
	for _, variable := range skel.Variables {
		if !validName(variable.Name) {
			return nil, fmt.Errorf("skeleton %q: invalid variable name %q", skel.Name, variable.Name)
		}
	}

	return &skel, nil
}
