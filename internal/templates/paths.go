package templates

import (
	"os"
	"path/filepath"
)

// SkeletonSearchPaths returns skeleton search directories in precedence order.
func SkeletonSearchPaths(projectDir string) []string {
	paths := make([]string, 0, 3)
	if projectDir != "" {
		paths = append(paths, filepath.Join(projectDir, ".batchforge", "skeletons"))
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "batchforge", "skeletons"))
	}

	paths = append(paths, filepath.Join(string(filepath.Separator), "usr", "share", "batchforge", "skeletons"))
	return paths
}

// LoadSkeletonsFromSearchPaths loads skeletons from search paths with
// first-hit precedence; embedded builtins come last.
func LoadSkeletonsFromSearchPaths(projectDir string) ([]*Skeleton, error) {
	paths := SkeletonSearchPaths(projectDir)
	seen := make(map[string]*Skeleton)
	order := make([]string, 0)

	for _, path := range paths {
		skeletons, err := LoadSkeletonsFromDir(path)
		if err != nil {
			return nil, err
		}
		for _, skel := range skeletons {
			if _, exists := seen[skel.Name]; exists {
				continue
			}
			seen[skel.Name] = skel
			order = append(order, skel.Name)
		}
	}

	builtins, err := LoadBuiltinSkeletons()
	if err != nil {
		return nil, err
	}
	for _, skel := range builtins {
		if _, exists := seen[skel.Name]; exists {
			continue
		}
		seen[skel.Name] = skel
		order = append(order, skel.Name)
	}

	resolved := make([]*Skeleton, 0, len(order))
	for _, name := range order {
		resolved = append(resolved, seen[name])
	}

	return resolved, nil
}

// FindSkeleton resolves a skeleton by name across search paths and builtins.
func FindSkeleton(projectDir, name string) (*Skeleton, error) {
	skeletons, err := LoadSkeletonsFromSearchPaths(projectDir)
	if err != nil {
		return nil, err
	}
	for _, skel := range skeletons {
		if skel.Name == name {
			return skel, nil
		}
	}
	return nil, &SkeletonNotFoundError{Name: name}
}

// SkeletonNotFoundError is returned when no skeleton matches a name.
type SkeletonNotFoundError struct {
	Name string
}

func (e *SkeletonNotFoundError) Error() string {
	return "skeleton not found: " + e.Name
}
