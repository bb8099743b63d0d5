package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// LoadBuiltinSkeletons returns the skeletons bundled with batchforge.
func LoadBuiltinSkeletons() ([]*Skeleton, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin skeletons: %w", err)
	}

	skeletons := make([]*Skeleton, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := "builtin/" + entry.Name()
		data, err := builtinFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read builtin skeleton %s: %w", entry.Name(), err)
		}
		skel, err := parseSkeleton(data)
		if err != nil {
			return nil, fmt.Errorf("parse builtin skeleton %s: %w", entry.Name(), err)
		}
		skel.Source = "builtin"
		skeletons = append(skeletons, skel)
	}

	sort.Slice(skeletons, func(i, j int) bool {
		return skeletons[i].Name < skeletons[j].Name
	})

	return skeletons, nil
}
