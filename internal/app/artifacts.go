package app

import (
	"fmt"
	"os"
	"path/filepath"

	"roboctl/internal/artifact"
	"roboctl/pkg/logging"
)

var artifactExtensions = map[artifact.Name]string{
	artifact.RobotDescription:         ".urdf",
	artifact.RobotDescriptionSemantic: ".srdf",
	artifact.RvizConfig:               ".rviz",
}

// ArtifactFileName is the file an artifact is written to by WriteArtifacts.
func ArtifactFileName(name artifact.Name) string {
	ext, ok := artifactExtensions[name]
	if !ok {
		ext = ".yaml"
	}
	return string(name) + ext
}

// WriteArtifacts writes every artifact of set into dir and returns the paths
// in name order.
func WriteArtifacts(set *artifact.Set, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var paths []string
	for _, name := range set.Names() {
		a, _ := set.Get(name)
		path := filepath.Join(dir, ArtifactFileName(name))
		if err := os.WriteFile(path, a.Document(), 0o644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", name, err)
		}
		logging.Debug("Artifacts", "Wrote %s (%d bytes)", path, len(a.Document()))
		paths = append(paths, path)
	}
	return paths, nil
}

// ArtifactDocument returns one rendered artifact.
func ArtifactDocument(set *artifact.Set, name string) ([]byte, error) {
	a, ok := set.Get(artifact.Name(name))
	if !ok {
		return nil, fmt.Errorf("artifact %q is not part of this plan (available: %v)", name, set.Names())
	}
	return a.Document(), nil
}
