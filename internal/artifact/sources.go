package artifact

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"roboctl/internal/variant"
)

// Locator resolves package-relative source references.
type Locator interface {
	ReadFile(ref variant.SourceRef) ([]byte, error)
	// HostPath is the path a separate process would use to open the file.
	HostPath(ref variant.SourceRef) string
}

// ShareLocator reads packages from an install share directory, where each
// package lives in Root/<package>. Packages overrides single package directories.
type ShareLocator struct {
	Root     string
	Packages map[string]string
}

func (l ShareLocator) dir(pkg string) string {
	if d, ok := l.Packages[pkg]; ok && d != "" {
		return d
	}
	return filepath.Join(l.Root, pkg)
}

// ReadFile implements Locator.
func (l ShareLocator) ReadFile(ref variant.SourceRef) ([]byte, error) {
	return fs.ReadFile(os.DirFS(l.dir(ref.Package)), ref.Path)
}

// HostPath implements Locator.
func (l ShareLocator) HostPath(ref variant.SourceRef) string {
	return filepath.Join(l.dir(ref.Package), filepath.FromSlash(ref.Path))
}

// FSLocator reads "<package>/<path>" from a single file system.
type FSLocator struct {
	FS fs.FS
}

// ReadFile implements Locator.
func (l FSLocator) ReadFile(ref variant.SourceRef) ([]byte, error) {
	return fs.ReadFile(l.FS, path.Join(ref.Package, ref.Path))
}

// HostPath implements Locator.
func (l FSLocator) HostPath(ref variant.SourceRef) string {
	return path.Join(ref.Package, ref.Path)
}
