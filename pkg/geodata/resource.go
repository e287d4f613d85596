package geodata

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Resource is an addressable, immutable byte source. Every Open returns a fresh stream.
type Resource interface {
	// ID identifies the resource in logs, sinks and DetectMany results.
	ID() string

	// Name returns the base file name, including its extension.
	Name() string

	// Open returns a new stream positioned at the first byte.
	Open() (io.ReadCloser, error)

	// Size returns the byte length when it is known.
	Size() (int64, bool)

	// Sibling returns the resource with base name name in the same directory.
	// It reports false when no such resource exists.
	Sibling(name string) (Resource, bool)
}

// FSResource is a Resource backed by a file in an fs.FS.
type FSResource struct {
	fsys fs.FS
	name string // slash-separated path inside fsys
	root string // prefix used to build IDs
}

// NewFSResource returns the resource for name inside fsys. The root is prepended to name
// to form the resource ID and may be empty.
func NewFSResource(fsys fs.FS, root, name string) *FSResource {
	return &FSResource{fsys: fsys, name: name, root: root}
}

// NewFileResource returns a resource for a file on the local file system.
func NewFileResource(p string) (*FSResource, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	return NewFSResource(os.DirFS(dir), dir, filepath.Base(abs)), nil
}

func (r *FSResource) ID() string {
	if r.root == "" {
		return r.name
	}
	return filepath.Join(r.root, filepath.FromSlash(r.name))
}

func (r *FSResource) Name() string { return path.Base(r.name) }

func (r *FSResource) Open() (io.ReadCloser, error) {
	return r.fsys.Open(r.name)
}

func (r *FSResource) Size() (int64, bool) {
	info, err := fs.Stat(r.fsys, r.name)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

func (r *FSResource) Sibling(name string) (Resource, bool) {
	p := path.Join(path.Dir(r.name), name)
	info, err := fs.Stat(r.fsys, p)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return &FSResource{fsys: r.fsys, name: p, root: r.root}, true
}

// SplitExt splits a base name into stem and extension. The extension excludes the dot.
func SplitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// SiblingAnyCase returns the first existing sibling among stem.ext for each ext in exts.
func SiblingAnyCase(r Resource, stem string, exts ...string) (Resource, bool) {
	for _, ext := range exts {
		if s, ok := r.Sibling(stem + "." + ext); ok {
			return s, true
		}
	}
	return nil, false
}

// ReadAll reads the whole resource.
func ReadAll(r Resource) ([]byte, error) {
	rc, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}
