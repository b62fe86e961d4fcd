// Package library resolves and loads ELM libraries.
package library

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/damedic/cql-engine-go/elm"
)

var (
	ErrLibraryNotFound   = errors.New("library not found")
	ErrNilProvider       = errors.New("library source provider is nil")
	ErrInvalidIdentifier = errors.New("library identifier has no id")
)

// ContentType is the representation a library is requested in.
type ContentType int

const (
	ContentTypeELMJSON ContentType = iota
	ContentTypeCQL
)

func (t ContentType) String() string {
	switch t {
	case ContentTypeELMJSON:
		return "ELM/JSON"
	case ContentTypeCQL:
		return "CQL"
	}
	return fmt.Sprintf("ContentType(%d)", int(t))
}

// Extension is the file extension of the content type.
func (t ContentType) Extension() string {
	if t == ContentTypeCQL {
		return ".cql"
	}
	return ".json"
}

// SourceProvider returns library content. found is false when the provider
// does not know the library; that is not an error.
type SourceProvider interface {
	LibraryContent(id elm.VersionedIdentifier, t ContentType) (content io.ReadCloser, found bool, err error)
}

// PriorityLoader asks its providers in registration order and returns the
// first content found.
type PriorityLoader struct {
	mu        sync.RWMutex
	providers []SourceProvider
}

func (l *PriorityLoader) Register(p SourceProvider) error {
	if p == nil {
		return ErrNilProvider
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.providers = append(l.providers, p)
	return nil
}

func (l *PriorityLoader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.providers = nil
}

func (l *PriorityLoader) LibraryContent(id elm.VersionedIdentifier, t ContentType) (io.ReadCloser, bool, error) {
	if id.ID == "" {
		return nil, false, ErrInvalidIdentifier
	}
	l.mu.RLock()
	providers := slices.Clone(l.providers)
	l.mu.RUnlock()

	for _, p := range providers {
		content, found, err := p.LibraryContent(id, t)
		if err != nil {
			return nil, false, fmt.Errorf("library %s: %w", id, err)
		}
		if found {
			return content, true, nil
		}
	}
	return nil, false, nil
}

// FSProvider serves libraries stored as <id>-<version><ext> or <id><ext>.
type FSProvider struct {
	fsys fs.FS
}

func NewFSProvider(fsys fs.FS) *FSProvider {
	return &FSProvider{fsys: fsys}
}

// NewDirectoryProvider serves libraries from dir.
func NewDirectoryProvider(dir string) (*FSProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("library path %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library path %q is not a directory", dir)
	}
	return NewFSProvider(os.DirFS(dir)), nil
}

func (p *FSProvider) LibraryContent(id elm.VersionedIdentifier, t ContentType) (io.ReadCloser, bool, error) {
	name, ok, err := p.fileName(id, t.Extension())
	if err != nil || !ok {
		return nil, false, err
	}
	f, err := p.fsys.Open(name)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

func (p *FSProvider) fileName(id elm.VersionedIdentifier, ext string) (string, bool, error) {
	if id.Version != "" {
		name := id.ID + "-" + id.Version + ext
		return name, exists(p.fsys, name), nil
	}
	if name := id.ID + ext; exists(p.fsys, name) {
		return name, true, nil
	}

	matches, err := fs.Glob(p.fsys, escapeGlob(id.ID)+"-*"+ext)
	if err != nil {
		return "", false, err
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	versionOf := func(name string) string {
		return strings.TrimSuffix(strings.TrimPrefix(path.Base(name), id.ID+"-"), ext)
	}
	latest := slices.MaxFunc(matches, func(a, b string) int {
		return compareVersions(versionOf(a), versionOf(b))
	})
	return latest, true, nil
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`)
	return r.Replace(s)
}

// compareVersions orders dotted versions numerically segment by segment,
// falling back to lexical order for non-numeric segments.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareSegment(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareSegment(x, y string) int {
	if isDigits(x) && isDigits(y) {
		x, y = strings.TrimLeft(x, "0"), strings.TrimLeft(y, "0")
		if len(x) != len(y) {
			return len(x) - len(y)
		}
	}
	return strings.Compare(x, y)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type memoryKey struct {
	id elm.VersionedIdentifier
	t  ContentType
}

// MemoryProvider serves library content held in memory.
type MemoryProvider struct {
	mu      sync.RWMutex
	content map[memoryKey][]byte
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{content: map[memoryKey][]byte{}}
}

func (p *MemoryProvider) Add(id elm.VersionedIdentifier, t ContentType, content []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content[memoryKey{id, t}] = content
}

func (p *MemoryProvider) LibraryContent(id elm.VersionedIdentifier, t ContentType) (io.ReadCloser, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.content[memoryKey{id, t}]
	if !ok {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(c)), true, nil
}
