package library

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/damedic/cql-engine-go/elm"
)

// Manager loads ELM libraries through a SourceProvider and caches the
// decoded trees. It is safe for concurrent use.
type Manager struct {
	source SourceProvider
	logger *slog.Logger

	mu        sync.RWMutex
	libraries map[elm.VersionedIdentifier]*elm.Library
}

type ManagerOption func(*Manager)

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(source SourceProvider, opts ...ManagerOption) *Manager {
	m := &Manager{
		source:    source,
		logger:    slog.New(slog.DiscardHandler),
		libraries: map[elm.VersionedIdentifier]*elm.Library{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ResolveLibrary returns the library with the given identifier. An empty
// version accepts whatever version the source provides.
func (m *Manager) ResolveLibrary(id elm.VersionedIdentifier) (*elm.Library, error) {
	m.mu.RLock()
	lib, ok := m.libraries[id]
	m.mu.RUnlock()
	if ok {
		return lib, nil
	}

	content, found, err := m.source.LibraryContent(id, ContentTypeELMJSON)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, id)
	}
	defer content.Close()

	lib, err = elm.DecodeLibrary(content)
	if err != nil {
		return nil, fmt.Errorf("library %s: %w", id, err)
	}
	if lib.Identifier.ID != id.ID || (id.Version != "" && lib.Identifier.Version != id.Version) {
		return nil, fmt.Errorf("library %s: source provided %s", id, lib.Identifier)
	}
	m.logger.Debug("library loaded", slog.String("library", lib.Identifier.String()), slog.Int("statements", len(lib.Statements)))

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.libraries[id]; ok {
		return cached, nil
	}
	m.libraries[id] = lib
	if id != lib.Identifier {
		m.libraries[lib.Identifier] = lib
	}
	return lib, nil
}

// Load resolves a library together with all libraries it includes,
// directly or transitively.
func (m *Manager) Load(id elm.VersionedIdentifier) (*elm.Library, error) {
	return m.load(id, nil)
}

func (m *Manager) load(id elm.VersionedIdentifier, path []elm.VersionedIdentifier) (*elm.Library, error) {
	for _, seen := range path {
		if seen.ID == id.ID {
			return nil, fmt.Errorf("library %s: circular include via %v", id, path)
		}
	}
	lib, err := m.ResolveLibrary(id)
	if err != nil {
		return nil, err
	}
	path = append(path, lib.Identifier)
	for _, inc := range lib.Includes {
		if _, err := m.load(inc.Identifier(), path); err != nil {
			return nil, fmt.Errorf("include %s of %s: %w", inc.LocalIdentifier, lib.Identifier, err)
		}
	}
	return lib, nil
}
