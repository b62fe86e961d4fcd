package library_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/damedic/cql-engine-go/elm"
	"github.com/damedic/cql-engine-go/library"
	"github.com/damedic/cql-engine-go/testdata"
)

func read(t *testing.T, p library.SourceProvider, id elm.VersionedIdentifier) (string, bool) {
	t.Helper()
	rc, found, err := p.LibraryContent(id, library.ContentTypeELMJSON)
	if err != nil {
		t.Fatalf("LibraryContent(%s): %v", id, err)
	}
	if !found {
		return "", false
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", id, err)
	}
	return string(b), true
}

func mustRegister(t *testing.T, loader *library.PriorityLoader, p library.SourceProvider) {
	t.Helper()
	if err := loader.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func wantErrorContaining(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil || !strings.Contains(err.Error(), want) {
		t.Errorf("error = %v, want one containing %q", err, want)
	}
}

func TestPriorityLoaderOrder(t *testing.T) {
	id := elm.VersionedIdentifier{ID: "Lib", Version: "1"}
	first, second := library.NewMemoryProvider(), library.NewMemoryProvider()
	second.Add(id, library.ContentTypeELMJSON, []byte("second"))

	var loader library.PriorityLoader
	mustRegister(t, &loader, first)
	mustRegister(t, &loader, second)

	if got, ok := read(t, &loader, id); !ok || got != "second" {
		t.Errorf("read = %q, %v; want second from the only provider holding it", got, ok)
	}

	first.Add(id, library.ContentTypeELMJSON, []byte("first"))
	if got, ok := read(t, &loader, id); !ok || got != "first" {
		t.Errorf("read = %q, %v; want first from the earlier provider", got, ok)
	}

	if _, ok := read(t, &loader, elm.VersionedIdentifier{ID: "Other"}); ok {
		t.Error("found a library no provider holds")
	}

	loader.Clear()
	if _, ok := read(t, &loader, id); ok {
		t.Error("found a library after Clear")
	}
}

func TestPriorityLoaderValidation(t *testing.T) {
	var loader library.PriorityLoader
	if err := loader.Register(nil); !errors.Is(err, library.ErrNilProvider) {
		t.Errorf("Register(nil) = %v, want %v", err, library.ErrNilProvider)
	}

	_, _, err := loader.LibraryContent(elm.VersionedIdentifier{}, library.ContentTypeELMJSON)
	if !errors.Is(err, library.ErrInvalidIdentifier) {
		t.Errorf("LibraryContent = %v, want %v", err, library.ErrInvalidIdentifier)
	}
}

type failingProvider struct{}

func (failingProvider) LibraryContent(elm.VersionedIdentifier, library.ContentType) (io.ReadCloser, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func TestPriorityLoaderProviderError(t *testing.T) {
	var loader library.PriorityLoader
	mustRegister(t, &loader, failingProvider{})
	_, _, err := loader.LibraryContent(elm.VersionedIdentifier{ID: "Lib"}, library.ContentTypeELMJSON)
	wantErrorContaining(t, err, "disk on fire")
}

func TestFSProviderVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"Lib-1.2.0.json":   {Data: []byte("1.2.0")},
		"Lib-1.10.0.json":  {Data: []byte("1.10.0")},
		"Lib-1.9.json":     {Data: []byte("1.9")},
		"Plain.json":       {Data: []byte("plain")},
		"Lib-1.2.0.cql":    {Data: []byte("cql")},
		"Library-9.0.json": {Data: []byte("other library")},
	}
	p := library.NewFSProvider(fsys)

	tests := []struct {
		name string
		id   elm.VersionedIdentifier
		want string
		ok   bool
	}{
		{"exact version", elm.VersionedIdentifier{ID: "Lib", Version: "1.2.0"}, "1.2.0", true},
		{"latest version", elm.VersionedIdentifier{ID: "Lib"}, "1.10.0", true},
		{"unversioned file", elm.VersionedIdentifier{ID: "Plain"}, "plain", true},
		{"missing version", elm.VersionedIdentifier{ID: "Lib", Version: "2.0.0"}, "", false},
		{"missing library", elm.VersionedIdentifier{ID: "Nope"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := read(t, p, tt.id)
			if ok != tt.ok || got != tt.want {
				t.Errorf("read(%s) = %q, %v; want %q, %v", tt.id, got, ok, tt.want, tt.ok)
			}
		})
	}

	rc, found, err := p.LibraryContent(elm.VersionedIdentifier{ID: "Lib", Version: "1.2.0"}, library.ContentTypeCQL)
	if err != nil || !found {
		t.Fatalf("LibraryContent(cql) = %v, %v", found, err)
	}
	defer rc.Close()
	if b, _ := io.ReadAll(rc); string(b) != "cql" {
		t.Errorf("cql content = %q, want cql", b)
	}
}

func TestNewDirectoryProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Lib-1.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := library.NewDirectoryProvider(dir)
	if err != nil {
		t.Fatalf("NewDirectoryProvider: %v", err)
	}
	if _, ok := read(t, p, elm.VersionedIdentifier{ID: "Lib", Version: "1"}); !ok {
		t.Error("Lib|1 not found")
	}

	if _, err := library.NewDirectoryProvider(filepath.Join(dir, "Lib-1.json")); err == nil {
		t.Error("expected an error for a regular file")
	}
	if _, err := library.NewDirectoryProvider(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestManagerLoad(t *testing.T) {
	m := library.NewManager(library.NewFSProvider(testdata.LibraryFS()))

	lib, err := m.Load(elm.VersionedIdentifier{ID: "Measure", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lib.Identifier.ID != "Measure" {
		t.Errorf("loaded %s, want Measure", lib.Identifier)
	}
	if _, ok := lib.ExpressionDef("Answer"); !ok {
		t.Error("Answer not defined")
	}

	again, err := m.ResolveLibrary(elm.VersionedIdentifier{ID: "Measure", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("ResolveLibrary: %v", err)
	}
	if again != lib {
		t.Error("ResolveLibrary decoded the library again")
	}

	common, err := m.ResolveLibrary(elm.VersionedIdentifier{ID: "Common"})
	if err != nil {
		t.Fatalf("ResolveLibrary(Common): %v", err)
	}
	if common.Identifier.Version != "1.0.0" {
		t.Errorf("Common version = %q, want 1.0.0", common.Identifier.Version)
	}
}

func TestManagerErrors(t *testing.T) {
	m := library.NewManager(library.NewFSProvider(testdata.LibraryFS()))

	_, err := m.ResolveLibrary(elm.VersionedIdentifier{ID: "Missing", Version: "1"})
	if !errors.Is(err, library.ErrLibraryNotFound) {
		t.Errorf("ResolveLibrary(Missing) = %v, want %v", err, library.ErrLibraryNotFound)
	}

	_, err = m.Load(elm.VersionedIdentifier{ID: "Cycle", Version: "1.0.0"})
	wantErrorContaining(t, err, "circular include")

	mem := library.NewMemoryProvider()
	mem.Add(elm.VersionedIdentifier{ID: "Wrong", Version: "1"}, library.ContentTypeELMJSON,
		[]byte(`{"library":{"identifier":{"id":"Other","version":"1"}}}`))
	mem.Add(elm.VersionedIdentifier{ID: "Broken", Version: "1"}, library.ContentTypeELMJSON, []byte(`{"library":`))
	m = library.NewManager(mem)
	_, err = m.ResolveLibrary(elm.VersionedIdentifier{ID: "Wrong", Version: "1"})
	wantErrorContaining(t, err, "source provided Other|1")
	_, err = m.ResolveLibrary(elm.VersionedIdentifier{ID: "Broken", Version: "1"})
	wantErrorContaining(t, err, "decode library")
}

func TestManagerConcurrentResolve(t *testing.T) {
	m := library.NewManager(library.NewFSProvider(testdata.LibraryFS()))
	id := elm.VersionedIdentifier{ID: "Common", Version: "1.0.0"}

	var wg sync.WaitGroup
	libs := make([]*elm.Library, 8)
	errs := make([]error, len(libs))
	for i := range libs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			libs[i], errs[i] = m.ResolveLibrary(id)
		}()
	}
	wg.Wait()
	for i, lib := range libs {
		if errs[i] != nil {
			t.Fatalf("ResolveLibrary: %v", errs[i])
		}
		if lib != libs[0] {
			t.Errorf("goroutine %d resolved a different *elm.Library", i)
		}
	}
}
