package main

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/damedic/cql-engine-go/library"
)

// openLibraries registers one provider per path on a PriorityLoader. Paths
// ending in .zip are read as archives; the ELM files may sit at the archive
// root or below a single top-level directory.
func openLibraries(paths []string) (*library.PriorityLoader, io.Closer, error) {
	var (
		loader  library.PriorityLoader
		closers closeAll
	)
	for _, p := range paths {
		var provider library.SourceProvider
		if strings.HasSuffix(strings.ToLower(p), ".zip") {
			archive, err := zip.OpenReader(p)
			if err != nil {
				closers.Close()
				return nil, nil, fmt.Errorf("open library archive: %w", err)
			}
			closers = append(closers, archive)
			provider = library.NewFSProvider(archiveRoot(&archive.Reader))
		} else {
			dir, err := library.NewDirectoryProvider(p)
			if err != nil {
				closers.Close()
				return nil, nil, err
			}
			provider = dir
		}
		if err := loader.Register(provider); err != nil {
			closers.Close()
			return nil, nil, err
		}
	}
	return &loader, closers, nil
}

func archiveRoot(r *zip.Reader) fs.FS {
	dirs := map[string]bool{}
	for _, f := range r.File {
		dir, _, nested := strings.Cut(f.Name, "/")
		if !nested {
			return r
		}
		dirs[dir] = true
	}
	if len(dirs) == 1 {
		for dir := range dirs {
			if sub, err := fs.Sub(r, dir); err == nil {
				return sub
			}
		}
	}
	return r
}

type closeAll []io.Closer

func (c closeAll) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
