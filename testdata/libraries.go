package testdata

import (
	"embed"
	"io/fs"
	"log"
	"strings"
)

//go:embed elm/*.json
var elmFiles embed.FS

// LibraryFS holds the ELM JSON test libraries, named <id>-<version>.json.
func LibraryFS() fs.FS {
	sub, err := fs.Sub(elmFiles, "elm")
	if err != nil {
		log.Fatal(err)
	}
	return sub
}

// GetLibraries returns the raw test libraries keyed by <id>-<version>.
func GetLibraries() map[string][]byte {
	entries, err := fs.ReadDir(elmFiles, "elm")
	if err != nil {
		log.Fatal(err)
	}
	libraries := map[string][]byte{}
	for _, e := range entries {
		content, err := fs.ReadFile(elmFiles, "elm/"+e.Name())
		if err != nil {
			log.Fatal(err)
		}
		libraries[strings.TrimSuffix(e.Name(), ".json")] = content
	}
	return libraries
}
