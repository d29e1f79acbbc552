package statics

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed www
var www embed.FS

// Handler serves staticsDir, or the embedded portal shell when it is empty.
func Handler(staticsDir string) http.Handler {
	if staticsDir == "" {
		sub, err := fs.Sub(www, "www")
		if err != nil {
			panic(err)
		}
		return http.FileServer(http.FS(sub))
	}
	return http.FileServer(http.Dir(staticsDir))
}
