package config

import (
	"path/filepath"

	"github.com/danmuck/labctl/internal/archive"
)

// SourceArchiveFile converts the archive settings into an unpackable file.
// Relative archive paths are taken relative to labDir. ok is false when no
// archive is configured.
func (e BinutilsEnv) SourceArchiveFile(labDir string) (file archive.File, ok bool) {
	if e.SourceArchive == "" {
		return archive.File{}, false
	}
	path := e.SourceArchive
	if !filepath.IsAbs(path) {
		path = filepath.Join(labDir, path)
	}
	file = archive.File{Path: path}
	if e.SourceArchiveTop != nil {
		top := *e.SourceArchiveTop
		file.Top = &top
	}
	return file, true
}
