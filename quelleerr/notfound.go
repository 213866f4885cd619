package quelleerr

import "errors"

// Sentinels for the NotFound family (spec.md §7).
var (
	ErrNovelNotFound   = errors.New("novel not found")
	ErrPluginNotFound  = errors.New("plugin not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrFileNotFound    = errors.New("file not found")
)

func init() {
	registerKind(ErrNovelNotFound, KindNotFound)
	registerKind(ErrPluginNotFound, KindNotFound)
	registerKind(ErrVersionNotFound, KindNotFound)
	registerKind(ErrFileNotFound, KindNotFound)
}
