package quelleerr

import "errors"

// Sentinels for the Conflict family (spec.md §7).
var (
	ErrNovelAlreadyExists     = errors.New("novel already exists")
	ErrPluginAlreadyPublished = errors.New("plugin already published")
)

func init() {
	registerKind(ErrNovelAlreadyExists, KindConflict)
	registerKind(ErrPluginAlreadyPublished, KindConflict)
}
