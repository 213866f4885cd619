package library

import (
	"path/filepath"

	"github.com/nacht-org/quelle-go/internal/xhash"
)

const (
	novelsDirName   = "novels"
	metadataDirName = "metadata"
	chaptersDirName = "chapters"
	assetsDirName   = "assets"
	novelFileName   = "novel.json"
	indexFileName   = "index.json"
)

func (s *Storage) novelDir(id string) string {
	sourceID, novelURL := splitNovelID(id)
	return filepath.Join(s.Root, novelsDirName, sourceID, xhash.HexString(novelURL))
}

func (s *Storage) novelFile(id string) string {
	return filepath.Join(s.novelDir(id), novelFileName)
}

func (s *Storage) chapterDir(id string, volumeIndex int) string {
	return filepath.Join(s.novelDir(id), chaptersDirName, xhash.DecString(volumeIndex))
}

func (s *Storage) chapterFile(id string, volumeIndex int, chapterURL string) string {
	return filepath.Join(s.chapterDir(id, volumeIndex), xhash.HexString(chapterURL)+".json")
}

func (s *Storage) assetsDir(id string) string {
	return filepath.Join(s.novelDir(id), assetsDirName)
}

func (s *Storage) assetFile(id, assetID string) string {
	return filepath.Join(s.assetsDir(id), assetID)
}

func (s *Storage) indexPath() string {
	return filepath.Join(s.Root, metadataDirName, indexFileName)
}
