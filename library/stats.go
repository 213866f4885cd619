package library

// StorageStats totals novels and stored chapters, plus a per-source-id
// breakdown of novel counts (spec.md §4.8).
func (s *Storage) StorageStats() (StorageStats, error) {
	idx, err := s.readIndex()
	if err != nil {
		return StorageStats{}, err
	}

	stats := StorageStats{BySource: map[string]int{}}
	for _, n := range idx.Novels {
		stats.TotalNovels++
		stats.TotalChapters += n.StoredChapters
		sourceID, _ := splitNovelID(n.ID)
		stats.BySource[sourceID]++
	}
	return stats, nil
}
