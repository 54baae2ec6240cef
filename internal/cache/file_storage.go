package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"liuproxy_prober/internal/shared/logger"
)

type fileRecord struct {
	Entry    Entry     `json:"entry"`
	StoredAt time.Time `json:"stored_at"`
}

// FileStore 在 MemoryStore 之上增加了 JSON 文件持久化。
// 进程启动时 Load, 批次结束时 Save。
type FileStore struct {
	*MemoryStore
	filePath string
}

// NewFileStore 创建一个新的 FileStore 实例。
func NewFileStore(filePath string, ttl time.Duration) *FileStore {
	return &FileStore{
		MemoryStore: NewMemoryStore(ttl),
		filePath:    filePath,
	}
}

// Load 从文件加载缓存条目, 跳过已过期的条目。文件不存在时以空缓存启动。
func (fs *FileStore) Load() error {
	l := logger.WithComponent("Prober/Cache")

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.Info().Str("path", fs.filePath).Msg("Cache file not found, starting with an empty cache.")
			return nil
		}
		return err
	}

	var records map[string]fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse cache file: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	loaded := 0
	for key, rec := range records {
		item := memoryItem{entry: rec.Entry, storedAt: rec.StoredAt}
		if fs.expired(item) {
			continue
		}
		fs.items[key] = item
		loaded++
	}

	l.Info().Int("count", loaded).Int("expired", len(records)-loaded).Msg("Loaded cache entries from file.")
	return nil
}

// Save 将内存中未过期的缓存条目持久化到文件。
func (fs *FileStore) Save() error {
	l := logger.WithComponent("Prober/Cache")

	fs.mu.RLock()
	records := make(map[string]fileRecord, len(fs.items))
	for key, item := range fs.items {
		if fs.expired(item) {
			continue
		}
		records[key] = fileRecord{Entry: item.entry, StoredAt: item.storedAt}
	}
	fs.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if dir := filepath.Dir(fs.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, fs.filePath); err != nil {
		return err
	}

	l.Info().Int("count", len(records)).Msg("Saved cache entries to file.")
	return nil
}
