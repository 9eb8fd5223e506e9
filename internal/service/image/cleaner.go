package image

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Cleaner удаляет забытые файлы по набору glob-шаблонов, например подготовленные изображения после падения.
type Cleaner struct {
	logger   *zap.SugaredLogger
	patterns []string
}

// NewCleaner без шаблонов чистит только временные файлы Preparer (TempPattern).
func NewCleaner(logger *zap.SugaredLogger, patterns ...string) *Cleaner {
	if len(patterns) == 0 {
		patterns = []string{TempPattern}
	}
	return &Cleaner{logger: logger, patterns: patterns}
}

// Clean удаляет из dir подходящие файлы старше ttl и возвращает их число.
// Пустой dir: системная временная директория. В режиме debug файлы остаются для разбора.
func (c *Cleaner) Clean(dir string, ttl time.Duration, debug bool) int {
	if debug {
		c.logger.Infow("DEBUG: очистка временных файлов отключена", "dir", dir, "patterns", c.patterns)
		return 0
	}
	if ttl <= 0 {
		return 0
	}
	if dir == "" {
		dir = os.TempDir()
	}
	deadline := time.Now().Add(-ttl)

	seen := make(map[string]struct{})
	removed := 0
	for _, pattern := range c.patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			c.logger.Warnw("Некорректный шаблон очистки", "pattern", pattern, "error", err)
			continue
		}
		for _, path := range matches {
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			if c.expired(path, deadline) && c.remove(path) {
				removed++
			}
		}
	}
	if removed > 0 {
		c.logger.Infow("Очистка временных файлов выполнена", "dir", dir, "removed", removed)
	}
	return removed
}

func (c *Cleaner) expired(path string, deadline time.Time) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		c.logger.Warnw("Не удалось получить информацию о файле", "path", path, "error", err)
		return false
	}
	return fi.Mode().IsRegular() && fi.ModTime().Before(deadline)
}

func (c *Cleaner) remove(path string) bool {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warnw("Не удалось удалить старый файл", "path", path, "error", err)
	}
	return err == nil
}
