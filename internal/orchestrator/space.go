package orchestrator

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
)

// diskUsage суммирует размеры файлов под root.
// Ошибки отдельных файлов логируются и пропускаются.
func diskUsage(root string, logger *slog.Logger) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			logger.Warn("failed to stat staging entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logger.Warn("failed to stat staging file", "path", path, "error", err)
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
