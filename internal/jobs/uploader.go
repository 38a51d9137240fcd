package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shaiso/Surveyor/internal/ftpclient"
)

// DirUploader переносит каталог результатов в ResultsDir/<job>.
type DirUploader struct {
	ResultsDir string
}

// Upload реализует Uploader.
func (u DirUploader) Upload(_ context.Context, jobName, outDir string) error {
	if _, err := os.Stat(outDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoOutput, outDir)
		}
		return err
	}
	if err := os.MkdirAll(u.ResultsDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(u.ResultsDir, jobName)
	if err := os.Rename(outDir, dst); err != nil {
		return fmt.Errorf("move results %s: %w", outDir, err)
	}
	return nil
}

// FTPUploader загружает файлы результатов на FTP-сервер в RemoteDir.
// Удалённое имя — "<job>_<файл>". Размер каждого файла сверяется после загрузки.
type FTPUploader struct {
	Dialer    ftpclient.Dialer
	RemoteDir string
	Logger    *slog.Logger
}

// Upload реализует Uploader.
func (u FTPUploader) Upload(ctx context.Context, jobName, outDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoOutput, outDir)
		}
		return err
	}

	logger := u.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s, err := u.Dialer.Open(ctx, u.RemoteDir)
	if err != nil {
		return fmt.Errorf("open upload session: %w", err)
	}
	defer s.Close()

	uploaded := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		remote := jobName + "_" + e.Name()
		if err := ftpclient.Upload(s, filepath.Join(outDir, e.Name()), remote); err != nil {
			return fmt.Errorf("upload %s: %w", e.Name(), err)
		}
		uploaded++
	}

	logger.Info("results uploaded to ftp", "job", jobName, "files", uploaded, "remote_dir", u.RemoteDir)
	return nil
}
