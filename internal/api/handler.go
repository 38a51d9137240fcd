package api

import (
	"log/slog"

	"github.com/shaiso/Surveyor/internal/orchestrator"
	"github.com/shaiso/Surveyor/internal/repo"
)

// ActiveLister отдаёт сводку по restore в работе. Реализуется *orchestrator.Orchestrator.
type ActiveLister interface {
	Status() []orchestrator.RestoreStats
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	requestRepo  *repo.RequestRepo
	downloadRepo *repo.DownloadRepo
	active       ActiveLister
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	RequestRepo  *repo.RequestRepo
	DownloadRepo *repo.DownloadRepo
	Active       ActiveLister // опционально: есть только в surveyor-downloader
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		requestRepo:  cfg.RequestRepo,
		downloadRepo: cfg.DownloadRepo,
		active:       cfg.Active,
		logger:       logger,
	}
}
