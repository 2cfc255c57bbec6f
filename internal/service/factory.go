package service

import (
	"log/slog"

	"github.com/vins-anity/trailpack/core/config"
	"github.com/vins-anity/trailpack/internal/queue"
	"github.com/vins-anity/trailpack/internal/summary"
)

type Services struct {
	stores     StoreProvider
	txRunner   TxRunner
	summarizer summary.Summarizer
	producer   queue.Producer
	closure    config.ClosureConfig
	logger     *slog.Logger
}

func NewServices(stores StoreProvider, txRunner TxRunner, summarizer summary.Summarizer, producer queue.Producer, closure config.ClosureConfig, logger *slog.Logger) *Services {
	return &Services{
		stores:     stores,
		txRunner:   txRunner,
		summarizer: summarizer,
		producer:   producer,
		closure:    closure,
		logger:     logger,
	}
}

func (s *Services) Ingest() IngestService {
	return NewIngestService(s.stores, s.txRunner, s.logger)
}

func (s *Services) Tasks() TaskService {
	return NewTaskService(s.stores, s.logger)
}

func (s *Services) Packets() PacketService {
	return NewPacketService(s.stores, s.txRunner, s.summarizer, s.producer, s.logger)
}

func (s *Services) Workspaces() WorkspaceService {
	return NewWorkspaceService(s.stores, s.logger)
}

func (s *Services) Closure() ClosureService {
	return NewClosureService(s.stores, s.txRunner, s.closure, s.logger)
}
