package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vins-anity/trailpack/common/logger"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/store"
)

type WorkspaceService interface {
	// SetSecret installs or rotates the workspace's webhook signing
	// secret for a provider. Deliveries signed with the previous
	// secret fail verification from this point on.
	SetSecret(ctx context.Context, workspaceID int64, provider model.Provider, secret string) error
}

type workspaceService struct {
	stores StoreProvider
	logger *slog.Logger
}

func NewWorkspaceService(stores StoreProvider, logger *slog.Logger) WorkspaceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &workspaceService{stores: stores, logger: logger}
}

func (s *workspaceService) SetSecret(ctx context.Context, workspaceID int64, provider model.Provider, secret string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:   "trailpack.service.workspace",
		WorkspaceID: &workspaceID,
	})

	switch provider {
	case model.ProviderSlack, model.ProviderGitHub, model.ProviderJira:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if strings.TrimSpace(secret) == "" {
		return ErrEmptySecret
	}

	if _, err := s.stores.Workspaces().GetByID(ctx, workspaceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrWorkspaceNotFound
		}
		return fmt.Errorf("fetching workspace: %w", err)
	}

	if err := s.stores.Workspaces().UpsertSecret(ctx, &model.WorkspaceSecret{
		WorkspaceID: workspaceID,
		Provider:    provider,
		Secret:      secret,
	}); err != nil {
		return fmt.Errorf("storing signing secret: %w", err)
	}

	s.logger.InfoContext(ctx, "signing secret rotated", "provider", provider)
	return nil
}
