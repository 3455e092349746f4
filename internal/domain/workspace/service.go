package workspace

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/helpmaton/billing-api/internal/pkg/secrets"
)

type Service struct {
	repo *Repository
	box  *secrets.Box
}

// NewService creates the workspace service. box may be nil when BYOK key
// storage is not configured; SetByokKey then fails with ErrByokNotConfigured.
func NewService(repo *Repository, box *secrets.Box) *Service {
	return &Service{repo: repo, box: box}
}

func (s *Service) Create(ctx context.Context, name, timezone string, usesByok bool) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		timezone = "UTC"
	}

	ws, err := s.repo.Create(ctx, name, timezone, usesByok)
	if err != nil {
		return nil, err
	}

	log.Info().Str("workspace_id", ws.ID.String()).Str("name", ws.Name).Msg("workspace created")
	return ws, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.repo.GetBalance(ctx, id)
}

func (s *Service) CreateAgent(ctx context.Context, workspaceID uuid.UUID, name string) (*Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	if _, err := s.repo.GetByID(ctx, workspaceID); err != nil {
		return nil, err
	}

	return s.repo.CreateAgent(ctx, workspaceID, name)
}

func (s *Service) GetAgent(ctx context.Context, workspaceID, agentID uuid.UUID) (*Agent, error) {
	return s.repo.GetAgent(ctx, workspaceID, agentID)
}

func (s *Service) ListAgents(ctx context.Context, workspaceID uuid.UUID) ([]Agent, error) {
	return s.repo.ListAgents(ctx, workspaceID)
}

// SetByokKey encrypts and stores a workspace's own provider API key.
func (s *Service) SetByokKey(ctx context.Context, workspaceID uuid.UUID, apiKey string) error {
	if s.box == nil {
		return ErrByokNotConfigured
	}
	if strings.TrimSpace(apiKey) == "" {
		return ErrInvalidName
	}

	ciphertext, err := s.box.Encrypt([]byte(apiKey))
	if err != nil {
		return err
	}

	if err := s.repo.SetByokKeyCiphertext(ctx, workspaceID, ciphertext); err != nil {
		return err
	}

	log.Info().Str("workspace_id", workspaceID.String()).Msg("byok key stored")
	return nil
}

// GetByokKey decrypts the stored provider API key.
func (s *Service) GetByokKey(ctx context.Context, workspaceID uuid.UUID) (string, error) {
	if s.box == nil {
		return "", ErrByokNotConfigured
	}

	ciphertext, err := s.repo.GetByokKeyCiphertext(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	plaintext, err := s.box.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
