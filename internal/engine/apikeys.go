package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"certline/internal/domain"
	"certline/internal/repo"
)

const apiKeyPrefix = "cl_"

// CreateAPIKey issues a key for actorID. The plaintext key is returned once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", &InputError{Msg: "actor required"}
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.ts(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	return e.Repo.DeleteAPIKey(ctx, id)
}
