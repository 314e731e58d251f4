package repositories

import (
	"context"
	"errors"

	"github.com/prudhvinik1/boardsync/internal/models"
)

var ErrNotFound = errors.New("not found")

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	Touch(ctx context.Context, boardID, connID string) error
	DeletePresence(ctx context.Context, boardID, connID string) error
	ListBoardPresence(ctx context.Context, boardID string) ([]models.Presence, error)
}

type ActivityRepository interface {
	Append(ctx context.Context, activity *models.Activity) error
	ListByBoard(ctx context.Context, boardID string, limit int) ([]*models.Activity, error)
}
