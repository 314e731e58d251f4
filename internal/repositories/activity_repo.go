package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/boardsync/internal/models"
)

const DefaultActivityLimit = 100

type PostgresActivityRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresActivityRepository(pool *pgxpool.Pool) *PostgresActivityRepository {
	return &PostgresActivityRepository{pool: pool}
}

// Append inserts an activity and populates its ID and CreatedAt.
func (r *PostgresActivityRepository) Append(ctx context.Context, activity *models.Activity) error {
	query := `INSERT INTO activities (board_id, collection_id, item_id, user_id, action, message)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		activity.BoardID,
		activity.CollectionID,
		activity.ItemID,
		activity.UserID,
		activity.Action,
		activity.Message,
	).Scan(&activity.ID, &activity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListByBoard returns the newest activities for a board first.
func (r *PostgresActivityRepository) ListByBoard(ctx context.Context, boardID string, limit int) ([]*models.Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	query := `SELECT id, board_id, collection_id, item_id, user_id, action, message, created_at
	          FROM activities
	          WHERE board_id = $1
	          ORDER BY created_at DESC
	          LIMIT $2`

	rows, err := r.pool.Query(ctx, query, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := []*models.Activity{}
	for rows.Next() {
		var activity models.Activity
		err := rows.Scan(
			&activity.ID,
			&activity.BoardID,
			&activity.CollectionID,
			&activity.ItemID,
			&activity.UserID,
			&activity.Action,
			&activity.Message,
			&activity.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, &activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}
