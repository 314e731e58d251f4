package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prudhvinik1/boardsync/internal/metrics"
	"github.com/prudhvinik1/boardsync/internal/models"
	"github.com/prudhvinik1/boardsync/internal/protocol"
	"github.com/prudhvinik1/boardsync/internal/realtime"
	"github.com/prudhvinik1/boardsync/internal/repositories"
)

const anonymousUser = "anonymous"

// SyncService records room presence and the activity trail as the realtime
// server reports joins, leaves and mutations. Every write is best-effort: a
// failure is logged and counted, and never reaches the connection.
type SyncService struct {
	presenceRepo repositories.PresenceRepository
	activityRepo repositories.ActivityRepository
	nodeID       string
}

// NewSyncService wires the repositories. activityRepo may be nil to disable the
// activity trail.
func NewSyncService(
	presenceRepo repositories.PresenceRepository,
	activityRepo repositories.ActivityRepository,
	nodeID string,
) *SyncService {
	return &SyncService{
		presenceRepo: presenceRepo,
		activityRepo: activityRepo,
		nodeID:       nodeID,
	}
}

var _ realtime.Observer = (*SyncService)(nil)

func (s *SyncService) Joined(ctx context.Context, p realtime.Peer, boardID string) {
	if err := s.setPresence(ctx, p, boardID); err != nil {
		metrics.PresenceErrors.WithLabelValues("set").Inc()
		slog.Warn("Failed to record presence", "board_id", boardID, "conn_id", p.ID(), "error", err)
	}
}

func (s *SyncService) Left(ctx context.Context, p realtime.Peer, boardID string) {
	if err := s.presenceRepo.DeletePresence(ctx, boardID, p.ID()); err != nil {
		metrics.PresenceErrors.WithLabelValues("delete").Inc()
		slog.Warn("Failed to remove presence", "board_id", boardID, "conn_id", p.ID(), "error", err)
	}
}

// Heartbeat refreshes every room entry for the connection, recreating those
// that expired while the connection was still alive.
func (s *SyncService) Heartbeat(ctx context.Context, p realtime.Peer, boardIDs []string) {
	for _, boardID := range boardIDs {
		err := s.presenceRepo.Touch(ctx, boardID, p.ID())
		if errors.Is(err, repositories.ErrNotFound) {
			err = s.setPresence(ctx, p, boardID)
		}
		if err != nil {
			metrics.PresenceErrors.WithLabelValues("refresh").Inc()
			slog.Warn("Failed to refresh presence", "board_id", boardID, "conn_id", p.ID(), "error", err)
		}
	}
}

func (s *SyncService) Published(ctx context.Context, p realtime.Peer, ev protocol.MutationEvent) {
	if s.activityRepo == nil {
		return
	}

	activity := ActivityFromEvent(p.UserID(), ev)
	if err := s.activityRepo.Append(ctx, activity); err != nil {
		metrics.ActivityWrites.WithLabelValues("error").Inc()
		slog.Warn("Failed to log activity", "board_id", ev.BoardID, "action", activity.Action, "error", err)
		return
	}
	metrics.ActivityWrites.WithLabelValues("ok").Inc()
}

func (s *SyncService) setPresence(ctx context.Context, p realtime.Peer, boardID string) error {
	return s.presenceRepo.SetPresence(ctx, &models.Presence{
		ConnID:  p.ID(),
		UserID:  p.UserID(),
		BoardID: boardID,
		NodeID:  s.nodeID,
		Status:  string(models.StatusOnline),
	})
}

var actionVerbs = map[protocol.Op]string{
	protocol.OpAdded:   "created",
	protocol.OpUpdated: "updated",
	protocol.OpDeleted: "deleted",
}

// ActivityFromEvent describes a mutation as an activity record, e.g. action
// "created_item" with message `alice added item "Doc"`.
func ActivityFromEvent(userID string, ev protocol.MutationEvent) *models.Activity {
	if userID == "" {
		userID = anonymousUser
	}

	activity := &models.Activity{
		BoardID: ev.BoardID,
		UserID:  userID,
		Action:  actionVerbs[ev.Op] + "_" + string(ev.Kind),
	}
	if ev.CollectionID != "" && ev.Kind != protocol.KindBoard {
		collectionID := ev.CollectionID
		activity.CollectionID = &collectionID
	}
	if ev.Kind == protocol.KindItem && ev.EntityID != "" {
		itemID := ev.EntityID
		activity.ItemID = &itemID
	}

	label := entityLabel(ev)
	if label == "" {
		label = ev.EntityID
	}
	activity.Message = fmt.Sprintf("%s %s %s %q", userID, ev.Op, ev.Kind, label)
	return activity
}

func entityLabel(ev protocol.MutationEvent) string {
	for _, source := range []map[string]any{ev.Fields, ev.Entity} {
		for _, key := range []string{"title", "name"} {
			if v, ok := source[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
