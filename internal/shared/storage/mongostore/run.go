package mongostore

import (
	"context"
	"fmt"
	"time"

	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// RunStore
// ============================================================================

func (s *Store) CreateRun(ctx context.Context, run *model.Run) error {
	if err := run.Steps.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return insertOne(ctx, s.col(ColRuns), run)
}

func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	return findOne[model.Run](ctx, s.col(ColRuns), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) ListRuns(ctx context.Context, status string, limit, offset int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.D{}
	if status != "" {
		filter = append(filter, bson.E{Key: "status", Value: status})
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return findMany[model.Run](ctx, s.col(ColRuns), filter, opts)
}

func (s *Store) ListRunningRuns(ctx context.Context) ([]*model.Run, error) {
	filter := bson.D{{Key: "status", Value: string(model.RunStatusRunning)}}
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "created_at", Value: -1}})
	return findMany[model.Run](ctx, s.col(ColRuns), filter, opts)
}

func (s *Store) LatestScheduledRun(ctx context.Context) (*model.Run, error) {
	filter := bson.D{{Key: "trigger_type", Value: string(model.TriggerTypeScheduled)}}
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	return findOne[model.Run](ctx, s.col(ColRuns), filter, opts)
}

func (s *Store) LatestPrimaryRun(ctx context.Context) (*model.Run, error) {
	filter := bson.D{
		{Key: "trigger_type", Value: string(model.TriggerTypeScheduled)},
		{Key: "attempt", Value: 1},
		{Key: "status", Value: bson.D{{Key: "$ne", Value: string(model.RunStatusRunning)}}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	return findOne[model.Run](ctx, s.col(ColRuns), filter, opts)
}

func (s *Store) ListPrimaryRunsSince(ctx context.Context, since time.Time, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.D{
		{Key: "trigger_type", Value: string(model.TriggerTypeScheduled)},
		{Key: "attempt", Value: 1},
		{Key: "started_at", Value: bson.D{{Key: "$gt", Value: since}}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))
	return findMany[model.Run](ctx, s.col(ColRuns), filter, opts)
}

// UpdateRunIfRunning 条件终态写入：过滤条件同时匹配 _id 与 running 状态，
// 未匹配即有并发写入抢先，返回 ErrConflict。
func (s *Store) UpdateRunIfRunning(ctx context.Context, id string, term storage.RunTerminal) error {
	update := bson.D{
		{Key: "status", Value: term.Status},
		{Key: "finished_at", Value: term.FinishedAt},
		{Key: "runtime_ms", Value: term.RuntimeMS},
		{Key: "updated_at", Value: time.Now().UTC()},
	}
	if term.ErrorMessage != nil {
		update = append(update, bson.E{Key: "error_message", Value: *term.ErrorMessage})
	}

	res, err := s.col(ColRuns).UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "status", Value: string(model.RunStatusRunning)},
		},
		bson.D{{Key: "$set", Value: update}})
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrConflict
	}
	return nil
}

func (s *Store) UpdateRunProgress(ctx context.Context, id string, steps model.Steps, warningCount int) error {
	if err := steps.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return updateFields(ctx, s.col(ColRuns), id, bson.D{
		{Key: "steps", Value: steps},
		{Key: "warning_count", Value: warningCount},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (s *Store) UpdateRunCancel(ctx context.Context, id string, requested, byUser bool) error {
	return updateFields(ctx, s.col(ColRuns), id, bson.D{
		{Key: "cancel_requested", Value: requested},
		{Key: "cancelled_by_user", Value: byUser},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}
