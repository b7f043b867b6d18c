package mongostore

import (
	"context"
	"time"

	"catalog-sync/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ScheduleStore
// ============================================================================

func (s *Store) GetScheduleConfig(ctx context.Context) (*model.ScheduleConfig, error) {
	return findOne[model.ScheduleConfig](ctx, s.col(ColSchedule),
		bson.D{{Key: "_id", Value: model.ScheduleConfigID}})
}

func (s *Store) PutScheduleConfig(ctx context.Context, cfg *model.ScheduleConfig) error {
	cfg.Normalize()
	cfg.UpdatedAt = time.Now().UTC()

	_, err := s.col(ColSchedule).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: cfg.ID}},
		cfg,
		options.Replace().SetUpsert(true))
	return wrapError(err)
}

func (s *Store) DisableSchedule(ctx context.Context, reason string) error {
	return updateFields(ctx, s.col(ColSchedule), model.ScheduleConfigID, bson.D{
		{Key: "enabled", Value: false},
		{Key: "disabled_reason", Value: reason},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

