package mongostore

import (
	"context"

	"catalog-sync/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// EventStore
// ============================================================================

// eventSeqCounter counters 集合里事件序号分配器的 _id
const eventSeqCounter = "event_seq"

func (s *Store) AppendEvent(ctx context.Context, event *model.Event) error {
	seq, err := nextSeq(ctx, s.col(ColCounters), eventSeqCounter, 1)
	if err != nil {
		return err
	}
	event.ID = seq
	return insertOne(ctx, s.col(ColEvents), event)
}

func (s *Store) AppendEvents(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}
	first, err := nextSeq(ctx, s.col(ColCounters), eventSeqCounter, int64(len(events)))
	if err != nil {
		return err
	}

	docs := make([]interface{}, len(events))
	for i, e := range events {
		e.ID = first + int64(i)
		docs[i] = e
	}
	_, err = s.col(ColEvents).InsertMany(ctx, docs)
	return wrapError(err)
}

func (s *Store) ListEventsByRun(ctx context.Context, runID string, limit, offset int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	filter := bson.D{{Key: "run_id", Value: runID}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return findMany[model.Event](ctx, s.col(ColEvents), filter, opts)
}

func (s *Store) LatestProgressEvent(ctx context.Context, runID string) (*model.Event, error) {
	filter := bson.D{
		{Key: "run_id", Value: runID},
		{Key: "message", Value: bson.D{{Key: "$nin", Value: model.DiagnosticEventMessages()}}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "id", Value: -1}})
	return findOne[model.Event](ctx, s.col(ColEvents), filter, opts)
}

func (s *Store) LatestEvent(ctx context.Context, runID string) (*model.Event, error) {
	filter := bson.D{{Key: "run_id", Value: runID}}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "id", Value: -1}})
	return findOne[model.Event](ctx, s.col(ColEvents), filter, opts)
}
