package analytics

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
)

// StreamSink appends events to a Redis stream for downstream consumers.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamSink caps the stream at roughly maxLen entries; 0 leaves it
// unbounded.
func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Publish(ctx context.Context, event domain.AnalyticsEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"event_type": event.EventType,
			"data":       string(data),
			"timestamp":  event.EventData.ScannedAt.Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}
