package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxStreamLen caps each stream; older entries are trimmed approximately
const maxStreamLen = 10000

// StreamEvent represents an event stored in Redis Streams
type StreamEvent struct {
	Channel   string                 `json:"channel"`
	Sequence  int64                  `json:"seq"`
	Event     map[string]interface{} `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
}

// Streams manages Redis Streams for event replay
type Streams struct {
	rdb *redis.Client
	log *zap.Logger
	now func() time.Time
}

// NewStreams creates a new Streams manager
func NewStreams(rdb *redis.Client, log *zap.Logger) *Streams {
	if log == nil {
		log = zap.NewNop()
	}
	return &Streams{rdb: rdb, log: log, now: time.Now}
}

func streamKey(channel string) string { return "stream:" + channel }

// PublishEvent appends an event to the channel's stream under the next sequence number
func (s *Streams) PublishEvent(ctx context.Context, channel string, event map[string]interface{}) (int64, error) {
	seq, err := s.rdb.Incr(ctx, "seq:"+channel).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channel),
		MaxLen: maxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"seq":       seq,
			"timestamp": s.now().UTC().Format(time.RFC3339Nano),
			"data":      string(data),
		},
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to add to stream: %w", err)
	}

	s.log.Debug("Published event to stream",
		zap.String("channel", channel),
		zap.Int64("sequence", seq),
		zap.String("stream_id", id),
	)
	return seq, nil
}

// ReplayEvents returns up to limit events with a sequence above sinceSeq, oldest first
func (s *Streams) ReplayEvents(ctx context.Context, channel string, sinceSeq int64, limit int) ([]StreamEvent, error) {
	msgs, err := s.rdb.XRange(ctx, streamKey(channel), "-", "+").Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := []StreamEvent{}
	for _, msg := range msgs {
		ev, ok := s.decode(channel, msg)
		if !ok || ev.Sequence <= sinceSeq {
			continue
		}
		events = append(events, ev)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Streams) decode(channel string, msg redis.XMessage) (StreamEvent, bool) {
	data, _ := msg.Values["data"].(string)
	var event map[string]interface{}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		s.log.Warn("Failed to unmarshal event", zap.String("stream_id", msg.ID), zap.Error(err))
		return StreamEvent{}, false
	}

	var seq int64
	if raw, ok := msg.Values["seq"].(string); ok {
		fmt.Sscan(raw, &seq)
	}
	ts, _ := time.Parse(time.RFC3339Nano, fmt.Sprint(msg.Values["timestamp"]))
	return StreamEvent{Channel: channel, Sequence: seq, Event: event, Timestamp: ts}, true
}
