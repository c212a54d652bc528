package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/food-passport/api/internal/services"
)

// CheckinPublisher publishes passport.checked_in events to a Pub/Sub topic.
type CheckinPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewCheckinPublisher wraps topic. Ordering is keyed by user id when the topic enables it.
func NewCheckinPublisher(topic *pubsub.Topic) (*CheckinPublisher, error) {
	if topic == nil {
		return nil, errors.New("checkin publisher: topic is required")
	}
	return &CheckinPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishCheckin sends event and waits for the server-assigned message id.
func (p *CheckinPublisher) PublishCheckin(ctx context.Context, event services.CheckinEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("checkin publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal checkin event: %w", err)
	}

	attrs := map[string]string{
		"eventType":  services.CheckinEventType,
		"entryCount": strconv.Itoa(event.EntryCount),
	}
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "foodKey", event.FoodKey)
	setAttr(attrs, "rank", event.CurrentRank)
	if event.NewRegion {
		attrs["newRegion"] = "true"
	}

	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = event.UserID
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish checkin event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *CheckinPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
