// Package events publishes booking lifecycle events for downstream consumers
// (announcement feeds, dashboards). Publishing is best-effort: a failed
// publish never fails the booking itself.
package events

import (
	"context"
	"time"

	"lectio/pkg/kafka"
	"lectio/pkg/model"
)

const (
	EventLectureBooked    = "lecture.booked"
	EventLectureCancelled = "lecture.cancelled"

	sourceService = "scheduling"
)

type Publisher interface {
	BookingCommitted(ctx context.Context, booking *model.Booking) error
	BookingCancelled(ctx context.Context, booking *model.Booking) error
	Close() error
}

// BookingEvent is the wire payload for both lifecycle events.
type BookingEvent struct {
	BookingID string    `json:"booking_id"`
	BatchID   string    `json:"batch_id"`
	ModuleID  string    `json:"module_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type kafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(producer *kafka.Producer) Publisher {
	return &kafkaPublisher{producer: producer}
}

func (p *kafkaPublisher) BookingCommitted(ctx context.Context, booking *model.Booking) error {
	return p.publish(ctx, EventLectureBooked, booking)
}

func (p *kafkaPublisher) BookingCancelled(ctx context.Context, booking *model.Booking) error {
	return p.publish(ctx, EventLectureCancelled, booking)
}

func (p *kafkaPublisher) publish(ctx context.Context, eventType string, booking *model.Booking) error {
	msg := kafka.NewMessage().
		WithKey(booking.ID).
		WithValue(BookingEvent{
			BookingID: booking.ID,
			BatchID:   booking.BatchID,
			ModuleID:  booking.ModuleID,
			StartTime: booking.StartTime,
			EndTime:   booking.EndTime,
		}).
		WithEventType(eventType).
		WithSource(sourceService).
		Build()

	return p.producer.Publish(ctx, msg)
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

type nopPublisher struct{}

// NewNopPublisher is used when no Kafka brokers are configured.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) BookingCommitted(context.Context, *model.Booking) error { return nil }
func (nopPublisher) BookingCancelled(context.Context, *model.Booking) error { return nil }
func (nopPublisher) Close() error                                           { return nil }
