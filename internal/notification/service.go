package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
	kafkax "github.com/ariefcatur/go-booking-saga.git/internal/kafka"
	"github.com/ariefcatur/go-booking-saga.git/internal/redisx"
)

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Recipient string
	Subject   string
	Content   string
	Status    string
	CreatedAt time.Time
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) InitSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			notif_type TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			content TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (r *Repo) Insert(ctx context.Context, n Notification) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO notifications(id, user_id, notif_type, recipient, subject, content, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, n.ID, n.UserID, n.Type, n.Recipient, n.Subject, n.Content, n.Status)
	return err
}

type Store interface {
	Insert(ctx context.Context, n Notification) error
}

type Publisher interface {
	Publish(ctx context.Context, eventType, correlationID string, payload any) error
}

// Service mencatat notification.send; pengiriman email/SMS sungguhan di luar
// scope, "sent" di sini artinya tercatat dan diserahkan.
type Service struct {
	Repo  Store
	Bus   Publisher
	Dedup *redisx.Deduper
	Log   *zap.Logger
}

func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env booking.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		s.Log.Warn("malformed message dropped", zap.Error(err))
		return nil
	}
	if env.Validate() != nil {
		s.Log.Warn("event without correlation id dropped", zap.String("event_type", env.EventType))
		return nil
	}
	if env.EventType != booking.EventNotificationSend {
		return nil
	}
	if s.Dedup.Seen(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[booking.NotificationSendPayload](env.Payload)
	if err != nil {
		s.Log.Warn("bad notification.send payload", zap.Error(err))
		return nil
	}

	n := Notification{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Type:      p.Type,
		Recipient: p.Recipient,
		Subject:   p.Subject,
		Content:   p.Content,
		Status:    "sent",
	}
	if err := s.Repo.Insert(ctx, n); err != nil {
		return err
	}

	s.Log.Info("notification recorded",
		zap.String("recipient", p.Recipient),
		zap.String("subject", p.Subject),
	)
	return s.Bus.Publish(ctx, booking.EventNotificationSent, env.CorrelationID, map[string]string{
		"notification_id": n.ID,
		"recipient":       n.Recipient,
	})
}
