package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/artbazaar-api/internal/metrics"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// MaxRetries число попыток отправки одного письма
const MaxRetries = 3

var ErrEmptyTemplate = errors.New("notification template is required")

// Store очередь писем
type Store interface {
	Insert(ctx context.Context, n *models.EmailNotification) error
	// ListDeliverable возвращает queued и failed письма с retry_count < maxRetries
	ListDeliverable(ctx context.Context, maxRetries, limit int) ([]models.EmailNotification, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Sender доставляет письмо получателю
type Sender interface {
	Send(ctx context.Context, n *models.EmailNotification) error
}

// LogSender пишет письма в лог вместо отправки
type LogSender struct{}

func (LogSender) Send(_ context.Context, n *models.EmailNotification) error {
	slog.Info("Email notification",
		slog.String("id", n.ID.String()),
		slog.String("recipient_id", n.RecipientID.String()),
		slog.String("template", n.Template),
		slog.String("subject", n.Subject))
	return nil
}

// ProcessResult итог обработки очереди
type ProcessResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Service очередь email-уведомлений
type Service struct {
	store  Store
	sender Sender
	now    func() time.Time
}

// NewService создает новый экземпляр Service; без sender письма пишутся в лог
func NewService(store Store, sender Sender) *Service {
	if sender == nil {
		sender = LogSender{}
	}
	return &Service{store: store, sender: sender, now: time.Now}
}

// Enqueue ставит письмо в очередь
func (s *Service) Enqueue(ctx context.Context, recipientID uuid.UUID, template, subject string, payload map[string]any) (*models.EmailNotification, error) {
	if template == "" {
		return nil, ErrEmptyTemplate
	}
	if payload == nil {
		payload = map[string]any{}
	}

	n := &models.EmailNotification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Template:    template,
		Subject:     subject,
		Payload:     payload,
		Status:      models.NotificationQueued,
		CreatedAt:   s.now(),
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return n, nil
}

// ProcessPending отправляет до limit писем из очереди
func (s *Service) ProcessPending(ctx context.Context, limit int) (ProcessResult, error) {
	var result ProcessResult
	if limit <= 0 {
		limit = 100
	}

	pending, err := s.store.ListDeliverable(ctx, MaxRetries, limit)
	if err != nil {
		return result, fmt.Errorf("failed to load notification queue: %w", err)
	}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n := &pending[i]
		if sendErr := s.sender.Send(ctx, n); sendErr != nil {
			result.Failed++
			metrics.EmailsProcessedTotal.WithLabelValues("failed").Inc()
			slog.Warn("Failed to send notification",
				slog.String("id", n.ID.String()),
				slog.Int("attempt", n.RetryCount+1),
				slog.Any("error", sendErr))
			if err := s.store.MarkFailed(ctx, n.ID, sendErr.Error()); err != nil {
				return result, fmt.Errorf("failed to mark notification failed: %w", err)
			}
			continue
		}

		if err := s.store.MarkSent(ctx, n.ID, s.now()); err != nil {
			return result, fmt.Errorf("failed to mark notification sent: %w", err)
		}
		result.Sent++
		metrics.EmailsProcessedTotal.WithLabelValues("sent").Inc()
	}

	return result, nil
}
