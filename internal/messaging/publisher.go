// Package messaging - публикация событий сессии edge-сервиса в RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EventPublisher публикует события сессии.
type EventPublisher interface {
	Publish(ctx context.Context, event SessionEvent) error
	Close() error
}

// publishTimeout - таймаут на одну публикацию.
const publishTimeout = 5 * time.Second

// amqpChannel - часть *amqp.Channel, которой пользуется паблишер.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// --- Реализация для RabbitMQ ---
type rabbitMQPublisher struct {
	channel   amqpChannel
	queueName string
	appID     string
	logger    *zap.Logger
}

// NewRabbitMQPublisher открывает канал и объявляет durable-очередь.
func NewRabbitMQPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("session event publisher: failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("session event publisher: failed to declare queue '%s': %w", queueName, err)
	}

	logger.Info("RabbitMQ session event publisher initialized", zap.String("queue", queueName))
	return newRabbitMQPublisher(ch, queueName, logger), nil
}

func newRabbitMQPublisher(ch amqpChannel, queueName string, logger *zap.Logger) *rabbitMQPublisher {
	return &rabbitMQPublisher{
		channel:   ch,
		queueName: queueName,
		appID:     "blog-web",
		logger:    logger.Named("session_event_publisher"),
	}
}

func (p *rabbitMQPublisher) Publish(ctx context.Context, event SessionEvent) error {
	if p.channel == nil {
		p.logger.Error("RabbitMQ channel is not initialized")
		return errors.New("rabbitmq channel is not initialized")
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal session event", zap.String("type", string(event.Type)), zap.Error(err))
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange (default)
		p.queueName, // routing key = имя очереди
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Type:         string(event.Type),
			Body:         body,
			Timestamp:    event.OccurredAt,
			AppId:        p.appID,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish session event",
			zap.String("queue", p.queueName),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to publish to queue %s: %w", p.queueName, err)
	}

	p.logger.Debug("Session event published",
		zap.String("queue", p.queueName),
		zap.String("type", string(event.Type)),
		zap.Uint64("userID", event.UserID),
	)
	return nil
}

// Close закрывает канал RabbitMQ. Соединение закрывает владелец.
func (p *rabbitMQPublisher) Close() error {
	if p.channel == nil {
		return nil
	}
	p.logger.Info("Closing RabbitMQ session event publisher channel")
	return p.channel.Close()
}

// --- Заглушка, когда RabbitMQ не настроен ---
type nopPublisher struct{}

// NewNopPublisher - EventPublisher, который ничего не делает.
func NewNopPublisher() EventPublisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, SessionEvent) error { return nil }
func (nopPublisher) Close() error                                 { return nil }

// PublishAsync публикует событие в фоне: запрос пользователя не ждёт брокер.
// Ошибка только логируется.
func PublishAsync(p EventPublisher, event SessionEvent, logger *zap.Logger) {
	if p == nil {
		return
	}
	go func() {
		if err := p.Publish(context.Background(), event); err != nil && logger != nil {
			logger.Warn("Session event dropped", zap.String("type", string(event.Type)), zap.Error(err))
		}
	}()
}
