package messaging

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Connect подключается к RabbitMQ, повторяя попытки с постоянной задержкой.
// После подключения разрыв соединения логируется.
func Connect(uri string, maxRetries uint64, retryDelay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	attempt := 0

	operation := func() error {
		attempt++
		c, err := amqp.Dial(uri)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("Failed to connect to RabbitMQ, retrying",
			zap.Error(err),
			zap.Int("retry", attempt),
			zap.Duration("delay", delay),
		)
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), maxRetries)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempt, err)
	}

	logger.Info("Connected to RabbitMQ")
	go func() {
		notifyClose := make(chan *amqp.Error, 1)
		conn.NotifyClose(notifyClose)
		if closeErr := <-notifyClose; closeErr != nil {
			logger.Error("RabbitMQ connection closed", zap.Error(closeErr))
		}
	}()
	return conn, nil
}
