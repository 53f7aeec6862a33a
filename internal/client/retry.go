package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// retryableStatuses - статусы, после которых идемпотентный запрос повторяется.
// 401 сюда не входит: это работа APIClient.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodTrace:   true,
}

// RetryTransport повторяет идемпотентные запросы при сетевых ошибках и
// временных 5xx с экспоненциальной задержкой.
type RetryTransport struct {
	Base            http.RoundTripper
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *zap.Logger
}

// NewRetryTransport - транспорт с настройками по умолчанию: 2 повтора, 300ms..3s.
func NewRetryTransport(base http.RoundTripper, logger *zap.Logger) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryTransport{
		Base:            base,
		MaxRetries:      2,
		InitialInterval: 300 * time.Millisecond,
		MaxInterval:     3 * time.Second,
		Logger:          logger.Named("RetryTransport"),
	}
}

func (t *RetryTransport) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.InitialInterval
	b.MaxInterval = t.MaxInterval
	b.MaxElapsedTime = 0 // ограничение - число попыток и таймаут клиента
	return backoff.WithContext(backoff.WithMaxRetries(b, t.MaxRetries), ctx)
}

// RoundTrip реализует http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.canRetry(req) {
		return t.Base.RoundTrip(req)
	}

	ctx := req.Context()
	b := t.newBackOff(ctx)
	b.Reset()

	attemptReq := req
	for attempt := 1; ; attempt++ {
		resp, err := t.Base.RoundTrip(attemptReq)
		if !shouldRetry(ctx, resp, err) {
			return resp, err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return resp, err
		}

		log := t.Logger.With(zap.String("method", req.Method), zap.String("url", req.URL.String()), zap.Int("attempt", attempt), zap.Duration("wait", wait))
		if err != nil {
			log.Debug("Retrying request after transport error", zap.Error(err))
		} else {
			log.Debug("Retrying request after retryable status", zap.Int("status", resp.StatusCode))
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attemptReq, err = rewind(req)
		if err != nil {
			return nil, err
		}
	}
}

func (t *RetryTransport) canRetry(req *http.Request) bool {
	if t.MaxRetries == 0 || !idempotentMethods[req.Method] {
		return false
	}
	// Тело без GetBody повторить нельзя
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func shouldRetry(ctx context.Context, resp *http.Response, err error) bool {
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return false
		}
		return true
	}
	return retryableStatuses[resp.StatusCode]
}

// rewind - копия запроса со свежим телом.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}
