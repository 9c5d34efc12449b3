package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/visual-compare/internal/comparator"
	"github.com/example/visual-compare/internal/logging"
	"github.com/example/visual-compare/internal/repository"
)

const resultTTL = 15 * time.Minute

// Runner performs one comparison. *comparator.Comparator satisfies it.
type Runner interface {
	Run(ctx context.Context, req comparator.ComparisonRequest) (*comparator.Result, error)
}

// ComparisonRepository is the persistence needed by the use case.
type ComparisonRepository interface {
	SaveLog(ctx context.Context, log *repository.ComparisonLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.ComparisonLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Outcome is what the service reports for one invocation.
type Outcome struct {
	RequestID  string    `json:"request_id"`
	Result     string    `json:"result"`
	Failed     bool      `json:"failed"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ComparisonUseCase runs comparisons and records their outcomes.
type ComparisonUseCase struct {
	repo           ComparisonRepository
	cache          Cache
	runner         Runner
	logger         *zap.Logger
	now            func() time.Time
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewComparisonUseCase(repo ComparisonRepository, cache Cache, runner Runner, logger *zap.Logger) *ComparisonUseCase {
	return &ComparisonUseCase{
		repo:           repo,
		cache:          cache,
		runner:         runner,
		logger:         logger.Named("comparison_usecase"),
		now:            time.Now,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// CompareImages runs one comparison. Soft failures are part of the Outcome;
// only local errors (missing image, persistence) are returned as errors.
func (uc *ComparisonUseCase) CompareImages(ctx context.Context, req comparator.ComparisonRequest) (*Outcome, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.compare_images", requestID)

	started := uc.now()
	result, err := uc.runner.Run(ctx, req)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.compare_images", requestID, err)
		opLogger.Warn("comparison rejected", zap.Error(err))
		return nil, wrapped
	}
	latency := uc.now().Sub(started)

	outcome := &Outcome{
		RequestID:  requestID,
		Result:     result.Text,
		Failed:     result.Failed,
		StatusCode: result.StatusCode,
		LatencyMs:  latency.Milliseconds(),
		CreatedAt:  started.UTC(),
	}
	opLogger.Info("comparison finished",
		zap.String("endpoint", req.EndpointURL),
		zap.Bool("failed", result.Failed),
		zap.Int("status", result.StatusCode),
		zap.Duration("latency", latency),
	)

	log := &repository.ComparisonLog{
		RequestID:   requestID,
		Image1Path:  result.Images[0].Path,
		Image2Path:  result.Images[1].Path,
		Image1SHA1:  result.Images[0].SHA1,
		Image2SHA1:  result.Images[1].SHA1,
		Image1MIME:  result.Images[0].MIME,
		Image2MIME:  result.Images[1].MIME,
		EndpointURL: req.EndpointURL,
		Success:     !result.Failed,
		StatusCode:  result.StatusCode,
		Result:      result.Text,
		LatencyMs:   outcome.LatencyMs,
		CreatedAt:   outcome.CreatedAt,
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Error("failed to persist comparison log", zap.Error(err))
		return nil, err
	}

	serialized, err := json.Marshal(outcome)
	if err != nil {
		return nil, logging.NewOperationError("usecase.serialize_outcome", requestID, err)
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, resultKey(requestID), string(serialized), resultTTL)
	}); err != nil {
		// the log is already stored; GetResult falls back to it
		opLogger.Warn("failed to cache comparison outcome", zap.Error(err))
	}

	return outcome, nil
}

// GetResult returns a previous outcome from Redis, or from the repository
// when the cache has no usable entry.
func (uc *ComparisonUseCase) GetResult(ctx context.Context, requestID string) (*Outcome, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", resultKey(requestID))
	if err == nil {
		var outcome Outcome
		decodeErr := json.Unmarshal([]byte(cached), &outcome)
		if decodeErr == nil {
			return &outcome, nil
		}
		opLogger.Warn("failed to decode cached outcome", zap.Error(decodeErr))
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	log, err := uc.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		RequestID:  log.RequestID,
		Result:     log.Result,
		Failed:     !log.Success,
		StatusCode: log.StatusCode,
		LatencyMs:  log.LatencyMs,
		CreatedAt:  log.CreatedAt,
	}, nil
}

func resultKey(requestID string) string {
	return fmt.Sprintf("comparison:%s", requestID)
}

func (uc *ComparisonUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	attempts := uc.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return err
		}
		if !isTransientError(err) || attempt == attempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *ComparisonUseCase) withRedisGet(ctx context.Context, requestID, operation, key string) (string, error) {
	var value string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		v, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
