package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/repository"
)

// Config represents the outbound reindex queue configuration.
type Config struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	// Ambient pacing settings the pipeline starts with.
	BatchWait     time.Duration `mapstructure:"batch_wait"`
	QueueCap      int           `mapstructure:"queue_cap"`
	BatchSize     int           `mapstructure:"batch_size"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

// reindexMessage is the payload the indexing workers consume.
type reindexMessage struct {
	PostID int64  `json:"post_id"`
	Action string `json:"action"`
}

// KafkaPipeline implements repository.ReplicationPipeline over a Kafka
// topic consumed by the indexing workers. A full-sync cycle stages the id
// set in memory; each send step publishes one settings-sized batch, paced
// by a rate limiter derived from the current settings.
//
// The pipeline is process-wide state: settings are read from the HTTP path
// while a drain runs, so every access goes through the mutex.
type KafkaPipeline struct {
	writer *kafka.Writer
	logger *zap.Logger

	// write is the message send step, replaceable in tests.
	write func(ctx context.Context, msgs ...kafka.Message) error

	mu       sync.Mutex
	settings entity.ReplicationSettings
	limiter  *rate.Limiter
	pending  []int64
	active   bool
	finished bool
}

var _ repository.ReplicationPipeline = (*KafkaPipeline)(nil)

// NewKafkaPipeline creates the outbound reindex queue driver.
func NewKafkaPipeline(config Config, logger *zap.Logger) *KafkaPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		Compression:  kafka.Lz4,
		RequiredAcks: kafka.RequireOne,
	}

	p := &KafkaPipeline{
		writer: writer,
		logger: logger,
		settings: entity.ReplicationSettings{
			BatchWait:     config.BatchWait,
			QueueCap:      config.QueueCap,
			BatchSize:     config.BatchSize,
			RatePerSecond: config.RatePerSecond,
		},
	}
	p.write = writer.WriteMessages
	p.limiter = newLimiter(p.settings)
	return p
}

// IsFullSyncActive reports whether a full-sync cycle has been started and
// not yet drained.
func (p *KafkaPipeline) IsFullSyncActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// IsFullSyncFinished reports whether the last started cycle has drained.
func (p *KafkaPipeline) IsFullSyncFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// StartFullSync stages the identifier set for re-indexing.
func (p *KafkaPipeline) StartFullSync(ctx context.Context, ids []int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active && !p.finished {
		return entity.ErrAlreadyRunning
	}
	if limit := p.settings.QueueCap; limit > 0 && len(ids) > limit {
		return entity.NewDrainError("queue_cap", "identifier set exceeds the outbound queue cap")
	}

	p.pending = append([]int64(nil), ids...)
	p.active = true
	p.finished = false

	p.logger.Info("Full sync staged",
		zap.Int("queued", len(p.pending)),
		zap.String("topic", p.writer.Topic))
	return nil
}

// SendNextBatch publishes one settings-sized batch of reindex messages.
// Once the staging buffer is empty it reports the benign queue-empty
// condition and the cycle is finished.
func (p *KafkaPipeline) SendNextBatch(ctx context.Context) (repository.BatchProgress, error) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.active = false
		p.finished = true
		p.mu.Unlock()
		return repository.BatchProgress{QueueEmpty: true}, nil
	}

	size := p.settings.BatchSize
	if size <= 0 || size > len(p.pending) {
		size = len(p.pending)
	}
	chunk := p.pending[:size]
	wait := p.settings.BatchWait
	limiter := p.limiter
	p.mu.Unlock()

	if err := limiter.WaitN(ctx, size); err != nil {
		return repository.BatchProgress{}, entity.NewDrainError("rate_wait", err.Error())
	}

	msgs := make([]kafka.Message, 0, size)
	for _, id := range chunk {
		payload, err := json.Marshal(reindexMessage{PostID: id, Action: "index"})
		if err != nil {
			return repository.BatchProgress{}, entity.NewDrainError("encode", err.Error())
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(id, 10)),
			Value: payload,
		})
	}

	if err := p.write(ctx, msgs...); err != nil {
		p.logger.Error("Failed to publish reindex batch",
			zap.Int("batch_size", size),
			zap.Error(err))
		return repository.BatchProgress{}, entity.NewDrainError("publish", err.Error())
	}

	p.mu.Lock()
	p.pending = p.pending[size:]
	p.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return repository.BatchProgress{}, entity.NewDrainError("canceled", ctx.Err().Error())
		}
	}

	return repository.BatchProgress{Sent: size}, nil
}

// GetSettings returns the pipeline's current pacing settings.
func (p *KafkaPipeline) GetSettings() entity.ReplicationSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSettings replaces the pacing settings and rebuilds the rate limiter.
func (p *KafkaPipeline) SetSettings(settings entity.ReplicationSettings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
	p.limiter = newLimiter(settings)
}

// Close shuts down the underlying writer.
func (p *KafkaPipeline) Close() error {
	return p.writer.Close()
}

func newLimiter(settings entity.ReplicationSettings) *rate.Limiter {
	if settings.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := settings.BatchSize
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(settings.RatePerSecond), burst)
}
