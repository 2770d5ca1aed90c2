// Package audit publishes reward-transaction and game-lifecycle events
// to Kafka for downstream consumption (reconciliation, analytics),
// adapted from the slot-game-module events/kafka Producer's
// worker-pool pattern: a bounded job channel drained by a fixed pool
// of goroutines, each write isolated from the others.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"luckengine/internal/domain"
	"luckengine/internal/logging"

	kafka "github.com/segmentio/kafka-go"
)

const defaultWorkerNum = 5

// Topics published by the engine.
const (
	TopicRewardTransactions = "luckengine.reward-transactions"
	TopicGameLifecycle      = "luckengine.game-lifecycle"
)

// RewardEvent mirrors one committed RewardTransaction for audit
// consumers.
type RewardEvent struct {
	TransactionID string    `json:"transactionId"`
	BatchID       string    `json:"batchId"`
	GameID        string    `json:"gameId"`
	Username      string    `json:"username"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LifecycleEvent records a game status transition.
type LifecycleEvent struct {
	GameID    string    `json:"gameId"`
	GameCode  string    `json:"gameCode"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes audit events via a worker-pool-backed Kafka
// writer. A nil Publisher (Brokers unconfigured) is a no-op, matching
// the optional-Kafka convenience constructor this is grounded on.
type Publisher struct {
	writer    *kafka.Writer
	logger    logging.Logger
	jobs      chan kafka.Message
	workerNum int
	wg        sync.WaitGroup
}

// Config configures the Kafka writer and worker pool.
type Config struct {
	Brokers   []string
	WorkerNum int
}

// New constructs a Publisher. If cfg.Brokers is empty, it returns nil,
// nil: callers should treat a nil *Publisher as "audit disabled".
func New(cfg Config, logger logging.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		Async:        false,
	}
	workerNum := cfg.WorkerNum
	if workerNum <= 0 {
		workerNum = defaultWorkerNum
	}
	p := &Publisher{
		writer:    writer,
		logger:    logging.WithComponent(logger, "audit-publisher"),
		jobs:      make(chan kafka.Message, 100),
		workerNum: workerNum,
	}
	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p, nil
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for msg := range p.jobs {
		func() {
			defer p.recover()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.logger.Error().Err(err).Str("topic", msg.Topic).Str("key", string(msg.Key)).
					Msg("failed to publish audit event")
			}
		}()
	}
}

// PublishReward enqueues a RewardEvent for TopicRewardTransactions,
// keyed by batchId. A nil Publisher silently drops the event.
func (p *Publisher) PublishReward(event RewardEvent) {
	if p == nil {
		return
	}
	p.publish(TopicRewardTransactions, event.BatchID, event)
}

// PublishLifecycle enqueues a LifecycleEvent for TopicGameLifecycle,
// keyed by gameId. A nil Publisher silently drops the event.
func (p *Publisher) PublishLifecycle(event LifecycleEvent) {
	if p == nil {
		return
	}
	p.publish(TopicGameLifecycle, event.GameID, event)
}

// PublishRewardTxn converts a committed RewardTransaction into a
// RewardEvent and publishes it, adapting reward.Processor's
// AuditPublisher interface to the event shape audit consumers expect.
func (p *Publisher) PublishRewardTxn(txn *domain.RewardTransaction) {
	if p == nil {
		return
	}
	event := RewardEvent{
		TransactionID: txn.TransactionID,
		BatchID:       txn.BatchID,
		GameID:        txn.GameID,
		Username:      txn.Username,
		Status:        string(txn.Status),
		CreatedAt:     txn.CreatedAt,
	}
	if txn.Amount != nil {
		event.Amount = txn.Amount.String()
	}
	p.PublishReward(event)
}

func (p *Publisher) publish(topic, key string, value interface{}) {
	payload, err := json.Marshal(value)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal audit event")
		return
	}
	p.jobs <- kafka.Message{Topic: topic, Key: []byte(key), Value: payload, Time: time.Now()}
}

// Close drains in-flight publishes and closes the underlying writer.
// Safe to call on a nil Publisher.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	close(p.jobs)
	p.wg.Wait()
	return p.writer.Close()
}

func (p *Publisher) recover() {
	if r := recover(); r != nil {
		p.logger.Error().
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", string(debug.Stack())).
			Msg("panic recovered in audit worker")
	}
}
