package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/resilience"
)

const (
	DefaultDocumentSubject = "documents.queued"
	DefaultBatchSubject    = "ledger.batch.flushed"
	workerGroup            = "expense-workers"
)

// Queue carries document jobs to workers and batch notifications to
// downstream consumers over core NATS. Core NATS has no redelivery, so a job
// whose handler fails with a temporary error is published again with its
// attempt counter raised.
type Queue struct {
	conn            *nats.Conn
	subject         string
	batchSubject    string
	maxDeliveries   int
	redeliveryDelay time.Duration
	executor        *resilience.Executor
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

type Options struct {
	DocumentSubject      string
	BatchSubject         string
	MaxDeliveries        int
	RedeliveryDelay      time.Duration
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func (o Options) withDefaults() Options {
	if o.DocumentSubject == "" {
		o.DocumentSubject = DefaultDocumentSubject
	}
	if o.BatchSubject == "" {
		o.BatchSubject = DefaultBatchSubject
	}
	if o.MaxDeliveries <= 0 {
		o.MaxDeliveries = 3
	}
	if o.RedeliveryDelay <= 0 {
		o.RedeliveryDelay = 5 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	return o
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	options = options.withDefaults()
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("ai-expense-analyzer"),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	q := newQueue(options)
	q.conn = conn
	return q, nil
}

func newQueue(options Options) *Queue {
	options = options.withDefaults()
	return &Queue{
		subject:         options.DocumentSubject,
		batchSubject:    options.BatchSubject,
		maxDeliveries:   options.MaxDeliveries,
		redeliveryDelay: options.RedeliveryDelay,
		executor:        options.ResilienceExecutor,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentQueued(ctx context.Context, job domain.DocumentJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal document job: %w", err)
	}
	return q.publish(ctx, q.subject, payload)
}

func (q *Queue) PublishBatchFlushed(ctx context.Context, report domain.BatchReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal batch report: %w", err)
	}
	return q.publish(ctx, q.batchSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeDocumentQueued blocks until ctx is done, handing each job to
// handler. Workers share one queue group so a job runs once.
func (q *Queue) SubscribeDocumentQueued(ctx context.Context, handler func(context.Context, domain.DocumentJob) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		if next, ok := q.deliver(ctx, msg.Data, handler); ok {
			q.scheduleRedelivery(ctx, next)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// deliver decodes one message and runs handler. It returns the job to
// publish again when the failure is temporary and attempts remain.
func (q *Queue) deliver(ctx context.Context, data []byte, handler func(context.Context, domain.DocumentJob) error) (domain.DocumentJob, bool) {
	job, err := decodeJob(data)
	if err != nil {
		slog.Warn("queue_message_rejected", "subject", q.subject, "error", err)
		return domain.DocumentJob{}, false
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = handler(handlerCtx, job)
	if err == nil {
		return domain.DocumentJob{}, false
	}

	if !domain.IsKind(err, domain.ErrTemporary) {
		slog.Error("document_job_failed", "job_id", job.DocumentID, "attempt", job.Attempt+1, "error", err)
		return domain.DocumentJob{}, false
	}
	if job.Attempt+1 >= q.maxDeliveries {
		slog.Error("document_job_exhausted", "job_id", job.DocumentID, "attempts", job.Attempt+1, "error", err)
		return domain.DocumentJob{}, false
	}

	slog.Warn("document_job_redelivery", "job_id", job.DocumentID, "attempt", job.Attempt+1, "error", err)
	job.Attempt++
	return job, true
}

func (q *Queue) scheduleRedelivery(ctx context.Context, job domain.DocumentJob) {
	time.AfterFunc(q.redeliveryDelay*time.Duration(job.Attempt), func() {
		if ctx.Err() != nil {
			slog.Warn("document_job_redelivery_dropped", "job_id", job.DocumentID, "reason", ctx.Err())
			return
		}
		if err := q.PublishDocumentQueued(ctx, job); err != nil {
			slog.Error("document_job_redelivery_failed", "job_id", job.DocumentID, "error", err)
		}
	})
}

func decodeJob(data []byte) (domain.DocumentJob, error) {
	var job domain.DocumentJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.DocumentJob{}, fmt.Errorf("decode document job: %w", err)
	}
	if job.DocumentID == "" || job.StorageKey == "" {
		return domain.DocumentJob{}, errors.New("document job lacks document_id or storage_key")
	}
	return job, nil
}
