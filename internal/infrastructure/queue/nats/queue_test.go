package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

func TestDeliverRunsHandler(t *testing.T) {
	q := newQueue(Options{})
	var got domain.DocumentJob
	_, retry := q.deliver(context.Background(), []byte(`{"document_id":"job-1","filename":"april.xlsx","storage_key":"uploads/job-1_april.xlsx","kind":"xls_statement"}`),
		func(_ context.Context, job domain.DocumentJob) error {
			got = job
			return nil
		})
	if retry {
		t.Fatalf("did not expect redelivery")
	}
	if got.DocumentID != "job-1" || got.Kind != domain.SourceKindXLSStatement || got.StorageKey != "uploads/job-1_april.xlsx" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestDeliverRejectsMalformedMessage(t *testing.T) {
	q := newQueue(Options{})
	called := false
	for _, data := range []string{"not json", `{"document_id":"job-1"}`} {
		_, retry := q.deliver(context.Background(), []byte(data), func(context.Context, domain.DocumentJob) error {
			called = true
			return nil
		})
		if retry {
			t.Fatalf("did not expect redelivery for %q", data)
		}
	}
	if called {
		t.Fatalf("handler must not run for malformed messages")
	}
}

func TestDeliverRedeliversTemporaryFailuresUntilExhausted(t *testing.T) {
	q := newQueue(Options{MaxDeliveries: 3})
	temporary := func(context.Context, domain.DocumentJob) error {
		return domain.WrapError(domain.ErrTemporary, "extract", errors.New("provider busy"))
	}

	next, retry := q.deliver(context.Background(), []byte(`{"document_id":"job-1","storage_key":"k"}`), temporary)
	if !retry || next.Attempt != 1 {
		t.Fatalf("expected redelivery with attempt 1, got %+v retry=%v", next, retry)
	}

	next, retry = q.deliver(context.Background(), []byte(`{"document_id":"job-1","storage_key":"k","attempt":1}`), temporary)
	if !retry || next.Attempt != 2 {
		t.Fatalf("expected redelivery with attempt 2, got %+v retry=%v", next, retry)
	}

	if _, retry = q.deliver(context.Background(), []byte(`{"document_id":"job-1","storage_key":"k","attempt":2}`), temporary); retry {
		t.Fatalf("expected attempts to be exhausted")
	}
}

func TestDeliverDoesNotRedeliverPermanentFailures(t *testing.T) {
	q := newQueue(Options{})
	_, retry := q.deliver(context.Background(), []byte(`{"document_id":"job-1","storage_key":"k"}`), func(context.Context, domain.DocumentJob) error {
		return domain.WrapError(domain.ErrMalformedStatement, "parse", errors.New("no header"))
	})
	if retry {
		t.Fatalf("permanent failures must not be redelivered")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must be neither retried nor recorded: %+v", class)
	}
	if class := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrNoServers)); !class.Retryable {
		t.Fatalf("no servers must be retryable: %+v", class)
	}
	if class := classifyNATSError(nats.ErrBadSubject); class.Retryable || !class.RecordFailure {
		t.Fatalf("bad subject must be permanent: %+v", class)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrConnectionClosed); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(nats.ErrBadSubject); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("bad subject must stay permanent, got %v", err)
	}
	if wrapTemporaryIfNeeded(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
