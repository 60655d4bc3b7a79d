package worker_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agora.dev/courier/internal/model"
	"agora.dev/courier/internal/queue"
	"agora.dev/courier/internal/webhook"
	"agora.dev/courier/internal/worker"
)

const (
	testSignatureHeader = "X-Courier-Signature"
	testSecret          = "s3cret"
)

func registerEndpoint(t *testing.T, store webhook.Store, url string) {
	t.Helper()
	err := store.Upsert(context.Background(), &model.WebhookRegistration{
		AgentID: "bob",
		URL:     url,
		Secret:  testSecret,
		Events:  []string{model.WebhookEventMessage, model.WebhookEventMention},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func testJob(payload string) queue.Delivery {
	return queue.Delivery{
		ID:         "1",
		DeliveryID: "d-123",
		AgentID:    "bob",
		EventType:  model.WebhookEventMessage,
		Payload:    []byte(payload),
		Attempt:    1,
	}
}

func TestDeliverPostsSignedRequest(t *testing.T) {
	type captured struct {
		body      []byte
		signature string
		event     string
		delivery  string
		mediaType string
	}
	got := make(chan captured, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{
			body:      body,
			signature: r.Header.Get(testSignatureHeader),
			event:     r.Header.Get("X-Courier-Event"),
			delivery:  r.Header.Get("X-Courier-Delivery"),
			mediaType: r.Header.Get("Content-Type"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := webhook.NewMemoryStore()
	registerEndpoint(t, store, srv.URL)
	d := worker.NewDeliverer(store, worker.DelivererConfig{
		SignatureHeader:  testSignatureHeader,
		FailureThreshold: 5,
	})

	payload := `{"id":"d-123","event":"message"}`
	if err := d.Deliver(context.Background(), testJob(payload)); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	req := <-got
	if string(req.body) != payload {
		t.Fatalf("receiver got %q, want the enqueued payload verbatim", req.body)
	}
	if !webhook.Verify(testSecret, req.body, req.signature) {
		t.Fatalf("signature %q does not verify over the received body", req.signature)
	}
	if req.event != model.WebhookEventMessage || req.delivery != "d-123" {
		t.Fatalf("event/delivery headers wrong: %q %q", req.event, req.delivery)
	}
	if req.mediaType != "application/json" {
		t.Fatalf("content type %q", req.mediaType)
	}

	reg, _ := store.Get(context.Background(), "bob")
	if reg.LastSuccessAt == nil || reg.ConsecutiveFailures != 0 {
		t.Fatalf("success not recorded: %+v", reg)
	}
}

func TestDeliverCountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := webhook.NewMemoryStore()
	registerEndpoint(t, store, srv.URL)
	d := worker.NewDeliverer(store, worker.DelivererConfig{
		SignatureHeader:  testSignatureHeader,
		FailureThreshold: 5,
	})

	if err := d.Deliver(context.Background(), testJob(`{}`)); err == nil {
		t.Fatal("5xx response should be an error")
	}

	reg, _ := store.Get(context.Background(), "bob")
	if reg.ConsecutiveFailures != 1 || !reg.Enabled {
		t.Fatalf("failure not counted: %+v", reg)
	}
}

func TestDeliverDisablesAfterThreshold(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := webhook.NewMemoryStore()
	registerEndpoint(t, store, srv.URL)
	d := worker.NewDeliverer(store, worker.DelivererConfig{
		SignatureHeader:  testSignatureHeader,
		FailureThreshold: 5,
	})

	for i := 0; i < 5; i++ {
		if err := d.Deliver(context.Background(), testJob(`{}`)); err == nil {
			t.Fatalf("attempt %d should fail", i+1)
		}
	}

	reg, _ := store.Get(context.Background(), "bob")
	if reg.Enabled {
		t.Fatalf("registration still enabled after 5 failures: %+v", reg)
	}

	// A disabled registration drops the job without touching the network.
	if err := d.Deliver(context.Background(), testJob(`{}`)); err != nil {
		t.Fatalf("disabled delivery should ack quietly: %v", err)
	}
	if hits != 5 {
		t.Fatalf("receiver hit %d times, want 5", hits)
	}
}

func TestDeliverDropsStaleJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("receiver should not be called")
	}))
	defer srv.Close()

	store := webhook.NewMemoryStore()
	d := worker.NewDeliverer(store, worker.DelivererConfig{
		SignatureHeader:  testSignatureHeader,
		FailureThreshold: 5,
	})

	// Registration deleted after enqueue.
	if err := d.Deliver(context.Background(), testJob(`{}`)); err != nil {
		t.Fatalf("gone registration: %v", err)
	}

	// Registration unsubscribed from the event after enqueue.
	registerEndpoint(t, store, srv.URL)
	job := testJob(`{}`)
	job.EventType = "something-else"
	if err := d.Deliver(context.Background(), job); err != nil {
		t.Fatalf("unsubscribed event: %v", err)
	}
}

func TestWorkerAcksSuccessfulDeliveries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := webhook.NewMemoryStore()
	registerEndpoint(t, store, srv.URL)

	q := queue.NewMemoryQueue(16)
	d := worker.NewDeliverer(store, worker.DelivererConfig{
		SignatureHeader:  testSignatureHeader,
		FailureThreshold: 5,
	})
	w := worker.New(q, d, worker.Config{MaxAttempts: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = w.Run(ctx); close(done) }()

	if err := q.Enqueue(ctx, queue.Delivery{
		DeliveryID: "d-1",
		AgentID:    "bob",
		EventType:  model.WebhookEventMessage,
		Payload:    []byte(`{}`),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		reg, _ := store.Get(ctx, "bob")
		if reg.LastSuccessAt != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("delivery never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if dlq := q.DLQ(); len(dlq) != 0 {
		t.Fatalf("successful delivery dead-lettered: %v", dlq)
	}
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := webhook.NewMemoryStore()
	registerEndpoint(t, store, srv.URL)

	q := queue.NewMemoryQueue(16)
	d := worker.NewDeliverer(store, worker.DelivererConfig{
		SignatureHeader:  testSignatureHeader,
		FailureThreshold: 50,
	})
	w := worker.New(q, d, worker.Config{MaxAttempts: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = w.Run(ctx); close(done) }()

	_ = q.Enqueue(ctx, queue.Delivery{
		DeliveryID: "d-1",
		AgentID:    "bob",
		EventType:  model.WebhookEventMessage,
		Payload:    []byte(`{}`),
	})

	deadline := time.After(3 * time.Second)
	for len(q.DLQ()) == 0 {
		select {
		case <-deadline:
			t.Fatal("delivery never reached the DLQ")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	dlq := q.DLQ()
	if len(dlq) != 1 || dlq[0].DeliveryID != "d-1" || dlq[0].Attempt != 2 {
		t.Fatalf("unexpected DLQ contents: %+v", dlq)
	}
	if hits != 2 {
		t.Fatalf("receiver hit %d times, want 2", hits)
	}
}
