package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"livechat-backend/internal/model"
	"livechat-backend/internal/queue"
)

type memoryRepository struct {
	mu        sync.Mutex
	webhooks  map[string]model.WebhookItem
	success   map[string]int
	failure   map[string]int
	lastErr   map[string]model.WebhookError
	triggered map[string]string
}

func newMemoryRepository(webhooks ...model.WebhookItem) *memoryRepository {
	repo := &memoryRepository{
		webhooks:  make(map[string]model.WebhookItem),
		success:   make(map[string]int),
		failure:   make(map[string]int),
		lastErr:   make(map[string]model.WebhookError),
		triggered: make(map[string]string),
	}
	for _, webhook := range webhooks {
		repo.webhooks[webhook.WebhookID] = webhook
	}
	return repo
}

func (r *memoryRepository) CreateWebhook(_ context.Context, webhook model.WebhookItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[webhook.WebhookID] = webhook
	return nil
}

func (r *memoryRepository) GetWebhook(_ context.Context, webhookID string) (model.WebhookItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	webhook, ok := r.webhooks[webhookID]
	if !ok {
		return model.WebhookItem{}, ErrNotFound
	}
	return webhook, nil
}

func (r *memoryRepository) ListWebhooks(_ context.Context) ([]model.WebhookItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.WebhookItem, 0, len(r.webhooks))
	for _, webhook := range r.webhooks {
		out = append(out, webhook)
	}
	return out, nil
}

func (r *memoryRepository) ListActiveByEvent(_ context.Context, event string) ([]model.WebhookItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.WebhookItem
	for _, webhook := range r.webhooks {
		if webhook.IsActive && webhook.SubscribesTo(event) {
			out = append(out, webhook)
		}
	}
	return out, nil
}

func (r *memoryRepository) DeleteWebhook(_ context.Context, webhookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.webhooks, webhookID)
	return nil
}

func (r *memoryRepository) RecordSuccess(_ context.Context, webhookID, triggeredAt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success[webhookID]++
	r.triggered[webhookID] = triggeredAt
	return nil
}

func (r *memoryRepository) RecordFailure(_ context.Context, webhookID string, lastError model.WebhookError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure[webhookID]++
	r.lastErr[webhookID] = lastError
	r.triggered[webhookID] = lastError.Timestamp
	return nil
}

// syncScheduler runs jobs inline and records requested delays, so retry
// timing is assertable without sleeping.
type syncScheduler struct {
	delays []time.Duration
}

func (s *syncScheduler) EnqueueJob(job queue.Job) {
	if err := job.Fn(); err != nil && job.Errc != nil {
		job.Errc <- err
	}
}

func (s *syncScheduler) EnqueueAfter(delay time.Duration, job queue.Job) {
	s.delays = append(s.delays, delay)
	s.EnqueueJob(job)
}

type stubRequest struct {
	url       string
	body      []byte
	signature string
	headers   http.Header
}

type stubClient struct {
	mu       sync.Mutex
	requests []stubRequest
	statuses []int
	err      error
}

func (c *stubClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, _ := io.ReadAll(req.Body)
	c.requests = append(c.requests, stubRequest{
		url:       req.URL.String(),
		body:      body,
		signature: req.Header.Get(signatureHeader),
		headers:   req.Header.Clone(),
	})

	if c.err != nil {
		return nil, c.err
	}

	status := http.StatusOK
	if len(c.statuses) > 0 {
		status = c.statuses[0]
		c.statuses = c.statuses[1:]
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func subscription(id string, events []string, maxRetries int) model.WebhookItem {
	return model.WebhookItem{
		WebhookID: id,
		Name:      id,
		URL:       "https://hooks.example.com/" + id,
		Events:    events,
		IsActive:  true,
		Retry:     model.RetryPolicy{MaxRetries: maxRetries, RetryDelaySeconds: 1},
	}
}

func newTestService(repo Repository, client Doer) (*Service, *syncScheduler) {
	scheduler := &syncScheduler{}
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewWithRepository(repo, client, scheduler, time.Second, func() time.Time { return clock })
	return svc, scheduler
}

func TestTriggerDeliversEnvelope(t *testing.T) {
	hook := subscription("wh-1", []string{model.EventConversationNew}, 3)
	hook.Headers = map[string]string{"X-Team": "support"}
	repo := newMemoryRepository(hook)
	client := &stubClient{}
	svc, _ := newTestService(repo, client)

	svc.Trigger(model.EventConversationNew, map[string]string{"conversationId": "conv-1"})

	if len(client.requests) != 1 {
		t.Fatalf("expected one delivery, got %d", len(client.requests))
	}
	req := client.requests[0]

	var envelope Envelope
	if err := json.Unmarshal(req.body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Event != model.EventConversationNew {
		t.Errorf("expected event in envelope, got %s", envelope.Event)
	}
	if envelope.Timestamp == "" {
		t.Error("expected timestamp in envelope")
	}
	if req.headers.Get("Content-Type") != "application/json" {
		t.Errorf("expected json content type, got %s", req.headers.Get("Content-Type"))
	}
	if req.headers.Get("X-Team") != "support" {
		t.Error("expected subscriber headers merged into the request")
	}
	if req.signature != "" {
		t.Error("no secret set, signature header must be absent")
	}
	if repo.success["wh-1"] != 1 {
		t.Errorf("expected one success record, got %d", repo.success["wh-1"])
	}
}

func TestTriggerSignsWhenSecretSet(t *testing.T) {
	hook := subscription("wh-1", []string{model.EventMessageNew}, 3)
	hook.Secret = "s3cret"
	repo := newMemoryRepository(hook)
	client := &stubClient{}
	svc, _ := newTestService(repo, client)

	svc.Trigger(model.EventMessageNew, map[string]string{"messageId": "msg-1"})

	if len(client.requests) != 1 {
		t.Fatalf("expected one delivery, got %d", len(client.requests))
	}
	req := client.requests[0]

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(req.body)
	want := hex.EncodeToString(mac.Sum(nil))
	if req.signature != want {
		t.Errorf("signature mismatch: got %s want %s", req.signature, want)
	}
}

func TestTriggerFiltersByEventAndActivity(t *testing.T) {
	matching := subscription("wh-match", []string{model.EventConversationResolved}, 3)
	other := subscription("wh-other", []string{model.EventMessageNew}, 3)
	inactive := subscription("wh-off", []string{model.EventConversationResolved}, 3)
	inactive.IsActive = false
	repo := newMemoryRepository(matching, other, inactive)
	client := &stubClient{}
	svc, _ := newTestService(repo, client)

	svc.Trigger(model.EventConversationResolved, nil)

	if len(client.requests) != 1 {
		t.Fatalf("expected exactly the matching subscription, got %d requests", len(client.requests))
	}
	if !strings.HasSuffix(client.requests[0].url, "wh-match") {
		t.Errorf("delivered to wrong subscription: %s", client.requests[0].url)
	}
}

func TestRetryExhaustionAttemptsAndDelays(t *testing.T) {
	hook := subscription("wh-1", []string{model.EventConversationNew}, 3)
	hook.Retry.RetryDelaySeconds = 2
	repo := newMemoryRepository(hook)
	client := &stubClient{err: errors.New("connection refused")}
	svc, scheduler := newTestService(repo, client)

	svc.Trigger(model.EventConversationNew, nil)

	if len(client.requests) != 4 {
		t.Fatalf("expected maxRetries+1 attempts, got %d", len(client.requests))
	}
	wantDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(scheduler.delays) != len(wantDelays) {
		t.Fatalf("expected %d scheduled retries, got %d", len(wantDelays), len(scheduler.delays))
	}
	for i, want := range wantDelays {
		if scheduler.delays[i] != want {
			t.Errorf("retry %d delay = %s, want %s", i, scheduler.delays[i], want)
		}
	}
	if repo.failure["wh-1"] != 1 {
		t.Errorf("expected a single failure record per sequence, got %d", repo.failure["wh-1"])
	}
	if repo.success["wh-1"] != 0 {
		t.Errorf("expected no success record, got %d", repo.success["wh-1"])
	}
	if repo.lastErr["wh-1"].Message == "" {
		t.Error("expected lastError recorded on exhaustion")
	}
	if repo.triggered["wh-1"] != "2025-03-01T12:00:00Z" {
		t.Errorf("expected lastTriggeredAt recorded on exhaustion, got %q", repo.triggered["wh-1"])
	}
}

func TestRetryRecoversMidSequence(t *testing.T) {
	hook := subscription("wh-1", []string{model.EventConversationNew}, 3)
	repo := newMemoryRepository(hook)
	client := &stubClient{statuses: []int{500, 502, 200}}
	svc, scheduler := newTestService(repo, client)

	svc.Trigger(model.EventConversationNew, nil)

	if len(client.requests) != 3 {
		t.Fatalf("expected delivery to stop on first success, got %d attempts", len(client.requests))
	}
	if len(scheduler.delays) != 2 {
		t.Errorf("expected two scheduled retries, got %d", len(scheduler.delays))
	}
	if repo.success["wh-1"] != 1 || repo.failure["wh-1"] != 0 {
		t.Errorf("expected one success and no failures, got %d/%d", repo.success["wh-1"], repo.failure["wh-1"])
	}
}

func TestSameBytesEveryAttempt(t *testing.T) {
	hook := subscription("wh-1", []string{model.EventConversationNew}, 2)
	hook.Secret = "s3cret"
	repo := newMemoryRepository(hook)
	client := &stubClient{statuses: []int{500, 500, 500}}
	svc, _ := newTestService(repo, client)

	svc.Trigger(model.EventConversationNew, map[string]string{"conversationId": "conv-1"})

	if len(client.requests) != 3 {
		t.Fatalf("expected three attempts, got %d", len(client.requests))
	}
	first := client.requests[0]
	for i, req := range client.requests[1:] {
		if string(req.body) != string(first.body) {
			t.Errorf("attempt %d body differs from the first", i+2)
		}
		if req.signature != first.signature {
			t.Errorf("attempt %d signature differs from the first", i+2)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepository()
	svc, _ := newTestService(repo, &stubClient{})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateWebhookParams{URL: "https://x.example.com", Events: []string{model.EventMessageNew}})
	if err == nil {
		t.Error("expected missing name to be rejected")
	}
	_, err = svc.Create(ctx, CreateWebhookParams{Name: "x", URL: "not a url", Events: []string{model.EventMessageNew}})
	if err == nil {
		t.Error("expected bad url to be rejected")
	}
	_, err = svc.Create(ctx, CreateWebhookParams{Name: "x", URL: "https://x.example.com", Events: []string{"conversation.teleported"}})
	if err == nil {
		t.Error("expected unknown event to be rejected")
	}

	webhook, err := svc.Create(ctx, CreateWebhookParams{
		Name:   "crm sync",
		URL:    "https://x.example.com/hook",
		Events: []string{model.EventConversationNew},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !webhook.IsActive {
		t.Error("expected new webhook active")
	}
	if webhook.Retry.MaxRetries != 3 {
		t.Errorf("expected default maxRetries 3, got %d", webhook.Retry.MaxRetries)
	}
}

func TestCreateUsesConfiguredRetryBudget(t *testing.T) {
	repo := newMemoryRepository()
	svc, _ := newTestService(repo, &stubClient{})
	svc.maxRetries = 5

	webhook, err := svc.Create(context.Background(), CreateWebhookParams{
		Name:   "crm sync",
		URL:    "https://x.example.com/hook",
		Events: []string{model.EventConversationNew},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if webhook.Retry.MaxRetries != 5 {
		t.Errorf("expected configured maxRetries 5, got %d", webhook.Retry.MaxRetries)
	}

	webhook, err = svc.Create(context.Background(), CreateWebhookParams{
		Name:   "explicit",
		URL:    "https://x.example.com/hook",
		Events: []string{model.EventConversationNew},
		Retry:  model.RetryPolicy{MaxRetries: 1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if webhook.Retry.MaxRetries != 1 {
		t.Errorf("explicit maxRetries overridden, got %d", webhook.Retry.MaxRetries)
	}
}

func TestTestDeliveryIgnoresEventFilter(t *testing.T) {
	hook := subscription("wh-1", []string{model.EventConversationNew}, 1)
	repo := newMemoryRepository(hook)
	client := &stubClient{}
	svc, _ := newTestService(repo, client)

	if err := svc.Test(context.Background(), "wh-1"); err != nil {
		t.Fatalf("test delivery: %v", err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected one test delivery, got %d", len(client.requests))
	}

	var envelope Envelope
	if err := json.Unmarshal(client.requests[0].body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Event != model.EventWebhookTest {
		t.Errorf("expected webhook.test event, got %s", envelope.Event)
	}

	if err := svc.Test(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown webhook, got %v", err)
	}
}
