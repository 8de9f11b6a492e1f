package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nosdois/duet/internal/bus"
	"github.com/nosdois/duet/internal/config"
	"github.com/nosdois/duet/internal/dispatch"
	"github.com/nosdois/duet/internal/memory"
	"github.com/nosdois/duet/internal/providers"
	"github.com/nosdois/duet/internal/store"
	"github.com/nosdois/duet/internal/trigger"
)

type stubSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *stubSender) SendText(ctx context.Context, chatID, text string, mentions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type stubGenerator struct{}

func (stubGenerator) Name() string { return "stub" }
func (stubGenerator) Generate(ctx context.Context, req providers.Request) (string, error) {
	return "tudo certo 🌿", nil
}

type stubCouples struct{}

func (stubCouples) LookupCouple(ctx context.Context, groupJID string) (*store.Couple, error) {
	return nil, nil
}

type stubMediations struct{}

func (stubMediations) MediationState(ctx context.Context, chatID string) (time.Time, int, error) {
	return time.Time{}, 0, nil
}
func (stubMediations) RecordMediation(ctx context.Context, chatID string, at time.Time) error {
	return nil
}

func newTestServer(cfg config.GatewayConfig) (*Server, *stubSender) {
	return newTestServerWith(cfg, stubGenerator{})
}

func newTestServerWith(cfg config.GatewayConfig, gen providers.Generator) (*Server, *stubSender) {
	sender := &stubSender{}
	dispatcher := dispatch.New(dispatch.Config{
		MinPacingDelay: time.Millisecond,
		MaxPacingDelay: 2 * time.Millisecond,
	}, dispatch.Deps{
		Dedupe:     bus.NewDeduplicator(10*time.Minute, 100),
		Memory:     memory.NewManager(20, time.Hour),
		Trigger:    trigger.NewEvaluator(120 * time.Second),
		Activity:   trigger.NewActivityWindow(),
		Generator:  gen,
		Sender:     sender,
		Couples:    stubCouples{},
		Mediations: stubMediations{},
	})
	return NewServer(cfg, dispatcher), sender
}

func conversationPayload(id, jid, text string, fromMe bool) string {
	return fmt.Sprintf(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": %q, "fromMe": %v, "id": %q},
			"pushName": "Ana",
			"messageType": "conversation",
			"message": {"conversation": %q}
		}
	}`, jid, fromMe, id, text)
}

func postWebhook(t *testing.T, mux *http.ServeMux, body string, header map[string]string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var out map[string]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out["status"]
}

func TestWebhook_TextMessageAccepted(t *testing.T) {
	s, sender := newTestServer(config.GatewayConfig{})
	mux := s.BuildMux()

	rec, status := postWebhook(t, mux,
		conversationPayload("M1", "5511999@s.whatsapp.net", "oi, tudo bem?", false), nil)

	if rec.Code != http.StatusOK || status != "ok" {
		t.Fatalf("got %d %q, want 200 ok", rec.Code, status)
	}

	// The dispatch runs async; wait for the reply to land.
	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("dispatch never delivered a reply")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebhook_SelfMessageIgnored(t *testing.T) {
	s, sender := newTestServer(config.GatewayConfig{})
	mux := s.BuildMux()

	rec, status := postWebhook(t, mux,
		conversationPayload("M1", "5511999@s.whatsapp.net", "oi", true), nil)

	if rec.Code != http.StatusOK || status != string(bus.StatusIgnoredSelf) {
		t.Errorf("got %d %q, want 200 ignored_self", rec.Code, status)
	}
	time.Sleep(20 * time.Millisecond)
	if sender.count() != 0 {
		t.Error("self message produced outbound traffic")
	}
}

func TestWebhook_DuplicateScreenedSynchronously(t *testing.T) {
	s, _ := newTestServer(config.GatewayConfig{})
	mux := s.BuildMux()
	payload := conversationPayload("M1", "5511999@s.whatsapp.net", "oi", false)

	if _, status := postWebhook(t, mux, payload, nil); status != "ok" {
		t.Fatalf("first post status %q, want ok", status)
	}
	if _, status := postWebhook(t, mux, payload, nil); status != string(bus.StatusDuplicate) {
		t.Errorf("second post status %q, want duplicate", status)
	}
}

func TestWebhook_UnknownEventIgnored(t *testing.T) {
	s, _ := newTestServer(config.GatewayConfig{})
	mux := s.BuildMux()

	rec, status := postWebhook(t, mux, `{"event": "connection.update", "data": {}}`, nil)
	if rec.Code != http.StatusOK || status != "ignored_event" {
		t.Errorf("got %d %q, want 200 ignored_event", rec.Code, status)
	}
}

func TestWebhook_MalformedBody(t *testing.T) {
	s, _ := newTestServer(config.GatewayConfig{})
	mux := s.BuildMux()

	rec, _ := postWebhook(t, mux, "{not json", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rec.Code)
	}
}

func TestWebhook_SecretEnforced(t *testing.T) {
	s, _ := newTestServer(config.GatewayConfig{WebhookSecret: "s3cret"})
	mux := s.BuildMux()
	payload := conversationPayload("M1", "5511999@s.whatsapp.net", "oi", false)

	rec, _ := postWebhook(t, mux, payload, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing secret: got %d, want 401", rec.Code)
	}

	rec, _ = postWebhook(t, mux, payload, map[string]string{"apikey": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: got %d, want 401", rec.Code)
	}

	rec, status := postWebhook(t, mux, payload, map[string]string{"apikey": "s3cret"})
	if rec.Code != http.StatusOK || status != "ok" {
		t.Errorf("correct secret: got %d %q, want 200 ok", rec.Code, status)
	}
}

func TestWebhook_RateLimit(t *testing.T) {
	s, _ := newTestServer(config.GatewayConfig{RateLimitRPM: 1})
	mux := s.BuildMux()

	limited := false
	for i := 0; i < 10; i++ {
		payload := conversationPayload(fmt.Sprintf("M%d", i), "5511999@s.whatsapp.net", "oi", false)
		rec, _ := postWebhook(t, mux, payload, nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("burst of requests was never rate limited")
	}
}

// panicOnceGenerator blows up on its first call and behaves afterwards.
type panicOnceGenerator struct {
	mu       sync.Mutex
	panicked bool
}

func (g *panicOnceGenerator) Name() string { return "panic-once" }

func (g *panicOnceGenerator) Generate(ctx context.Context, req providers.Request) (string, error) {
	g.mu.Lock()
	first := !g.panicked
	g.panicked = true
	g.mu.Unlock()
	if first {
		panic("generator exploded")
	}
	return "ainda aqui 🌿", nil
}

func TestWebhook_DispatchPanicDropsMessageOnly(t *testing.T) {
	s, sender := newTestServerWith(config.GatewayConfig{}, &panicOnceGenerator{})
	mux := s.BuildMux()

	// First message panics inside the async dispatch; the message is dropped
	// and nothing else may die with it.
	rec, status := postWebhook(t, mux,
		conversationPayload("M1", "5511999@s.whatsapp.net", "oi", false), nil)
	if rec.Code != http.StatusOK || status != "ok" {
		t.Fatalf("first post: got %d %q, want 200 ok", rec.Code, status)
	}

	// A later message on the same server must still go through end to end.
	rec, status = postWebhook(t, mux,
		conversationPayload("M2", "5511999@s.whatsapp.net", "tudo bem?", false), nil)
	if rec.Code != http.StatusOK || status != "ok" {
		t.Fatalf("second post: got %d %q, want 200 ok", rec.Code, status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server did not recover from a panicking dispatch")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(config.GatewayConfig{})
	mux := s.BuildMux()

	for _, path := range []string{"/health", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
			t.Errorf("GET %s: got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
