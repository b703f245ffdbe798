package skillbase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"iot-state-skill/internal/config"
	"iot-state-skill/internal/messages"
)

// stubSkill records dispatch decisions made by the runner.
type stubSkill struct {
	certainty float64
	prepErr   error
	processed atomic.Int64
	lastRoom  atomic.Value
}

func (s *stubSkill) Preparations(ctx context.Context) error { return s.prepErr }

func (s *stubSkill) Certainty(intent *messages.IntentAnalysisResult) float64 {
	return s.certainty
}

func (s *stubSkill) ProcessRequest(ctx context.Context, intent *messages.IntentAnalysisResult) {
	s.lastRoom.Store(intent.ClientRequest.Room)
	s.processed.Add(1)
}

func testRunner(logger *slog.Logger) *Runner {
	cfg := config.SkillConfig{
		ClientID:       "iot_state_skill_test",
		MQTTServerHost: "localhost",
		MQTTServerPort: 1883,
		IntentTopic:    "assistant/intent_engine/result",
	}
	return NewRunner(cfg, logger)
}

const intentPayload = `{
	"id": "90f54af1-77d9-4074-b0e8-2a99119116be",
	"client_request": {
		"id": "bdfc40a6-4284-42ce-b880-c1898f0d78d1",
		"text": "Are there any open windows?",
		"room": "bedroom",
		"output_topic": "assistant/bedroom/output"
	},
	"nouns": ["windows"]
}`

func TestHandleIntent_Dispatches(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := testRunner(logger)
	skill := &stubSkill{certainty: 1.0}

	r.handleIntent(context.Background(), skill, []byte(intentPayload))
	r.wg.Wait()

	if got := skill.processed.Load(); got != 1 {
		t.Fatalf("processed = %d, want 1", got)
	}
	if room := skill.lastRoom.Load(); room != "bedroom" {
		t.Errorf("room = %v, want bedroom", room)
	}
}

func TestHandleIntent_BelowThreshold(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := testRunner(logger)
	skill := &stubSkill{certainty: 0.0}

	r.handleIntent(context.Background(), skill, []byte(intentPayload))
	r.wg.Wait()

	if got := skill.processed.Load(); got != 0 {
		t.Errorf("processed = %d, want 0 for certainty below threshold", got)
	}
}

func TestHandleIntent_AtThreshold(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := testRunner(logger)
	skill := &stubSkill{certainty: CertaintyThreshold}

	r.handleIntent(context.Background(), skill, []byte(intentPayload))
	r.wg.Wait()

	if got := skill.processed.Load(); got != 1 {
		t.Errorf("processed = %d, want 1 for certainty at threshold", got)
	}
}

func TestHandleIntent_UndecodablePayload(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := testRunner(logger)
	skill := &stubSkill{certainty: 1.0}

	r.handleIntent(context.Background(), skill, []byte("not json"))
	r.wg.Wait()

	if got := skill.processed.Load(); got != 0 {
		t.Errorf("processed = %d, want 0 for undecodable payload", got)
	}
	if !strings.Contains(buf.String(), "undecodable intent") {
		t.Errorf("expected warning in log output, got: %s", buf.String())
	}
}

func TestHandleIntent_RateLimited(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := testRunner(logger)
	// Shrink the limit so the test does not need 60 messages.
	r.limiter = newIntentRateLimiter(2, time.Second, logger)
	skill := &stubSkill{certainty: 1.0}

	for i := 0; i < 5; i++ {
		r.handleIntent(context.Background(), skill, []byte(intentPayload))
	}
	r.wg.Wait()

	if got := skill.processed.Load(); got != 2 {
		t.Errorf("processed = %d, want 2 with limit 2", got)
	}
}

func TestAvailabilityTopic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := testRunner(logger)

	want := "assistant/skill/iot_state_skill_test/availability"
	if got := r.availabilityTopic(); got != want {
		t.Errorf("availabilityTopic() = %q, want %q", got, want)
	}
}

func TestServe_PreparationsRunBeforeConnecting(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := testRunner(logger)
	skill := &stubSkill{certainty: 1.0, prepErr: errors.New("templates broken")}

	err := r.Serve(context.Background(), skill)
	if err == nil || !strings.Contains(err.Error(), "templates broken") {
		t.Fatalf("Serve() error = %v, want preparations failure", err)
	}
	// A failed preparation must abort before the broker connection is
	// created; otherwise an early intent could reach an unprepared skill.
	if r.connection() != nil {
		t.Error("connection was established despite failed preparations")
	}
}

func TestAwaitConnection_NotStarted(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := testRunner(logger)

	if err := r.AwaitConnection(context.Background()); err == nil {
		t.Fatal("AwaitConnection before Serve should error")
	}
}

func TestSendResponse_NotStarted(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := testRunner(logger)

	err := r.SendResponse(context.Background(), "hello", messages.ClientRequest{
		OutputTopic: "assistant/bedroom/output",
	})
	if err == nil {
		t.Fatal("SendResponse before Serve should error")
	}
}
