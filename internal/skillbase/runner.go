package skillbase

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"iot-state-skill/internal/config"
	"iot-state-skill/internal/messages"
)

// CertaintyThreshold is the minimum certainty score at which an intent
// is dispatched to the skill. Below it the intent is assumed to belong
// to a different skill in the ecosystem.
const CertaintyThreshold = 0.8

// Inbound rate limit: an assistant household produces at most a few
// intents per second; anything beyond this is a misbehaving upstream.
const (
	rateLimit         = 60
	rateLimitInterval = 10 * time.Second
)

// Skill is the lifecycle contract a skill implements to participate in
// the assistant framework.
type Skill interface {
	// Preparations runs once before intent dispatch begins.
	Preparations(ctx context.Context) error
	// Certainty scores how confident the skill is that it can answer
	// the intent, in [0, 1].
	Certainty(intent *messages.IntentAnalysisResult) float64
	// ProcessRequest handles one selected intent. It must recover from
	// its own failures; the runner only provides the goroutine.
	ProcessRequest(ctx context.Context, intent *messages.IntentAnalysisResult)
}

// Runner owns the MQTT connection on behalf of a skill: it subscribes
// to the intent analysis topic, gates messages by certainty, and
// publishes the skill's responses and availability state.
type Runner struct {
	cfg     config.SkillConfig
	logger  *slog.Logger
	limiter *intentRateLimiter

	mu sync.Mutex
	cm *autopaho.ConnectionManager // guarded by mu

	wg sync.WaitGroup
}

// NewRunner creates a Runner but does not connect. Call [Runner.Serve]
// to begin the connection and dispatch loop.
func NewRunner(cfg config.SkillConfig, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		limiter: newIntentRateLimiter(rateLimit, rateLimitInterval, logger),
	}
}

// setConnection publishes the connection manager to the other
// goroutines that read it (health probes, dispatch goroutines).
func (r *Runner) setConnection(cm *autopaho.ConnectionManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cm = cm
}

// connection returns the connection manager, or nil before Serve has
// established it.
func (r *Runner) connection() *autopaho.ConnectionManager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cm
}

// availabilityTopic carries the retained online/offline state for this
// skill instance, keyed by client id.
func (r *Runner) availabilityTopic() string {
	return "assistant/skill/" + r.cfg.ClientID + "/availability"
}

// Serve connects to the broker, runs the skill's preparations, and
// dispatches intents until ctx is cancelled. On shutdown it waits for
// in-flight handlers, publishes "offline", and disconnects.
func (r *Runner) Serve(ctx context.Context, skill Skill) error {
	brokerURL, err := url.Parse(r.cfg.BrokerURL())
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	// Preparations must finish before the broker connection exists: the
	// intent subscription goes up inside OnConnectionUp, and a fast
	// intent must never reach an unprepared skill.
	if err := skill.Preparations(ctx); err != nil {
		return fmt.Errorf("skill preparations: %w", err)
	}

	availTopic := r.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: r.cfg.MQTTUsername,
		ConnectPassword: []byte(r.cfg.MQTTPassword),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			r.logger.Info("mqtt connected to broker", "broker", r.cfg.BrokerURL())
			r.subscribeIntents(ctx, cm)
			r.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			r.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: r.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					r.handleIntent(ctx, skill, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	r.setConnection(cm)

	// Wait for the initial connection before declaring readiness.
	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// Log but don't fail — autopaho keeps retrying in the background.
		r.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	go r.limiter.start(ctx)

	<-ctx.Done()
	r.wg.Wait()

	// Use a fresh context: ctx is already cancelled at this point.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	r.publishAvailability(stopCtx, cm, "offline")
	return cm.Disconnect(stopCtx)
}

// AwaitConnection blocks until the MQTT broker connection is
// established or ctx expires. Useful for connwatch health probes.
func (r *Runner) AwaitConnection(ctx context.Context) error {
	cm := r.connection()
	if cm == nil {
		return fmt.Errorf("skill runner not started")
	}
	return cm.AwaitConnection(ctx)
}

func (r *Runner) subscribeIntents(ctx context.Context, cm *autopaho.ConnectionManager) {
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: r.cfg.IntentTopic, QoS: 1},
		},
	}); err != nil {
		r.logger.Error("mqtt subscribe failed", "topic", r.cfg.IntentTopic, "error", err)
		return
	}
	r.logger.Info("subscribed to intent topic", "topic", r.cfg.IntentTopic)
}

func (r *Runner) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   r.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		r.logger.Warn("availability publish failed", "status", status, "error", err)
	} else {
		r.logger.Info("availability published", "status", status)
	}
}

// handleIntent decodes and dispatches one inbound intent message. The
// certainty gate runs synchronously on the broker callback (it is a
// pure keyword check); the selected handler runs in its own goroutine
// so slow database calls never block the MQTT client.
func (r *Runner) handleIntent(ctx context.Context, skill Skill, payload []byte) {
	if !r.limiter.allow() {
		return
	}

	intent, err := messages.DecodeIntent(payload)
	if err != nil {
		r.logger.Warn("discarding undecodable intent message",
			"payload_size", len(payload),
			"error", err,
		)
		return
	}

	certainty := skill.Certainty(intent)
	if certainty < CertaintyThreshold {
		r.logger.Debug("intent not for this skill",
			"intent_id", intent.ID,
			"certainty", certainty,
		)
		return
	}

	r.logger.Info("intent accepted",
		"intent_id", intent.ID,
		"room", intent.ClientRequest.Room,
		"certainty", certainty,
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		skill.ProcessRequest(ctx, intent)
	}()
}

// SendResponse publishes the rendered text to the request's output
// topic. It satisfies the skill's Sender dependency.
func (r *Runner) SendResponse(ctx context.Context, text string, req messages.ClientRequest) error {
	cm := r.connection()
	if cm == nil {
		return fmt.Errorf("skill runner not started")
	}

	payload, err := messages.EncodeResponse(text)
	if err != nil {
		return err
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   req.OutputTopic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish response to %s: %w", req.OutputTopic, err)
	}

	r.logger.Debug("response published",
		"output_topic", req.OutputTopic,
		"request_id", req.ID,
	)
	return nil
}
