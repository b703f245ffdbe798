package iotstate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"iot-state-skill/internal/messages"
)

// fallbackResponse is spoken whenever request processing fails. The
// user always hears an answer; failures never escape the skill.
const fallbackResponse = "Sorry, I couldn't process your request"

// Sender publishes a response back through the assistant framework.
// The skillbase runner satisfies this interface.
type Sender interface {
	SendResponse(ctx context.Context, text string, req messages.ClientRequest) error
}

// Skill answers natural-language queries about IoT device states. It
// implements the skillbase.Skill lifecycle: template preparation, a
// keyword-based certainty score, and per-intent request processing.
//
// The skill keeps no per-request state; concurrent intents share only
// the read-only configuration and the database connection pool.
type Skill struct {
	states   *StateReader
	sender   Sender
	renderer *Renderer
	logger   *slog.Logger
}

// New constructs the skill. The renderer is initialized later in
// [Skill.Preparations], matching the framework lifecycle.
func New(states *StateReader, sender Sender, logger *slog.Logger) *Skill {
	return &Skill{
		states: states,
		sender: sender,
		logger: logger,
	}
}

// Preparations loads the response templates. Called once by the
// framework runner after the broker connection is established.
func (s *Skill) Preparations(ctx context.Context) error {
	renderer, err := NewRenderer()
	if err != nil {
		return err
	}
	s.renderer = renderer
	s.logger.Debug("response templates loaded")
	return nil
}

// Certainty reports whether this skill can answer the intent: 1.0 if
// any noun names a supported device type, otherwise 0.0. No partial
// credit — the skill either owns the vocabulary or it does not.
func (s *Skill) Certainty(intent *messages.IntentAnalysisResult) float64 {
	for _, noun := range intent.Nouns {
		if _, ok := deviceKeywords[noun]; ok {
			return 1.0
		}
	}
	return 0.0
}

// parameters extracts the query filter from the intent: device type
// from the nouns, rooms from the intent (falling back to the room the
// request came from), and the state filter from the raw utterance.
func (s *Skill) parameters(intent *messages.IntentAnalysisResult) (Parameters, error) {
	var deviceType DeviceType
	found := false
	for _, noun := range intent.Nouns {
		if t, ok := deviceKeywords[noun]; ok {
			deviceType = t
			found = true
			break
		}
	}
	if !found {
		return Parameters{}, fmt.Errorf("no supported device type in request %s", intent.ID)
	}

	rooms := intent.Rooms
	if len(rooms) == 0 && intent.ClientRequest.Room != "" {
		rooms = []string{intent.ClientRequest.Room}
	}

	return Parameters{
		DeviceType:  deviceType,
		Rooms:       rooms,
		StateFilter: stateFilterFromText(intent.ClientRequest.Text),
	}, nil
}

// stateFilterFromText scans the utterance for an explicit open/closed
// qualifier. Absent either word the query covers all states.
func stateFilterFromText(text string) StateFilter {
	for _, word := range strings.Fields(strings.ToLower(text)) {
		switch word {
		case "open":
			return FilterOpen
		case "closed":
			return FilterClosed
		}
	}
	return FilterAll
}

// ProcessRequest handles one selected intent end to end: extract
// parameters, query the store, render, respond. Any failure is
// recovered here and turned into the fallback sentence — a database
// outage or malformed intent must never crash the process.
func (s *Skill) ProcessRequest(ctx context.Context, intent *messages.IntentAnalysisResult) {
	text, err := s.answer(ctx, intent)
	if err != nil {
		s.logger.Error("request processing failed",
			"intent_id", intent.ID,
			"room", intent.ClientRequest.Room,
			"error", err,
		)
		text = fallbackResponse
	}

	if err := s.sender.SendResponse(ctx, text, intent.ClientRequest); err != nil {
		s.logger.Error("response publish failed",
			"intent_id", intent.ID,
			"output_topic", intent.ClientRequest.OutputTopic,
			"error", err,
		)
	}
}

func (s *Skill) answer(ctx context.Context, intent *messages.IntentAnalysisResult) (string, error) {
	if s.renderer == nil {
		return "", fmt.Errorf("response templates not loaded")
	}

	params, err := s.parameters(intent)
	if err != nil {
		return "", err
	}

	states, err := s.states.DeviceStates(ctx, params)
	if err != nil {
		return "", err
	}

	s.logger.Debug("device states fetched",
		"intent_id", intent.ID,
		"device_type", params.DeviceType,
		"rooms", params.Rooms,
		"filter", params.StateFilter.String(),
		"matches", len(states),
	)

	return s.renderer.StateQuery(params, states)
}
