// Package messages defines the assistant framework's wire types as this
// skill consumes them. The schema is owned by the intent engine; only
// the fields the skill reads are modeled here, unknown fields are
// ignored on decode.
package messages

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ClientRequest identifies the originating voice request: what was
// said, where it was said, and which topic the answer belongs on.
type ClientRequest struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	Room        string    `json:"room"`
	OutputTopic string    `json:"output_topic"`
}

// IntentAnalysisResult is the tokenized form of a user utterance as
// published by the upstream intent engine. Skills compete on these
// messages via their certainty score.
type IntentAnalysisResult struct {
	ID            uuid.UUID     `json:"id"`
	ClientRequest ClientRequest `json:"client_request"`
	Rooms         []string      `json:"rooms"`
	Numbers       []int         `json:"numbers"`
	Verbs         []string      `json:"verbs"`
	Nouns         []string      `json:"nouns"`
}

// Response is the payload a skill publishes to the request's output
// topic.
type Response struct {
	Text string `json:"text"`
}

// DecodeIntent parses an intent analysis message from its JSON wire
// form. A message without an output topic is rejected because the
// skill would have nowhere to send its answer.
func DecodeIntent(payload []byte) (*IntentAnalysisResult, error) {
	var intent IntentAnalysisResult
	if err := json.Unmarshal(payload, &intent); err != nil {
		return nil, fmt.Errorf("decode intent analysis result: %w", err)
	}
	if intent.ClientRequest.OutputTopic == "" {
		return nil, fmt.Errorf("intent %s has no output topic", intent.ID)
	}
	return &intent, nil
}

// EncodeResponse serializes a response payload for publishing.
func EncodeResponse(text string) ([]byte, error) {
	payload, err := json.Marshal(Response{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return payload, nil
}
