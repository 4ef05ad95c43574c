package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"leadflow/internal/store"
)

// ExtractPayload splits an assistant message into its conversational text
// and the trailing JSON object spanning the first "{" to the last "}".
func ExtractPayload(message string) (string, map[string]any, error) {
	start := strings.Index(message, "{")
	end := strings.LastIndex(message, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(message), nil, ErrMalformedIntakePayload
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(message[start : end+1])))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return strings.TrimSpace(message), nil, fmt.Errorf("%w: %v", ErrMalformedIntakePayload, err)
	}
	if payload == nil {
		return strings.TrimSpace(message), nil, ErrMalformedIntakePayload
	}

	text := strings.TrimSpace(message[:start])
	text = strings.TrimSpace(strings.TrimSuffix(text, "```json"))
	text = strings.TrimSpace(strings.TrimSuffix(text, "```"))
	return text, payload, nil
}

// NormalizeTranscript parses the final assistant message of an intake
// conversation. conversation is copied onto the intake as the raw transcript
// and takes precedence over any raw_chat the model echoed back.
func (n *Normalizer) NormalizeTranscript(message string, conversation []store.ChatTurn) (Result, error) {
	_, payload, err := ExtractPayload(message)
	if err != nil {
		return Result{}, err
	}

	f := newFields(payload)
	name := f.text("name")
	email := strings.ToLower(f.text("email"))
	if err := requireIdentity(name, email); err != nil {
		return Result{}, err
	}

	var turns []store.ChatTurn
	if conversation != nil {
		turns = append(make([]store.ChatTurn, 0, len(conversation)), conversation...)
	}
	result := n.aiIntake(f, turns)
	result.Lead.Name = name
	result.Lead.Email = email
	result.Lead.Source = string(SourceAIIntake)
	result.Lead.Status = store.LeadStatusNew
	result.Lead.Payload = payload
	result.Intake.Name = name
	result.Intake.Email = email
	return result, nil
}
