// Package assistant drives one turn of the conversational project intake
// against a hosted language model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"leadflow/internal/store"
)

const DefaultModel = "gemini-2.5-flash"

var ErrEmptyReply = errors.New("assistant returned an empty reply")

// Gemini holds no conversation state; every call carries the full transcript.
type Gemini struct {
	client *genai.Client
	model  string
	prompt string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model, prompt: SystemPrompt}, nil
}

func (g *Gemini) Name() string {
	return "gemini:" + g.model
}

// Reply returns the assistant's next message for transcript.
func (g *Gemini) Reply(ctx context.Context, transcript []store.ChatTurn) (string, error) {
	contents := Contents(transcript)
	if len(contents) == 0 {
		contents = []*genai.Content{genai.NewContentFromText("Hi", genai.RoleUser)}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.prompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
	})
	if err != nil {
		return "", fmt.Errorf("generate intake reply: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// Contents maps transcript turns onto model roles. Blank turns are dropped.
func Contents(transcript []store.ChatTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(transcript))
	for _, turn := range transcript {
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		switch strings.ToLower(strings.TrimSpace(turn.Role)) {
		case "assistant", "model", "bot":
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	return contents
}

// SystemPrompt fixes the final JSON contract the intake normalizer parses.
const SystemPrompt = `You are the project intake assistant for a small web design studio.
Interview the prospect one question at a time. Learn their name, email, business name,
current website, what the project is, their main goal, how many pages they need, whether
their content (text and photos) is ready, their timeline, their budget, sites they like,
any advanced features (gallery, blog, booking, newsletter, portfolio) and how they want
to handle updates after launch.

Keep replies short and friendly. Never quote a price.

When you have everything, write a one-paragraph summary for the prospect and then end
your message with a single JSON object and nothing after it, using exactly these keys:
{"name": "", "email": "", "business_name": "", "website_url": "", "project_description": "",
"goal": "", "pages": 0, "content_ready": "", "timeline": "", "budget": "", "design_examples": "",
"advanced_features": "", "update_preference": "", "fit": "good|borderline|not_fit",
"intake_summary": "", "raw_chat": []}
Leave a value empty when the prospect did not say. Do not include the JSON before the
conversation is complete.`
