// Package google provides a model.ChatModel adapter for the Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/queryflow/graph/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// System messages become the model's system instruction; earlier turns are
// replayed as chat history and the final turn is sent as the new message.
// Safety blocks surface as *SafetyFilterError.
//
// Example:
//
//	m, err := google.NewChatModel(ctx, os.Getenv("GOOGLE_API_KEY"), "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
type ChatModel struct {
	modelName string
	client    googleClient
	closer    func() error
}

// googleClient is the slice of the SDK this adapter needs. Tests replace it.
type googleClient interface {
	send(ctx context.Context, system string, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error)
}

// NewChatModel creates a Gemini ChatModel. An empty modelName uses DefaultModel.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{client: client, modelName: modelName},
		closer:    client.Close,
	}, nil
}

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, turns := model.SplitSystem(messages)
	if len(turns) == 0 {
		return model.ChatOut{}, errors.New("at least one user or assistant message is required")
	}
	history := convertHistory(turns[:len(turns)-1])
	last := []genai.Part{genai.Text(turns[len(turns)-1].Content)}

	resp, err := m.client.send(ctx, system, history, last)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.ChatOut{}, safetyErrorFrom(blocked)
		}
		return model.ChatOut{}, fmt.Errorf("google generate content: %w", err)
	}
	return convertResponse(resp)
}

// convertHistory maps turns to Gemini contents. Gemini calls the assistant "model".
func convertHistory(turns []model.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return history
}

func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	out := model.ChatOut{}
	if resp == nil {
		return out, errors.New("empty Google response")
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, errors.New("no candidates in Google response")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return model.ChatOut{}, &SafetyFilterError{reason: candidate.FinishReason.String(), category: blockedCategory(candidate)}
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	out.Text = strings.Join(parts, "\n")
	return out, nil
}

func safetyErrorFrom(blocked *genai.BlockedError) *SafetyFilterError {
	e := &SafetyFilterError{reason: "SAFETY", category: "unspecified"}
	if blocked.PromptFeedback != nil {
		e.reason = blocked.PromptFeedback.BlockReason.String()
	}
	if blocked.Candidate != nil {
		e.category = blockedCategory(blocked.Candidate)
	}
	return e
}

func blockedCategory(c *genai.Candidate) string {
	for _, rating := range c.SafetyRatings {
		if rating != nil && rating.Blocked {
			return rating.Category.String()
		}
	}
	return "unspecified"
}

// SafetyFilterError represents a Gemini safety filter block.
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the safety category that triggered the block.
func (e *SafetyFilterError) Category() string {
	return e.category
}

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}

type sdkClient struct {
	client    *genai.Client
	modelName string
}

func (c *sdkClient) send(ctx context.Context, system string, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	gm := c.client.GenerativeModel(c.modelName)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	session := gm.StartChat()
	session.History = history
	return session.SendMessage(ctx, parts...)
}
