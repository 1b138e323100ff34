package assistant

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-2.0-flash-001"

// Turn is one prior message of a conversation. Role is "user" or "model".
type Turn struct {
	Role string
	Text string
}

type Prompt struct {
	System  string
	Text    string
	JSON    bool
	History []Turn
}

// Model produces text for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

type geminiModel struct {
	client *genai.Client
	name   string
}

func newGeminiModel(ctx context.Context, apiKey string, name string) (*geminiModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultModel
	}
	return &geminiModel{client: client, name: name}, nil
}

func (g *geminiModel) Generate(ctx context.Context, prompt Prompt) (string, error) {
	model := g.client.GenerativeModel(g.name)
	model.SetTemperature(0.3)
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}
	if prompt.JSON {
		model.ResponseMIMEType = "application/json"
	}

	var (
		resp *genai.GenerateContentResponse
		err  error
	)
	if len(prompt.History) > 0 {
		session := model.StartChat()
		for _, turn := range prompt.History {
			session.History = append(session.History, &genai.Content{
				Role:  turn.Role,
				Parts: []genai.Part{genai.Text(turn.Text)},
			})
		}
		resp, err = session.SendMessage(ctx, genai.Text(prompt.Text))
	} else {
		resp, err = model.GenerateContent(ctx, genai.Text(prompt.Text))
	}
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func (g *geminiModel) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("model returned no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("model returned an empty answer")
	}
	return out, nil
}
