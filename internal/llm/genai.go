// Package llm holds the text generators agents are backed by.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/eldtechnologies/agentrooms/internal/agent"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// GenAIConfig selects the Gemini backend. With APIKey set the Gemini API is
// used, otherwise Vertex AI with Project and Location.
type GenAIConfig struct {
	Project  string
	Location string
	APIKey   string
	Model    string
}

// GenAIClient generates text with Gemini through Vertex AI or the Gemini API.
type GenAIClient struct {
	client    *genai.Client
	modelName string
}

// NewGenAIClient creates a generator from cfg.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	cc := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	} else {
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("GCP_PROJECT and GCP_LOCATION must be set for Vertex AI")
		}
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &GenAIClient{client: client, modelName: model}, nil
}

// Generate implements agent.Generator. The system instruction only names the
// agent; context, history and the trigger are all in the prompt.
func (c *GenAIClient) Generate(ctx context.Context, req agent.Request) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	temp := float32(0.9)
	topP := float32(1)

	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: 2048,
	}
	if system := systemInstruction(req.Agent); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	res, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return text, nil
}

func systemInstruction(a models.Agent) string {
	if a.Name == "" {
		return "You are an AI assistant helping the members of a chat room."
	}
	return fmt.Sprintf("You are %s, an AI participant in a chat room. Stay in character.", a.ShortName())
}
