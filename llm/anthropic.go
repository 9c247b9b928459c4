package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/convoctx/convoctx/types"
)

// SummarizationSystemPrompt instructs the model when condensing
// conversation text.
const SummarizationSystemPrompt = "You are a helpful assistant that creates concise summaries. " +
	"Extract key facts, entities, and important information."

// DefaultMaxTokens bounds a completion when the caller does not.
const DefaultMaxTokens = 1000

// AnthropicGenerator implements Generator using Claude's streaming API.
type AnthropicGenerator struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicGenerator creates a generator for the given model.
func NewAnthropicGenerator(client *anthropic.Client, model string) *AnthropicGenerator {
	return &AnthropicGenerator{client: client, model: model}
}

// Complete generates an assistant reply. System-role messages are
// folded into the system blocks in their original order, after
// systemPrompt.
func (g *AnthropicGenerator) Complete(ctx context.Context, messages []types.Message, systemPrompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	var system []anthropic.TextBlockParam
	if systemPrompt != "" {
		system = append(system, anthropic.TextBlockParam{Text: systemPrompt})
	}

	var params []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case types.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	if len(params) == 0 {
		return "", fmt.Errorf("%w: no user or assistant messages", ErrGenerationFailed)
	}

	return g.stream(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		System:    system,
		Messages:  params,
	})
}

// Summarize condenses conversation text.
func (g *AnthropicGenerator) Summarize(ctx context.Context, text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	prompt := fmt.Sprintf("Summarize the following conversation:\n\n%s", text)

	return g.stream(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: SummarizationSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
}

// stream runs a streaming request and accumulates the text blocks.
func (g *AnthropicGenerator) stream(ctx context.Context, params anthropic.MessageNewParams) (string, error) {
	stream := g.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("%w: failed to accumulate stream: %v", ErrGenerationFailed, err)
		}
	}

	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}

	if out.Len() == 0 {
		return "", fmt.Errorf("%w: empty response from model", ErrGenerationFailed)
	}

	return out.String(), nil
}
