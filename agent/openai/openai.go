// Package openai adapts OpenAI-compatible chat completion endpoints (OpenAI,
// Ollama, vLLM, LiteLLM, ...) to agent.Model using streaming completions.
package openai

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/shared"

	"github.com/tailored-agentic-units/board-assistant/agent"
	"github.com/tailored-agentic-units/board-assistant/core/protocol"
)

const defaultModel = "gpt-4o-mini"

func init() {
	agent.RegisterProvider("openai", func(cfg *agent.Config) (agent.Model, error) {
		return New(cfg), nil
	})
}

// Model streams completions from an OpenAI-compatible endpoint.
type Model struct {
	client openai.Client
	cfg    agent.Config
}

// New creates a Model from cfg. Extra request options, such as a custom
// HTTP client, are applied after the ones derived from cfg.
func New(cfg *agent.Config, opts ...option.RequestOption) *Model {
	c := *cfg
	if c.Model == "" {
		c.Model = defaultModel
	}

	options := []option.RequestOption{option.WithMaxRetries(0)}
	if c.BaseURL != "" {
		options = append(options, option.WithBaseURL(c.BaseURL))
	}
	if key := c.APIKey(); key != "" {
		options = append(options, option.WithAPIKey(key))
	}
	options = append(options, opts...)

	return &Model{client: openai.NewClient(options...), cfg: c}
}

func (m *Model) ID() string { return m.cfg.Model }

func (m *Model) Stream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.cfg.Model),
		Messages: toParams(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toTools(req.Tools)
	}
	if m.cfg.Temperature != nil {
		params.Temperature = openai.Float(*m.cfg.Temperature)
	}
	if m.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(m.cfg.MaxTokens))
	}

	return &stream{raw: m.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func toParams(msgs []protocol.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))

	for _, msg := range msgs {
		var p openai.ChatCompletionMessageParamUnion

		switch msg.Role {
		case protocol.RoleSystem:
			p = openai.SystemMessage(msg.Content)
		case protocol.RoleUser:
			p = openai.UserMessage(msg.Content)
		case protocol.RoleTool:
			p = openai.ToolMessage(msg.Content, msg.ToolCallID)
		case protocol.RoleAssistant:
			p = openai.AssistantMessage(msg.Content)
			for _, tc := range msg.ToolCalls {
				p.OfAssistant.ToolCalls = append(p.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
		default:
			continue
		}

		params = append(params, p)
	}

	return params
}

func toTools(defs []protocol.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  openai.FunctionParameters(def.Parameters),
				},
			},
		})
	}
	return out
}

// stream yields content deltas as they arrive. Tool calls stream as
// argument fragments, so they are accumulated and delivered in one final
// chunk once the response ends.
type stream struct {
	raw     *ssestream.Stream[openai.ChatCompletionChunk]
	acc     openai.ChatCompletionAccumulator
	current agent.Chunk
	flushed bool
}

func (s *stream) Next() bool {
	for s.raw.Next() {
		chunk := s.raw.Current()
		s.acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			s.current = agent.Chunk{Text: chunk.Choices[0].Delta.Content}
			return true
		}
	}

	if s.raw.Err() != nil || s.flushed {
		return false
	}
	s.flushed = true

	if len(s.acc.Choices) == 0 || len(s.acc.Choices[0].Message.ToolCalls) == 0 {
		return false
	}

	calls := s.acc.Choices[0].Message.ToolCalls
	out := make([]protocol.ToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, protocol.NewToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	s.current = agent.Chunk{ToolCalls: out}
	return true
}

func (s *stream) Chunk() agent.Chunk { return s.current }
func (s *stream) Err() error         { return s.raw.Err() }
func (s *stream) Close() error       { return s.raw.Close() }
