// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

// MarkdownInstruction is appended to the system instruction of markdown agents.
const MarkdownInstruction = "Use markdown to format your answers."

// Agent answers a prompt about zero or more uploaded media files.
type Agent interface {
	Run(ctx context.Context, prompt string, handles []*model.MediaHandle) (*model.AgentResponse, error)
}

// AgentConfig describes the agent. It is built once at startup and never
// modified afterwards.
type AgentConfig struct {
	Name         string
	Model        string
	Description  string
	Instructions []string
	Tools        []string
	Markdown     bool
}

// NewAgentConfig builds the agent configuration from an agent_models entry.
func NewAgentConfig(values cloud.AgentModel) AgentConfig {
	cfg := AgentConfig{
		Name:        values.Name,
		Model:       values.Model,
		Description: values.Description,
		Tools:       append([]string(nil), values.Tools...),
		Markdown:    values.Markdown,
	}
	if cfg.Model == "" {
		cfg.Model = cloud.DefaultAgentModel
	}
	if values.SystemInstructions != "" {
		cfg.Instructions = []string{values.SystemInstructions}
	}
	return cfg
}

// SystemInstruction joins the description, the instructions and, for markdown
// agents, MarkdownInstruction. It is empty when there is nothing to say.
func (c AgentConfig) SystemInstruction() string {
	var lines []string
	if c.Description != "" {
		lines = append(lines, c.Description)
	}
	for _, instruction := range c.Instructions {
		if strings.TrimSpace(instruction) != "" {
			lines = append(lines, instruction)
		}
	}
	if c.Markdown {
		lines = append(lines, MarkdownInstruction)
	}
	return strings.Join(lines, "\n")
}

// GenAITools maps tool names onto genai tools.
func (c AgentConfig) GenAITools() ([]*genai.Tool, error) {
	tools := make([]*genai.Tool, 0, len(c.Tools))
	for _, name := range c.Tools {
		switch strings.ToLower(name) {
		case cloud.ToolGoogleSearch, "web_search":
			tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		default:
			return nil, fmt.Errorf("unknown agent tool %q", name)
		}
	}
	return tools, nil
}

// VideoAgent is the Agent backed by a rate-limited Gemini model.
type VideoAgent struct {
	config             AgentConfig
	model              *cloud.QuotaAwareGenerativeAIModel
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
}

// NewVideoAgent derives the agent's model from base. The rate limiter of base
// is shared; its generation config is copied and extended with the system
// instruction and tools of config.
func NewVideoAgent(base *cloud.QuotaAwareGenerativeAIModel, config AgentConfig) (*VideoAgent, error) {
	tools, err := config.GenAITools()
	if err != nil {
		return nil, err
	}

	generation := &genai.GenerateContentConfig{}
	if base.GenerativeContentConfig != nil {
		clone := *base.GenerativeContentConfig
		generation = &clone
	}
	if len(tools) > 0 {
		generation.Tools = tools
	}
	if instruction := config.SystemInstruction(); instruction != "" {
		generation.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}

	agentModel := *base
	agentModel.GenerativeContentConfig = generation
	if config.Model != "" {
		agentModel.ModelName = config.Model
	}

	meter := otel.Meter(cor.MeterName)
	out := &VideoAgent{config: config, model: &agentModel}
	out.inputTokenCounter, _ = meter.Int64Counter("agent.gemini.token.input")
	out.outputTokenCounter, _ = meter.Int64Counter("agent.gemini.token.output")
	out.retryCounter, _ = meter.Int64Counter("agent.gemini.token.retry")
	return out, nil
}

// Config returns the agent configuration.
func (a *VideoAgent) Config() AgentConfig {
	return a.config
}

// Run sends one user message holding a part per handle followed by prompt.
func (a *VideoAgent) Run(ctx context.Context, prompt string, handles []*model.MediaHandle) (*model.AgentResponse, error) {
	parts := make([]*genai.Part, 0, len(handles)+1)
	for _, handle := range handles {
		parts = append(parts, cloud.NewFileData(handle.URI, handle.MIMEType))
	}
	parts = append(parts, cloud.NewTextPart(prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	out, err := cloud.GenerateMultiModalResponse(ctx, a.inputTokenCounter, a.outputTokenCounter, a.retryCounter, 0, a.model, contents)
	if err != nil {
		return nil, err
	}
	return &model.AgentResponse{
		Text:         out.Text,
		Model:        a.model.ModelName,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
	}, nil
}
