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

package commands

import (
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// AgentQuery sends the prompt and the ready media handle to the agent.
//
// Input:  string prompt
// Output: *model.AgentResponse
type AgentQuery struct {
	cor.BaseCommand
	agent services.Agent
}

func NewAgentQuery(name string, agent services.Agent) *AgentQuery {
	return &AgentQuery{BaseCommand: *cor.NewBaseCommand(name), agent: agent}
}

func (q *AgentQuery) IsExecutable(context cor.Context) bool {
	_, ok := context.Get(GetMediaHandleParameterName()).(*model.MediaHandle)
	return ok && q.BaseCommand.IsExecutable(context)
}

func (q *AgentQuery) Execute(context cor.Context) {
	prompt := context.Get(q.GetInputParam()).(string)
	handle := context.Get(GetMediaHandleParameterName()).(*model.MediaHandle)

	start := time.Now()
	resp, err := q.agent.Run(context.GetContext(), prompt, []*model.MediaHandle{handle})
	context.Add(GetElapsedParameterName(q.GetName()), time.Since(start))
	if err != nil {
		q.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(q.GetName(), model.Query("commands.AgentQuery", err, "agent query failed"))
		return
	}
	slog.Info("agent answered", "media", handle.Name, "model", resp.Model,
		"input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens)

	q.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(q.GetOutputParam(), resp)
}
