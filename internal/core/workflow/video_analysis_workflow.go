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

// Package workflow assembles commands into the video analysis chain and owns
// the request lifecycle around it.
//
// The chain, in order:
//  1. media-upload: scratch file to remote media service.
//  2. media-state-poller: wait until the remote copy is READY.
//  3. analysis-prompt-builder: render the prompt with the user's question.
//  4. agent-query: ask the agent about the video.
package workflow

import (
	"text/template"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// Command names, also the keys under which each records its error.
const (
	MediaUploadCommand   = "media-upload"
	MediaPollCommand     = "media-state-poller"
	PromptBuilderCommand = "analysis-prompt-builder"
	AgentQueryCommand    = "agent-query"
	MediaCleanupCommand  = "remote-media-cleanup"
)

// VideoAnalysisWorkflow is the upload, poll, prompt and query chain.
type VideoAnalysisWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	ingestion      services.MediaIngestion
	agent          services.Agent
	promptTemplate *template.Template
	chain          *cor.BaseChain
}

func (w *VideoAnalysisWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// IsExecutable defers to the chain, which only needs a Go context.
func (w *VideoAnalysisWorkflow) IsExecutable(context cor.Context) bool {
	return w.chain.IsExecutable(context)
}

// CommandNames returns the chain's command names in execution order.
func (w *VideoAnalysisWorkflow) CommandNames() []string {
	return w.chain.CommandNames()
}

func (w *VideoAnalysisWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewMediaUpload(MediaUploadCommand, w.ingestion))
	out.AddCommand(commands.NewMediaStatePoller(MediaPollCommand, w.ingestion,
		w.config.Polling.Interval(), w.config.Polling.MaxAttempts, w.config.Polling.Timeout()))
	out.AddCommand(commands.NewAnalysisPromptBuilder(PromptBuilderCommand, w.promptTemplate))
	out.AddCommand(commands.NewAgentQuery(AgentQueryCommand, w.agent))
	w.chain = out
}

// NewVideoAnalysisWorkflow builds the chain. It fails when the analysis prompt
// template does not parse.
func NewVideoAnalysisWorkflow(
	config *cloud.Config,
	ingestion services.MediaIngestion,
	agent services.Agent) (*VideoAnalysisWorkflow, error) {

	promptTemplate, err := commands.NewAnalysisTemplate(config.PromptTemplates.AnalysisPrompt)
	if err != nil {
		return nil, err
	}

	workflow := &VideoAnalysisWorkflow{
		BaseCommand:    *cor.NewBaseCommand("video-analysis-workflow"),
		config:         config,
		ingestion:      ingestion,
		agent:          agent,
		promptTemplate: promptTemplate,
	}
	workflow.initializeChain()
	return workflow, nil
}
