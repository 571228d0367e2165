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
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// DefaultAnalysisPrompt is used when prompt_templates.analysis is not set.
const DefaultAnalysisPrompt = `
Analyze the uploaded video for content and context.
Respond to the following query using video insights and supplementary web research,
{{ .Query }}

Provide a detailed, user-friendly, and actionable response.
`

// PromptParams is the data the analysis template is rendered with.
type PromptParams struct {
	Query string
}

// NewAnalysisTemplate parses text, falling back to DefaultAnalysisPrompt when
// text is blank.
func NewAnalysisTemplate(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultAnalysisPrompt
	}
	return template.New("analysis").Option("missingkey=error").Parse(text)
}

// GetQueryParameterName is the context key holding the user's question.
func GetQueryParameterName() string {
	return "__QUERY__"
}

// AnalysisPromptBuilder renders the prompt sent to the agent. It runs once the
// media is ready, so its input is the ready handle and its output the prompt.
type AnalysisPromptBuilder struct {
	cor.BaseCommand
	template *template.Template
}

func NewAnalysisPromptBuilder(name string, template *template.Template) *AnalysisPromptBuilder {
	return &AnalysisPromptBuilder{BaseCommand: *cor.NewBaseCommand(name), template: template}
}

func (b *AnalysisPromptBuilder) IsExecutable(context cor.Context) bool {
	_, ok := context.Get(GetQueryParameterName()).(string)
	return ok && b.BaseCommand.IsExecutable(context)
}

func (b *AnalysisPromptBuilder) Execute(context cor.Context) {
	query := context.Get(GetQueryParameterName()).(string)

	var buffer bytes.Buffer
	if err := b.template.Execute(&buffer, PromptParams{Query: query}); err != nil {
		b.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(b.GetName(), model.Query("commands.AnalysisPromptBuilder",
			fmt.Errorf("failed to execute prompt template: %w", err), "could not build the analysis prompt"))
		return
	}

	b.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(b.GetOutputParam(), buffer.String())
}
