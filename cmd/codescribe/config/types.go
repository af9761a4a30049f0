// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

// CodescribeConfig is the root configuration, loaded from
// ~/.codescribe/codescribe.yaml.
type CodescribeConfig struct {
	// Logging controls output destinations and verbosity
	Logging LoggingConfig `yaml:"logging"`

	// Backend selects the generation backend
	Backend BackendConfig `yaml:"backend"`

	// Models names the writer, reviewer, and embedding models
	Models ModelsConfig `yaml:"models"`

	// Weaviate locates the chunk corpus
	Weaviate WeaviateConfig `yaml:"weaviate"`

	// Workflow bounds the refinement loop
	Workflow WorkflowConfig `yaml:"workflow"`

	// Output controls where finished documents land
	Output OutputConfig `yaml:"output"`

	// Templates optionally override the built-in prompts
	Templates TemplatesConfig `yaml:"templates"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

type BackendConfig struct {
	// Type can be "ollama" or "openai"
	Type    string `yaml:"type" validate:"oneof=ollama openai"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type ModelsConfig struct {
	// Writer drafts documents. A small instruct model is enough.
	Writer string `yaml:"writer"`

	// Reviewer scores drafts. Kept distinct from Writer so the
	// reviewer does not grade its own prose style.
	Reviewer string `yaml:"reviewer"`

	// Embed generates retrieval vectors.
	Embed string `yaml:"embed"`
}

type WeaviateConfig struct {
	URL    string `yaml:"url" validate:"required"`
	Corpus string `yaml:"corpus" validate:"required"`
}

type WorkflowConfig struct {
	Threshold     int          `yaml:"threshold" validate:"gte=0,lte=100"`
	MaxIterations int          `yaml:"max_iterations" validate:"gte=1"`
	Concurrency   int          `yaml:"concurrency" validate:"gte=1"`
	Budget        BudgetConfig `yaml:"budget"`
}

type BudgetConfig struct {
	MaxTokens            int `yaml:"max_tokens" validate:"gt=0"`
	ReservedInstructions int `yaml:"reserved_instructions" validate:"gte=0"`
	ReservedResponse     int `yaml:"reserved_response" validate:"gte=0"`
}

type OutputConfig struct {
	Dir      string `yaml:"dir"`
	RunStore string `yaml:"run_store"`
}

type TemplatesConfig struct {
	WriterPrompt   string `yaml:"writer_prompt,omitempty"`
	ReviewerPrompt string `yaml:"reviewer_prompt,omitempty"`
	DocTemplate    string `yaml:"doc_template,omitempty"`
}

// DefaultConfig returns the configuration written on first run:
// local Ollama, llama3.1 writing, qwen2.5 reviewing, an 8k window
// with room reserved for instructions and the response.
func DefaultConfig() CodescribeConfig {
	return CodescribeConfig{
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.codescribe/logs",
		},
		Backend: BackendConfig{
			Type:    "ollama",
			BaseURL: "http://localhost:11434",
		},
		Models: ModelsConfig{
			Writer:   "llama3.1:8b",
			Reviewer: "qwen2.5:7b",
			Embed:    "nomic-embed-text",
		},
		Weaviate: WeaviateConfig{
			URL:    "http://localhost:8080",
			Corpus: "default",
		},
		Workflow: WorkflowConfig{
			Threshold:     85,
			MaxIterations: 3,
			Concurrency:   2,
			Budget: BudgetConfig{
				MaxTokens:            8192,
				ReservedInstructions: 1500,
				ReservedResponse:     2500,
			},
		},
		Output: OutputConfig{
			Dir:      "./docs/generated",
			RunStore: "~/.codescribe/runs",
		},
	}
}
