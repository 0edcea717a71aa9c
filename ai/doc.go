// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the model services kbase depends on.
//
// The package is designed around three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Synthesizer: Composes an answer from retrieved passages
//   - Provider: Aggregates AI services for convenient initialization
//
// Synthesis is optional. A Provider without a synthesis model returns a nil
// Synthesizer and the retrieval engine answers with the passages themselves.
//
// # Implementations
//
// The openai subpackage talks to OpenAI-compatible servers (OpenAI, Ollama,
// vLLM, LocalAI) through langchaingo. The mock subpackage provides
// deterministic test doubles.
//
// # Configuration
//
//	cfg := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),  // /v1 added automatically
//	    ai.WithEmbeddingModel("nomic-embed-text"),
//	)
//	provider, err := openai.NewProvider(cfg)
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package ai
