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

// Package retrieval answers questions over a project's indexed documents.
//
// The Engine works through an ordered chain of tiers and tags the result with
// the tier that produced it:
//   - vector: nearest chunks to the embedded question
//   - keyword: term overlap over the retained chunk text, used when the vector
//     tier errors or finds nothing
//   - none: an explicit statement that no relevant content exists
//
// Retrieved passages are handed to an optional synthesizer under a deadline.
// A synthesis error or timeout degrades to the passages themselves. Graph
// mode adds entities and relationships that match the question to the
// synthesizer input.
package retrieval
