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


package core

import (
	"fmt"
	"strings"
)

// ValidateProjectID checks that a project id can be used as a storage namespace.
//
// Validation rules:
//   - must not be empty or whitespace
//   - must not contain NUL (used as a key separator)
func ValidateProjectID(project ProjectID) error {
	if strings.TrimSpace(string(project)) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidProjectID)
	}
	if strings.ContainsRune(string(project), 0) {
		return fmt.Errorf("%w: contains NUL", ErrInvalidProjectID)
	}
	return nil
}

// ValidateSourceDocument validates a document handed in for ingestion.
//
// Validation rules:
//   - Filename must not be empty
//   - UploadedAt must be set
//
// Empty Text is valid and yields zero chunks.
func ValidateSourceDocument(doc *SourceDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if strings.TrimSpace(doc.Filename) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyFilename)
	}
	if doc.UploadedAt.IsZero() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDocument, doc.Filename, ErrMissingUploadTime)
	}
	return nil
}

// ValidateDocuments validates a batch and rejects duplicate filenames.
func ValidateDocuments(docs []SourceDocument) error {
	seen := make(map[string]struct{}, len(docs))
	for i := range docs {
		if err := ValidateSourceDocument(&docs[i]); err != nil {
			return err
		}
		if _, dup := seen[docs[i].Filename]; dup {
			return fmt.Errorf("%w: %w: %s", ErrInvalidDocument, ErrDuplicateFilename, docs[i].Filename)
		}
		seen[docs[i].Filename] = struct{}{}
	}
	return nil
}

// ValidateEntity validates an Entity according to domain rules.
func ValidateEntity(entity *Entity) error {
	if entity == nil {
		return fmt.Errorf("%w: entity is nil", ErrInvalidEntity)
	}
	if strings.TrimSpace(entity.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptyEntityName)
	}
	if entity.Type == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptyEntityType)
	}
	if err := ValidateProjectID(entity.ProjectID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}
	return nil
}

// ValidateRelationship validates a Relationship according to domain rules.
func ValidateRelationship(rel *Relationship) error {
	if rel == nil {
		return fmt.Errorf("%w: relationship is nil", ErrInvalidRelationship)
	}
	if rel.Type == "" {
		return fmt.Errorf("%w: empty type", ErrInvalidRelationship)
	}
	if rel.SourceID == 0 || rel.TargetID == 0 {
		return fmt.Errorf("%w: missing endpoint", ErrInvalidRelationship)
	}
	if rel.SourceID == rel.TargetID {
		return fmt.Errorf("%w: self reference", ErrInvalidRelationship)
	}
	if err := ValidateProjectID(rel.ProjectID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRelationship, err)
	}
	return nil
}
