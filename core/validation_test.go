package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateProjectID(t *testing.T) {
	tests := []struct {
		name    string
		project ProjectID
		wantErr error
	}{
		{name: "valid", project: "P1", wantErr: nil},
		{name: "empty", project: "", wantErr: ErrInvalidProjectID},
		{name: "whitespace", project: "   ", wantErr: ErrInvalidProjectID},
		{name: "contains NUL", project: "P\x001", wantErr: ErrInvalidProjectID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectID(tt.project)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateProjectID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSourceDocument(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		doc     *SourceDocument
		wantErr error
	}{
		{
			name:    "valid document",
			doc:     &SourceDocument{Filename: "infra.txt", Text: "srv01", UploadedAt: now},
			wantErr: nil,
		},
		{
			name:    "empty text is valid",
			doc:     &SourceDocument{Filename: "empty.txt", UploadedAt: now},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "missing filename",
			doc:     &SourceDocument{Text: "x", UploadedAt: now},
			wantErr: ErrEmptyFilename,
		},
		{
			name:    "missing upload time",
			doc:     &SourceDocument{Filename: "a.txt", Text: "x"},
			wantErr: ErrMissingUploadTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceDocument(tt.doc)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSourceDocument() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDocuments_Duplicates(t *testing.T) {
	now := time.Now()
	docs := []SourceDocument{
		{Filename: "a.txt", UploadedAt: now},
		{Filename: "a.txt", UploadedAt: now},
	}
	err := ValidateDocuments(docs)
	if !errors.Is(err, ErrDuplicateFilename) {
		t.Errorf("ValidateDocuments() error = %v, want ErrDuplicateFilename", err)
	}
	if err := ValidateDocuments(docs[:1]); err != nil {
		t.Errorf("ValidateDocuments() unexpected error = %v", err)
	}
}

func TestValidateEntity(t *testing.T) {
	tests := []struct {
		name    string
		entity  *Entity
		wantErr error
	}{
		{
			name:    "valid entity",
			entity:  &Entity{ProjectID: "P1", Name: "srv01", Type: EntityServer},
			wantErr: nil,
		},
		{
			name:    "nil entity",
			entity:  nil,
			wantErr: ErrInvalidEntity,
		},
		{
			name:    "empty name",
			entity:  &Entity{ProjectID: "P1", Type: EntityServer},
			wantErr: ErrEmptyEntityName,
		},
		{
			name:    "empty type",
			entity:  &Entity{ProjectID: "P1", Name: "srv01"},
			wantErr: ErrEmptyEntityType,
		},
		{
			name:    "missing project",
			entity:  &Entity{Name: "srv01", Type: EntityServer},
			wantErr: ErrInvalidProjectID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntity(tt.entity)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEntity() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRelationship(t *testing.T) {
	src := EntityID("P1", EntityServer, "srv01")
	dst := EntityID("P1", EntityApplication, "Payroll")

	tests := []struct {
		name    string
		rel     *Relationship
		wantErr bool
	}{
		{name: "valid", rel: &Relationship{ProjectID: "P1", SourceID: src, TargetID: dst, Type: RelationHosts}},
		{name: "nil", rel: nil, wantErr: true},
		{name: "missing type", rel: &Relationship{ProjectID: "P1", SourceID: src, TargetID: dst}, wantErr: true},
		{name: "self reference", rel: &Relationship{ProjectID: "P1", SourceID: src, TargetID: src, Type: RelationHosts}, wantErr: true},
		{name: "missing endpoint", rel: &Relationship{ProjectID: "P1", SourceID: src, Type: RelationHosts}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelationship(tt.rel)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelationship() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRelationship) {
				t.Errorf("error should wrap ErrInvalidRelationship: %v", err)
			}
		})
	}
}
