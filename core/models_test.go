package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestID_StringRoundTrip(t *testing.T) {
	id := IDFromContent("round trip")
	s := id.String()
	if len(s) != 16 {
		t.Fatalf("String() length = %d, want 16", len(s))
	}
	parsed, err := ParseID(s)
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseID(String()) = %d, want %d", parsed, id)
	}
}

func TestChunkID(t *testing.T) {
	a := ChunkID("P1", "infra.txt", 0)
	if a != ChunkID("P1", "infra.txt", 0) {
		t.Error("ChunkID() not deterministic")
	}
	others := []ID{
		ChunkID("P1", "infra.txt", 1),
		ChunkID("P2", "infra.txt", 0),
		ChunkID("P1", "apps.txt", 0),
	}
	for _, o := range others {
		if o == a {
			t.Errorf("ChunkID() collision: %d", o)
		}
	}
}

func TestEntityID(t *testing.T) {
	tests := []struct {
		name string
		a, b ID
		same bool
	}{
		{
			name: "case-insensitive name",
			a:    EntityID("P1", EntityServer, "SRV-APP-01"),
			b:    EntityID("P1", EntityServer, "srv-app-01"),
			same: true,
		},
		{
			name: "type is part of identity",
			a:    EntityID("P1", EntityServer, "db01"),
			b:    EntityID("P1", EntityDatabase, "db01"),
			same: false,
		},
		{
			name: "project is part of identity",
			a:    EntityID("P1", EntityServer, "web01"),
			b:    EntityID("P2", EntityServer, "web01"),
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.a == tt.b) != tt.same {
				t.Errorf("EntityID equality = %v, want %v", tt.a == tt.b, tt.same)
			}
		})
	}
}

func TestRelationshipID_Directional(t *testing.T) {
	src := EntityID("P1", EntityServer, "srv01")
	dst := EntityID("P1", EntityApplication, "Payroll")
	if RelationshipID("P1", src, dst, RelationHosts) == RelationshipID("P1", dst, src, RelationHosts) {
		t.Error("RelationshipID() should depend on direction")
	}
}

func TestEntity_Merge(t *testing.T) {
	e := &Entity{Name: "srv01", Type: EntityServer}
	e.Merge(nil)
	if e.Attributes != nil {
		t.Error("Merge(nil) should not allocate")
	}

	e.Merge(map[string]string{"ip_address": "10.0.0.1"})
	e.Merge(map[string]string{"os": "RHEL 8", "ip_address": "10.0.0.2"})

	if got := e.Attributes["ip_address"]; got != "10.0.0.2" {
		t.Errorf("ip_address = %q, want 10.0.0.2", got)
	}
	if got := e.Attributes["os"]; got != "RHEL 8" {
		t.Errorf("os = %q, want RHEL 8", got)
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash("a") == ContentHash("b") {
		t.Error("ContentHash() collision")
	}
	if ContentHash("same") != ContentHash("same") {
		t.Error("ContentHash() not deterministic")
	}
}

func TestGraphContext_Empty(t *testing.T) {
	var nilCtx *GraphContext
	if !nilCtx.Empty() {
		t.Error("nil context should be empty")
	}
	if !(&GraphContext{}).Empty() {
		t.Error("zero context should be empty")
	}
	if (&GraphContext{Entities: []*Entity{{Name: "x"}}}).Empty() {
		t.Error("context with entities should not be empty")
	}
}
