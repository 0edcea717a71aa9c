package openai

import (
	"strings"
	"testing"

	"github.com/poiesic/kbase/core"
	"github.com/stretchr/testify/assert"
)

func TestFormatPassages(t *testing.T) {
	out := formatPassages([]core.Passage{
		{Filename: "infra.txt", Content: "web-01  hosts\n\nthe  shop"},
		{Filename: "db.txt", Content: "orders database"},
	})

	assert.Equal(t, "[1] (infra.txt)\nweb-01 hosts the shop\n\n[2] (db.txt)\norders database", out)
}

func TestFormatGraph(t *testing.T) {
	t.Run("nil graph", func(t *testing.T) {
		assert.Empty(t, formatGraph(nil))
		assert.Empty(t, formatGraph(&core.GraphContext{}))
	})

	t.Run("entities and relationships", func(t *testing.T) {
		out := formatGraph(&core.GraphContext{
			Entities: []*core.Entity{
				{Name: "web-01", Type: core.EntityServer, Attributes: map[string]string{"os": "Ubuntu", "cpu": "8"}},
			},
			Relationships: []*core.Relationship{
				{SourceName: "web-01", TargetName: "Storefront", Type: core.RelationHosts},
			},
		})

		assert.Contains(t, out, "- web-01 (Server) [cpu=8, os=Ubuntu]")
		assert.Contains(t, out, "- web-01 HOSTS Storefront")
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	// multi-byte rune is never split
	out := truncate("aé", 2)
	assert.True(t, strings.HasPrefix(out, "a"))
	assert.NotContains(t, out, "\xc3")
}
