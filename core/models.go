package core

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex.
func (id ID) String() string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return hex.EncodeToString(buf[:])
}

// ParseID is the inverse of ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// ContentHash returns a hex BLAKE2b-256 digest of text.
func ContentHash(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ProjectID scopes every piece of stored knowledge.
type ProjectID string

// SourceDocument is an already-parsed file handed to the engine for ingestion.
type SourceDocument struct {
	Filename   string    `json:"filename"`
	Text       string    `json:"text"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Chunk is a bounded window of a source document's words.
type Chunk struct {
	ID        ID        `json:"id"`
	ProjectID ProjectID `json:"project_id"`
	Filename  string    `json:"filename"`
	Ordinal   int       `json:"ordinal"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// ChunkID derives the identity of the ordinal-th chunk of filename within a project.
func ChunkID(project ProjectID, filename string, ordinal int) ID {
	return IDFromContent("chunk\x00" + string(project) + "\x00" + filename + "\x00" + strconv.Itoa(ordinal))
}

// EntityType classifies an infrastructure entity.
type EntityType string

const (
	EntityServer      EntityType = "Server"
	EntityApplication EntityType = "Application"
	EntityDatabase    EntityType = "Database"
	EntityNetwork     EntityType = "Network"
)

// Entity is a typed graph node scoped to a project.
type Entity struct {
	ID         ID                `json:"id"`
	ProjectID  ProjectID         `json:"project_id"`
	Name       string            `json:"name"`
	Type       EntityType        `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	InsertedAt time.Time         `json:"inserted_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// EntityID derives entity identity from (name, type, project). Names compare case-insensitively.
func EntityID(project ProjectID, entityType EntityType, name string) ID {
	return IDFromContent("entity\x00" + string(project) + "\x00" + string(entityType) + "\x00" + strings.ToLower(name))
}

// Merge copies attrs onto the entity, overwriting existing keys.
func (e *Entity) Merge(attrs map[string]string) {
	if len(attrs) == 0 {
		return
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]string, len(attrs))
	}
	for k, v := range attrs {
		e.Attributes[k] = v
	}
}

// RelationType labels a directed edge between two entities.
type RelationType string

const (
	RelationHosts     RelationType = "HOSTS"
	RelationConnects  RelationType = "CONNECTS_TO"
	RelationDependsOn RelationType = "DEPENDS_ON"
)

// Relationship is a typed directed edge between two entities of the same project.
type Relationship struct {
	ID         ID                `json:"id"`
	ProjectID  ProjectID         `json:"project_id"`
	SourceID   ID                `json:"source_id"`
	SourceName string            `json:"source_name"`
	SourceType EntityType        `json:"source_type"`
	TargetID   ID                `json:"target_id"`
	TargetName string            `json:"target_name"`
	TargetType EntityType        `json:"target_type"`
	Type       RelationType      `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RelationshipID derives relationship identity from (source, target, type, project).
func RelationshipID(project ProjectID, source, target ID, relType RelationType) ID {
	return IDFromContent("rel\x00" + string(project) + "\x00" + source.String() + "\x00" + target.String() + "\x00" + string(relType))
}

// FileFingerprint records what a processed file looked like.
type FileFingerprint struct {
	Filename    string    `json:"filename"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ContentHash string    `json:"content_hash"`
}

// ProcessingRecord is the ledger entry written after a project was fully ingested.
type ProcessingRecord struct {
	ProjectID          ProjectID         `json:"project_id"`
	EmbeddingsCount    int               `json:"embeddings_count"`
	EntitiesCount      int               `json:"entities_count"`
	RelationshipsCount int               `json:"relationships_count"`
	FileCount          int               `json:"file_count"`
	ProcessedAt        time.Time         `json:"processed_at"`
	Files              []FileFingerprint `json:"files,omitempty"`
}

// Neighbor is a vector index hit. Distance is cosine distance, smaller is closer.
type Neighbor struct {
	Chunk    *Chunk  `json:"chunk"`
	Distance float32 `json:"distance"`
}

// KeywordMatch is a hit from the keyword path over retained chunk text.
type KeywordMatch struct {
	Chunk *Chunk  `json:"chunk"`
	Score float32 `json:"score"`
}

// ResultKind tags which retrieval tier produced a result.
type ResultKind string

const (
	ResultVector  ResultKind = "vector"
	ResultKeyword ResultKind = "keyword"
	ResultNone    ResultKind = "none"
)

// Passage is a piece of retrieved chunk text.
type Passage struct {
	ChunkID  ID      `json:"chunk_id"`
	Filename string  `json:"filename"`
	Content  string  `json:"content"`
	Score    float32 `json:"score"`
}

// GraphContext is the slice of the project graph relevant to a question.
type GraphContext struct {
	Entities      []*Entity       `json:"entities,omitempty"`
	Relationships []*Relationship `json:"relationships,omitempty"`
}

// Empty reports whether the context carries nothing.
func (g *GraphContext) Empty() bool {
	return g == nil || (len(g.Entities) == 0 && len(g.Relationships) == 0)
}

// RetrievalResult is the answer to a query.
type RetrievalResult struct {
	AnswerText string        `json:"answer_text"`
	Passages   []Passage     `json:"passages"`
	Kind       ResultKind    `json:"kind"`
	Degraded   bool          `json:"degraded,omitempty"`
	Graph      *GraphContext `json:"graph,omitempty"`
}
