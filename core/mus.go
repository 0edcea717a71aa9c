package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the persisted models. Times are stored as UTC unix
// microseconds; empty maps and slices decode as nil.
var (
	IDMUS               mus.Serializer[ID]               = idMUS{}
	ChunkMUS            mus.Serializer[Chunk]            = chunkMUS{}
	EntityMUS           mus.Serializer[Entity]           = entityMUS{}
	RelationshipMUS     mus.Serializer[Relationship]     = relationshipMUS{}
	FileFingerprintMUS  mus.Serializer[FileFingerprint]  = fingerprintMUS{}
	ProcessingRecordMUS mus.Serializer[ProcessingRecord] = recordMUS{}
)

var (
	embeddingMUS    = ord.NewSliceSer[float32](raw.Float32)
	attributesMUS   = ord.NewMapSer[string, string](ord.String, ord.String)
	fingerprintsMUS = ord.NewSliceSer[FileFingerprint](FileFingerprintMUS)
	timeMUS         = raw.TimeUnixMicroUTC
)

// fields walks a record field by field, stopping at the first error.
type fields struct {
	bs  []byte
	n   int
	err error
}

func (f *fields) id() ID {
	if f.err != nil {
		return 0
	}
	v, n, err := IDMUS.Unmarshal(f.bs[f.n:])
	f.n += n
	f.err = err
	return v
}

func (f *fields) str() string {
	if f.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(f.bs[f.n:])
	f.n += n
	f.err = err
	return v
}

func (f *fields) integer() int {
	if f.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(f.bs[f.n:])
	f.n += n
	f.err = err
	return v
}

func (f *fields) timestamp() time.Time {
	if f.err != nil {
		return time.Time{}
	}
	v, n, err := timeMUS.Unmarshal(f.bs[f.n:])
	f.n += n
	f.err = err
	return v
}

func (f *fields) attributes() map[string]string {
	if f.err != nil {
		return nil
	}
	v, n, err := attributesMUS.Unmarshal(f.bs[f.n:])
	f.n += n
	f.err = err
	if len(v) == 0 {
		return nil
	}
	return v
}

func (f *fields) embedding() []float32 {
	if f.err != nil {
		return nil
	}
	v, n, err := embeddingMUS.Unmarshal(f.bs[f.n:])
	f.n += n
	f.err = err
	if len(v) == 0 {
		return nil
	}
	return v
}

func (f *fields) fingerprints() []FileFingerprint {
	if f.err != nil {
		return nil
	}
	v, n, err := fingerprintsMUS.Unmarshal(f.bs[f.n:])
	f.n += n
	f.err = err
	if len(v) == 0 {
		return nil
	}
	return v
}

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(v ID) int { return varint.Uint64.Size(uint64(v)) }

func (idMUS) Skip(bs []byte) (int, error) { return varint.Uint64.Skip(bs) }

type chunkMUS struct{}

func (s chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(string(v.ProjectID), bs[n:])
	n += ord.String.Marshal(v.Filename, bs[n:])
	n += varint.Int.Marshal(v.Ordinal, bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += embeddingMUS.Marshal(v.Embedding, bs[n:])
	return
}

func (s chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	f := &fields{bs: bs}
	v.ID = f.id()
	v.ProjectID = ProjectID(f.str())
	v.Filename = f.str()
	v.Ordinal = f.integer()
	v.Content = f.str()
	v.Embedding = f.embedding()
	return v, f.n, f.err
}

func (s chunkMUS) Size(v Chunk) int {
	return IDMUS.Size(v.ID) +
		ord.String.Size(string(v.ProjectID)) +
		ord.String.Size(v.Filename) +
		varint.Int.Size(v.Ordinal) +
		ord.String.Size(v.Content) +
		embeddingMUS.Size(v.Embedding)
}

func (s chunkMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type entityMUS struct{}

func (s entityMUS) Marshal(v Entity, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(string(v.ProjectID), bs[n:])
	n += ord.String.Marshal(v.Name, bs[n:])
	n += ord.String.Marshal(string(v.Type), bs[n:])
	n += attributesMUS.Marshal(v.Attributes, bs[n:])
	n += timeMUS.Marshal(v.InsertedAt, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (s entityMUS) Unmarshal(bs []byte) (v Entity, n int, err error) {
	f := &fields{bs: bs}
	v.ID = f.id()
	v.ProjectID = ProjectID(f.str())
	v.Name = f.str()
	v.Type = EntityType(f.str())
	v.Attributes = f.attributes()
	v.InsertedAt = f.timestamp()
	v.UpdatedAt = f.timestamp()
	return v, f.n, f.err
}

func (s entityMUS) Size(v Entity) int {
	return IDMUS.Size(v.ID) +
		ord.String.Size(string(v.ProjectID)) +
		ord.String.Size(v.Name) +
		ord.String.Size(string(v.Type)) +
		attributesMUS.Size(v.Attributes) +
		timeMUS.Size(v.InsertedAt) +
		timeMUS.Size(v.UpdatedAt)
}

func (s entityMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type relationshipMUS struct{}

func (s relationshipMUS) Marshal(v Relationship, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(string(v.ProjectID), bs[n:])
	n += IDMUS.Marshal(v.SourceID, bs[n:])
	n += ord.String.Marshal(v.SourceName, bs[n:])
	n += ord.String.Marshal(string(v.SourceType), bs[n:])
	n += IDMUS.Marshal(v.TargetID, bs[n:])
	n += ord.String.Marshal(v.TargetName, bs[n:])
	n += ord.String.Marshal(string(v.TargetType), bs[n:])
	n += ord.String.Marshal(string(v.Type), bs[n:])
	n += attributesMUS.Marshal(v.Attributes, bs[n:])
	return
}

func (s relationshipMUS) Unmarshal(bs []byte) (v Relationship, n int, err error) {
	f := &fields{bs: bs}
	v.ID = f.id()
	v.ProjectID = ProjectID(f.str())
	v.SourceID = f.id()
	v.SourceName = f.str()
	v.SourceType = EntityType(f.str())
	v.TargetID = f.id()
	v.TargetName = f.str()
	v.TargetType = EntityType(f.str())
	v.Type = RelationType(f.str())
	v.Attributes = f.attributes()
	return v, f.n, f.err
}

func (s relationshipMUS) Size(v Relationship) int {
	return IDMUS.Size(v.ID) +
		ord.String.Size(string(v.ProjectID)) +
		IDMUS.Size(v.SourceID) +
		ord.String.Size(v.SourceName) +
		ord.String.Size(string(v.SourceType)) +
		IDMUS.Size(v.TargetID) +
		ord.String.Size(v.TargetName) +
		ord.String.Size(string(v.TargetType)) +
		ord.String.Size(string(v.Type)) +
		attributesMUS.Size(v.Attributes)
}

func (s relationshipMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type fingerprintMUS struct{}

func (s fingerprintMUS) Marshal(v FileFingerprint, bs []byte) (n int) {
	n = ord.String.Marshal(v.Filename, bs)
	n += timeMUS.Marshal(v.UploadedAt, bs[n:])
	n += ord.String.Marshal(v.ContentHash, bs[n:])
	return
}

func (s fingerprintMUS) Unmarshal(bs []byte) (v FileFingerprint, n int, err error) {
	f := &fields{bs: bs}
	v.Filename = f.str()
	v.UploadedAt = f.timestamp()
	v.ContentHash = f.str()
	return v, f.n, f.err
}

func (s fingerprintMUS) Size(v FileFingerprint) int {
	return ord.String.Size(v.Filename) +
		timeMUS.Size(v.UploadedAt) +
		ord.String.Size(v.ContentHash)
}

func (s fingerprintMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type recordMUS struct{}

func (s recordMUS) Marshal(v ProcessingRecord, bs []byte) (n int) {
	n = ord.String.Marshal(string(v.ProjectID), bs)
	n += varint.Int.Marshal(v.EmbeddingsCount, bs[n:])
	n += varint.Int.Marshal(v.EntitiesCount, bs[n:])
	n += varint.Int.Marshal(v.RelationshipsCount, bs[n:])
	n += varint.Int.Marshal(v.FileCount, bs[n:])
	n += timeMUS.Marshal(v.ProcessedAt, bs[n:])
	n += fingerprintsMUS.Marshal(v.Files, bs[n:])
	return
}

func (s recordMUS) Unmarshal(bs []byte) (v ProcessingRecord, n int, err error) {
	f := &fields{bs: bs}
	v.ProjectID = ProjectID(f.str())
	v.EmbeddingsCount = f.integer()
	v.EntitiesCount = f.integer()
	v.RelationshipsCount = f.integer()
	v.FileCount = f.integer()
	v.ProcessedAt = f.timestamp()
	v.Files = f.fingerprints()
	return v, f.n, f.err
}

func (s recordMUS) Size(v ProcessingRecord) int {
	return ord.String.Size(string(v.ProjectID)) +
		varint.Int.Size(v.EmbeddingsCount) +
		varint.Int.Size(v.EntitiesCount) +
		varint.Int.Size(v.RelationshipsCount) +
		varint.Int.Size(v.FileCount) +
		timeMUS.Size(v.ProcessedAt) +
		fingerprintsMUS.Size(v.Files)
}

func (s recordMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}
