package badger

import (
	"encoding/binary"

	"github.com/poiesic/kbase/core"
)

// Key prefixes for different data types. Every key is prefix NUL project NUL suffix,
// so a project's data of one kind is a contiguous range.
const (
	vectorPrefix       = "vec"
	chunkPrefix        = "chk"
	entityPrefix       = "ent"
	relationshipPrefix = "rel"
	ledgerPrefix       = "ledger"
)

// makeProjectPrefix generates the range prefix for one kind of data in a project.
// Format: kind\x00project\x00
func makeProjectPrefix(kind string, project core.ProjectID) []byte {
	buf := make([]byte, 0, len(kind)+len(project)+2)
	buf = append(buf, kind...)
	buf = append(buf, 0)
	buf = append(buf, project...)
	return append(buf, 0)
}

// makeIDKey appends an ID in BigEndian order so keys sort by ID.
func makeIDKey(kind string, project core.ProjectID, id core.ID) []byte {
	prefix := makeProjectPrefix(kind, project)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

func makeVectorKey(project core.ProjectID, id core.ID) []byte {
	return makeIDKey(vectorPrefix, project, id)
}

func makeChunkKey(project core.ProjectID, id core.ID) []byte {
	return makeIDKey(chunkPrefix, project, id)
}

func makeEntityKey(project core.ProjectID, id core.ID) []byte {
	return makeIDKey(entityPrefix, project, id)
}

func makeRelationshipKey(project core.ProjectID, id core.ID) []byte {
	return makeIDKey(relationshipPrefix, project, id)
}

// makeLedgerKey generates the single ledger key of a project.
func makeLedgerKey(project core.ProjectID) []byte {
	return makeProjectPrefix(ledgerPrefix, project)
}
