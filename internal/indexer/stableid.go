package indexer

import (
	"fmt"

	"github.com/google/uuid"
)

// idNamespace is a fixed UUIDv5 namespace. It must never change: ids derived
// under it are the upsert keys in the vector collection, and existing
// deployments rely on re-derived ids matching stored points.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("ingestloom-qdrant"))

// StableSegmentID derives the deterministic id for a segment at a given
// position within a user's file. Identical (userID, relPath, index) triples
// always produce the identical id, which makes re-ingestion of unchanged
// content an overwrite-in-place rather than a duplicate.
func StableSegmentID(userID, relPath string, index int) string {
	name := fmt.Sprintf("%s:%s:%d", userID, relPath, index)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
