// SPDX-License-Identifier: MIT
package coordinator

import (
	"crypto/rand"
	"encoding/hex"
)

// idLen is the width of a generated node or session identifier, matching
// the original registry's fixed-width opaque token (CUID_LEN in the source
// this spec was distilled from).
const idLen = 25

// NewID generates a new collision-resistant fixed-width identifier, used
// both for node_id (on first registration) and session_id (once per
// process lifetime). Grounded on the teacher's generateNodeID
// (src/server/service/cluster/cluster.go), widened to a fixed byte count
// and hex-encoded rather than hostname-prefixed, since node identity here
// is a database row key, not a hostname-debugging aid.
func NewID() string {
	b := make([]byte, idLen/2+1)
	if _, err := rand.Read(b); err != nil {
		panic("coordinator: failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)[:idLen]
}

// EmptyID reports whether id is unset.
func EmptyID(id string) bool {
	return id == ""
}
