package ctrace

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces trace and span identifiers.
// Implementations must be safe for concurrent use.
type IDGenerator interface {
	NewID() string
}

// HexGenerator produces 16 lowercase hex characters from 8 random bytes.
type HexGenerator struct{}

// fallback seeds ids when crypto/rand is unavailable.
var fallback atomic.Uint64

// NewID returns a fresh 16-character hex identifier.
func (HexGenerator) NewID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Time plus a counter keeps ids unique within the process.
		n := uint64(time.Now().UnixNano()) ^ fallback.Add(1)<<48
		binary.BigEndian.PutUint64(b[:], n)
	}
	return hex.EncodeToString(b[:])
}

// UUIDGenerator produces 32 lowercase hex characters from a random UUID.
type UUIDGenerator struct{}

// NewID returns a UUID with its dashes removed.
func (UUIDGenerator) NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() string

// NewID calls f.
func (f IDGeneratorFunc) NewID() string {
	return f()
}
