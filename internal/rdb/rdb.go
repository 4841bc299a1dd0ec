// Package rdb parses the binary RDB snapshot format into a seed keyspace.
// Only loading is implemented; writing a snapshot is out of scope for this
// core.
package rdb

// Opcodes that introduce a record in the RDB byte stream.
const (
	opAux       = 0xFA
	opSelectDB  = 0xFE
	opResizeDB  = 0xFB
	opExpireMS  = 0xFC
	opExpireSec = 0xFD
	opEOF       = 0xFF
)

// Permitted value types for a typed key-value record. Type 0 is a plain
// string; 10..13 are stream records. This loader only ever seeds the
// string keyspace, so a stream-typed record is parsed (to stay in sync
// with the byte stream) and discarded.
const (
	typeString    = 0
	typeStreamMin = 10
	typeStreamMax = 13
)

const magic = "REDIS"

// Entry is one loaded string keyspace record.
type Entry struct {
	Value     string
	ExpiresAt *uint64 // Unix millis, nil if the key never expires
}
