package protocols

import "encoding/binary"

// Instruction data for programs without generated builders is packed by
// hand. Everything on the wire here is little-endian.

func appendU32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

func appendI64(b []byte, v int64) []byte {
	return appendU64(b, uint64(v))
}

// appendRustString packs a string the way the system program expects seeds:
// a u64 length prefix followed by the raw bytes.
func appendRustString(b []byte, s string) []byte {
	b = appendU64(b, uint64(len(s)))
	return append(b, s...)
}
