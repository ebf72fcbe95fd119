package storage

import (
	"encoding/binary"
	"fmt"
)

func encodeUint64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("storage: bad uint64 length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
