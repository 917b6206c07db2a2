package core

import (
	"crypto/rand"
	"math/big"
)

const (
	// RoomCodeLength is the number of characters in a room code.
	RoomCodeLength = 5
	// roomCodeAlphabet omits 0/O and 1/I.
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxCodeAttempts  = 64
)

// CodeGenerator produces candidate room codes.
type CodeGenerator func() string

// RandomCode returns a random room code from the unambiguous alphabet.
func RandomCode() string {
	buf := make([]byte, RoomCodeLength)
	limit := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		buf[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(buf)
}
