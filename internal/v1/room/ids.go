package room

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// roomCodeAlphabet excludes visually ambiguous characters (0/O, 1/I/L,
// 8/B, etc.) so spoken or handwritten invite codes stay unambiguous.
const roomCodeAlphabet = "23456789ACDEFGHJKMNPQRTUVWXY"

const roomCodeLength = 6

func newID() string {
	return uuid.NewString()
}

func newEpochID() string {
	return uuid.NewString()
}

// newRoomCode mints a roomCodeLength-character code from
// roomCodeAlphabet using a CSPRNG; collisions are handled by the
// store's uniqueness-retry loop, not here.
func newRoomCode() (string, error) {
	b := make([]byte, roomCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}
