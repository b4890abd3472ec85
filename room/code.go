package room

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// AccessCodeLength is the number of ASCII digits in an access code.
const AccessCodeLength = 6

// maxCodeAttempts bounds the regenerate-on-collision loop. With a million
// possible codes this only trips when the active-room population approaches
// the code space.
const maxCodeAttempts = 1000

// ErrCodeSpaceExhausted indicates no unused access code could be generated.
var ErrCodeSpaceExhausted = errors.New("access code space exhausted")

var codeSpace = big.NewInt(1000000)

// generateCode produces a random 6-digit access code, zero padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
