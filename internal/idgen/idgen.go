// Package idgen generates charter identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// CharterPrefix is prepended to every generated charter ID.
const CharterPrefix = "ch-"

// Alphabet is the character set of the random part. It omits look-alike
// characters so ids survive being read aloud or retyped.
const Alphabet = "23456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// Length is the number of random characters (excluding the prefix).
const Length = 12

// NewCharterID returns a new unique charter ID.
func NewCharterID() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return CharterPrefix + id, nil
}
