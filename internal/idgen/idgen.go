// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// ID prefixes, one per persisted entity.
const (
	CyclePrefix        = "bc-"
	SegmentPrefix      = "sg-"
	SegmentCyclePrefix = "sc-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

func NewCycleID() (string, error)        { return GenerateWithPrefix(CyclePrefix) }
func NewSegmentID() (string, error)      { return GenerateWithPrefix(SegmentPrefix) }
func NewSegmentCycleID() (string, error) { return GenerateWithPrefix(SegmentCyclePrefix) }

// HasPrefix reports whether id was generated for the entity with prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix) && len(id) == len(prefix)+Length
}
