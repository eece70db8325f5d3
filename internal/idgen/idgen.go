// Package idgen generates short, URL-safe ids for locally owned records.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes keep local ids visibly distinct from numeric CRM ids.
const (
	EventPrefix  = "ev-"
	StatusPrefix = "st-"
)

// Alphabet defines the character set of the random part.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters, prefix excluded.
var Length = 12

// New returns prefix followed by a random nanoid.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
