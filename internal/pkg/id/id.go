package id

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time and safe for use as DynamoDB partition keys.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewCorrelation returns a random UUID used to link an asynchronous request
// (astrology reading, delayed job) to its eventual result.
func NewCorrelation() string {
	return uuid.NewString()
}
