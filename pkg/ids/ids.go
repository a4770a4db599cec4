package ids

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// New returns a unique identifier for a freshly created record.
//
// It prefers a random (version 4) UUID drawn from the secure source. If that
// source is unavailable it falls back to a base36 millisecond timestamp with
// a random suffix, which is unique enough for a single-writer data set.
func New() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + strconv.FormatInt(rand.Int63(), 36)
}
