// Package idgen issues prefixed, lexically sortable identifiers.
package idgen

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	MediaPrefix = "med"
	JobPrefix   = "job"
	ConnPrefix  = "conn"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a "<prefix>_<ulid>" string in lower case.
func New(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return prefix + "_" + strings.ToLower(id.String())
}

// NewMediaID returns an identifier for a media record.
func NewMediaID() string { return New(MediaPrefix) }

// NewJobID returns an identifier for a queued job.
func NewJobID() string { return New(JobPrefix) }

// NewConnID returns an identifier for a live notifier connection.
func NewConnID() string { return New(ConnPrefix) }

// IsValid reports whether value is a "<prefix>_<ulid>" string.
func IsValid(prefix, value string) bool {
	if !strings.HasPrefix(value, prefix+"_") {
		return false
	}
	_, err := Parse(prefix, value)
	return err == nil
}

// Parse strips the prefix and returns the ULID.
func Parse(prefix, value string) (ulid.ULID, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, prefix+"_")
	return ulid.Parse(strings.ToUpper(value))
}
