package idgen

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMediaID(t *testing.T) {
	id := NewMediaID()
	assert.True(t, IsValid(MediaPrefix, id))
	assert.False(t, IsValid(JobPrefix, id))
	assert.False(t, IsValid(MediaPrefix, "med_not-a-ulid"))
}

func TestIDsAreSortable(t *testing.T) {
	ids := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		ids = append(ids, NewJobID())
	}
	require.True(t, sort.StringsAreSorted(ids))
}
