package types

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagGroups_Flatten(t *testing.T) {
	groups := TagGroups{
		"subject": {"landscape", "mountain"},
		"artist":  {"someone"},
		"misc":    {},
	}

	tags := groups.Flatten()
	sort.Strings(tags)
	assert.Equal(t, []string{"landscape", "mountain", "someone"}, tags)
}

func TestTagGroups_FlattenEmpty(t *testing.T) {
	assert.Empty(t, TagGroups{}.Flatten())
	assert.Empty(t, TagGroups{"subject": nil}.Flatten())
}
