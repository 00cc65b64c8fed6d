package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("snap")
	b := New("snap")

	require.True(t, strings.HasPrefix(a, "snap-"))
	_, err := uuid.Parse(strings.TrimPrefix(a, "snap-"))
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}
