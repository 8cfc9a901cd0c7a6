package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetTags(t *testing.T) {
	tags, err := targetTags(1)
	require.NoError(t, err)
	assert.Empty(t, tags)

	tags, err = targetTags(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"vl53l5cx_targets3"}, tags)

	_, err = targetTags(5)
	assert.Error(t, err)
}

func TestParseTargetCounts(t *testing.T) {
	counts, err := parseTargetCounts("1, 2,4")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, counts)

	_, err = parseTargetCounts("1,x")
	assert.Error(t, err)
	_, err = parseTargetCounts("0")
	assert.Error(t, err)
}
