package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/travisbrown/archivindex/pkg/index"
)

func TestTopNComputerKeepsHighestScores(t *testing.T) {
	t.Parallel()

	c := index.NewTopNComputer(2)
	c.PushOrUpdate(1.0, 10)
	c.PushOrUpdate(5.0, 20)
	c.PushOrUpdate(3.0, 30)
	c.PushOrUpdate(2.0, 40)

	got := c.IntoSortedSlice()
	assert.Equal(t, []index.ComparableDoc{
		{Feature: 5.0, Doc: 20},
		{Feature: 3.0, Doc: 30},
	}, got)
}

func TestTopNComputerUpdatesExistingDocToHigherScore(t *testing.T) {
	t.Parallel()

	c := index.NewTopNComputer(3)
	c.PushOrUpdate(1.0, 10)
	c.PushOrUpdate(4.0, 10)
	c.PushOrUpdate(2.0, 20)

	got := c.IntoSortedSlice()
	assert.Equal(t, []index.ComparableDoc{
		{Feature: 4.0, Doc: 10},
		{Feature: 2.0, Doc: 20},
	}, got)
}

func TestTopNComputerTiesBreakOnDocAscending(t *testing.T) {
	t.Parallel()

	c := index.NewTopNComputer(3)
	c.PushOrUpdate(1.0, 30)
	c.PushOrUpdate(1.0, 10)
	c.PushOrUpdate(1.0, 20)

	got := c.IntoSortedSlice()
	assert.Equal(t, []index.ComparableDoc{
		{Feature: 1.0, Doc: 10},
		{Feature: 1.0, Doc: 20},
		{Feature: 1.0, Doc: 30},
	}, got)
}
