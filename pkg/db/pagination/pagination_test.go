package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorToken(t *testing.T) {
	at := time.Date(2024, time.June, 30, 9, 15, 0, 123, time.UTC)
	cursor, err := ParseCursor(Cursor{ID: 42, CreatedAt: at}.Token())
	require.NoError(t, err)
	assert.EqualValues(t, 42, cursor.ID)
	assert.True(t, at.Equal(cursor.CreatedAt))

	empty, err := Pagination{PageToken: " "}.Cursor()
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseCursor("not base64!")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
	_, err = ParseCursor("e30") // {}
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestTrim(t *testing.T) {
	at := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	cursorOf := func(v int) Cursor { return Cursor{ID: 100, CreatedAt: at} }

	page, info := Trim([]int{1, 2, 3}, 2, cursorOf)
	assert.Equal(t, []int{1, 2}, page)
	assert.True(t, info.HasMore)
	assert.Equal(t, Cursor{ID: 100, CreatedAt: at}.Token(), info.NextPageToken)

	page, info = Trim([]int{1}, 2, cursorOf)
	assert.Equal(t, []int{1}, page)
	assert.False(t, info.HasMore)
}

func TestSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Size())
}
