package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationClamps(t *testing.T) {
	p := NewPagination(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.Limit())
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 0)
	assert.Equal(t, 20, p.PageSize)
	assert.Equal(t, 40, p.Offset())
}

func TestNewPagedResultTotalPages(t *testing.T) {
	res := NewPagedResult([]int{1, 2}, 41, NewPagination(1, 20))
	assert.Equal(t, 3, res.TotalPages)

	res = NewPagedResult([]int{}, 0, Pagination{})
	assert.Equal(t, 0, res.TotalPages)
	assert.Equal(t, 20, res.PageSize)
}
