package openfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddCloseRefCounts(t *testing.T) {
	assert := assert.New(t)
	tbl := New()
	tbl.AddOpenFile(5)
	tbl.AddOpenFile(5)
	assert.EqualValues(1, tbl.CloseOpenFile(5), "one remaining open instance")
	assert.EqualValues(0, tbl.CloseOpenFile(5), "no remaining open instances")
}

func TestCloseAbsentReturnsNegativeOne(t *testing.T) {
	assert.EqualValues(t, -1, New().CloseOpenFile(99))
}

func TestSetToBeRemovedImmediateWhenNotOpen(t *testing.T) {
	assert.True(t, New().SetToBeRemoved(7), "immediate removal permission for a sector with no entry")
}

func TestSetToBeRemovedDeferredWhileOpen(t *testing.T) {
	assert := assert.New(t)
	tbl := New()
	tbl.AddOpenFile(7)
	assert.False(tbl.SetToBeRemoved(7), "deferred removal while an instance is still open")
	assert.True(tbl.GetToBeRemoved(7), "pending-delete flag latched")
	tbl.CloseOpenFile(7)
	assert.True(tbl.SetToBeRemoved(7), "removal permitted once the last instance closed")
}

func TestIsOpenAndRemoveOpenFile(t *testing.T) {
	assert := assert.New(t)
	tbl := New()
	assert.False(tbl.IsOpen(3), "sector 3 starts out closed")
	tbl.AddOpenFile(3)
	assert.True(tbl.IsOpen(3), "sector 3 open after AddOpenFile")
	tbl.RemoveOpenFile(3)
	assert.False(tbl.IsOpen(3), "sector 3 gone after RemoveOpenFile")
}

func TestAddOpenFileReusesController(t *testing.T) {
	tbl := New()
	c1 := tbl.AddOpenFile(11)
	c2 := tbl.AddOpenFile(11)
	assert.Same(t, c1, c2, "repeated AddOpenFile on the same sector shares one controller")
}
