package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkClearTest(t *testing.T) {
	assert := assert.New(t)
	b := New(16)
	assert.False(b.Test(3))
	b.Mark(3)
	assert.True(b.Test(3))
	b.Clear(3)
	assert.False(b.Test(3))
}

func TestFindMarksFirstClear(t *testing.T) {
	assert := assert.New(t)
	b := New(4)
	b.Mark(0)
	b.Mark(1)
	idx, ok := b.Find()
	assert.True(ok)
	assert.EqualValues(2, idx)
	assert.True(b.Test(2), "Find should mark the bit it returns")
}

func TestFindExhausted(t *testing.T) {
	b := New(2)
	b.Mark(0)
	b.Mark(1)
	_, ok := b.Find()
	assert.False(t, ok, "Find should fail on a full bitmap")
}

func TestCountClear(t *testing.T) {
	b := New(8)
	b.Mark(0)
	b.Mark(1)
	assert.EqualValues(t, 6, b.CountClear())
}

func TestCloneIsIndependent(t *testing.T) {
	assert := assert.New(t)
	b := New(8)
	b.Mark(1)
	cp := b.Clone()
	cp.Mark(2)
	assert.False(b.Test(2), "mutating clone should not affect original")
	assert.True(cp.Test(1), "clone should carry over original bits")
}

type fakeFile struct {
	data []byte
}

func (f *fakeFile) ReadAt(buf []byte, n uint64, pos uint64) uint64 {
	c := uint64(copy(buf[:n], f.data[pos:]))
	return c
}

func (f *fakeFile) WriteAt(buf []byte, n uint64, pos uint64) uint64 {
	copy(f.data[pos:pos+n], buf[:n])
	return n
}

func TestFetchWriteBackRoundTrip(t *testing.T) {
	assert := assert.New(t)
	b := New(64)
	b.Mark(5)
	b.Mark(40)

	f := &fakeFile{data: make([]byte, len(b.Bytes()))}
	b.WriteBack(f)

	b2 := New(64)
	b2.FetchFrom(f)
	assert.True(b2.Test(5))
	assert.True(b2.Test(40))
	assert.Equal(b.CountClear(), b2.CountClear(), "round trip should not change clear count")
}
