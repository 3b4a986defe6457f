package directory

import (
	"testing"

	"github.com/nachosfs/nachosfs/common"
)

func TestAddFindRemove(t *testing.T) {
	d := New()
	if !d.Add("foo", 5, false) {
		t.Fatal("expected Add to succeed")
	}
	s, ok := d.Find("foo")
	if !ok || s != 5 {
		t.Fatalf("expected to find foo at sector 5, got %d ok=%v", s, ok)
	}
	if d.Add("foo", 6, false) {
		t.Fatal("expected duplicate Add to fail")
	}
	if !d.Remove("foo") {
		t.Fatal("expected Remove to succeed")
	}
	if _, ok := d.Find("foo"); ok {
		t.Fatal("expected foo to be gone after Remove")
	}
}

func TestRootIsOwnParent(t *testing.T) {
	d := New()
	d.InitRoot()
	if d.Parent() != common.RootDirSector {
		t.Fatalf("expected root's \"..\" to point at itself (sector %d), got %d", common.RootDirSector, d.Parent())
	}
}

func TestIsEmptyIgnoresDotDot(t *testing.T) {
	d := New()
	d.InitChild(1)
	if !d.IsEmpty() {
		t.Fatal("a directory with only \"..\" should be empty")
	}
	d.Add("x", 9, false)
	if d.IsEmpty() {
		t.Fatal("expected non-empty after Add")
	}
}

type fakeFile struct{ data []byte }

func (f *fakeFile) ReadAt(buf []byte, n uint64, pos uint64) uint64 {
	return uint64(copy(buf[:n], f.data[pos:]))
}
func (f *fakeFile) WriteAt(buf []byte, n uint64, pos uint64) uint64 {
	copy(f.data[pos:pos+n], buf[:n])
	return n
}

func TestFetchWriteBackRoundTrip(t *testing.T) {
	d := New()
	d.InitChild(1)
	d.Add("hello.txt", 42, false)
	d.Add("sub", 43, true)

	f := &fakeFile{data: make([]byte, EntrySize*64)}
	d.WriteBack(f)

	d2 := New()
	d2.FetchFrom(f)

	if s, ok := d2.Find("hello.txt"); !ok || s != 42 {
		t.Fatalf("round trip lost hello.txt: %d %v", s, ok)
	}
	if s, ok := d2.FindDir("sub"); !ok || s != 43 {
		t.Fatalf("round trip lost sub: %d %v", s, ok)
	}
}

func TestNameTooLongRejected(t *testing.T) {
	d := New()
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	if d.Add(string(long), 1, false) {
		t.Fatal("expected overly long name to be rejected")
	}
}
