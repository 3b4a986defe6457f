package openfile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nachosfs/nachosfs/synch"
)

func TestConcurrentReadersAllowed(t *testing.T) {
	assert := assert.New(t)
	ac := newAccessController()
	r1 := synch.NewThread("r1", 10)
	r2 := synch.NewThread("r2", 10)

	ac.BeginRead(r1)
	ac.BeginRead(r2)
	assert.Equal(2, ac.Readers())
	ac.EndRead(r1)
	ac.EndRead(r2)
	assert.Equal(0, ac.Readers())
}

func TestWriteWaitsForReadersToDrain(t *testing.T) {
	ac := newAccessController()
	r := synch.NewThread("r", 10)
	w := synch.NewThread("w", 10)

	ac.BeginRead(r)

	done := make(chan struct{})
	go func() {
		ac.BeginWrite(w)
		close(done)
		ac.EndWrite(w)
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("writer proceeded while a reader was still active")
	default:
	}

	ac.EndRead(r)
	<-done
}

func TestEndWriteByNonWriterPanics(t *testing.T) {
	ac := newAccessController()
	w := synch.NewThread("w", 10)
	other := synch.NewThread("other", 10)
	ac.BeginWrite(w)
	defer func() {
		if recover() == nil {
			t.Fatal("expected EndWrite by a non-owner to panic")
		}
		ac.EndWrite(w)
	}()
	ac.EndWrite(other)
}
