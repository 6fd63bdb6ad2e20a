package engine

import (
	"testing"
)

func TestBufferPool_DefaultSize(t *testing.T) {
	bp := NewBufferPool(0)

	buf := bp.Get()
	if buf == nil {
		t.Fatalf("expected a valid buffer pointer, got nil")
	}
	if len(*buf) != DefaultBufferSize || bp.Size() != DefaultBufferSize {
		t.Errorf("expected buffer size %d, got %d", DefaultBufferSize, len(*buf))
	}
	bp.Put(buf)
}

func TestBufferPool_CustomSize(t *testing.T) {
	bp := NewBufferPool(8192)

	buf := bp.Get()
	if len(*buf) != 8192 {
		t.Errorf("expected buffer size 8192, got %d", len(*buf))
	}
	bp.Put(buf)

	if again := bp.Get(); len(*again) != 8192 {
		t.Errorf("expected reused buffer size 8192, got %d", len(*again))
	}
}

func TestBufferPool_PutIgnoresForeignBuffers(t *testing.T) {
	bp := NewBufferPool(16)
	small := make([]byte, 4)
	bp.Put(&small)
	bp.Put(nil)

	if buf := bp.Get(); len(*buf) != 16 {
		t.Errorf("pool returned a %d-byte buffer", len(*buf))
	}
}
