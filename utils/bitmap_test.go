package utils

import (
	"math/rand"
	"testing"
)

func TestBitmapSetGet(t *testing.T) {
	var bm Bitmap
	entries := []uint32{0, 1, 63, 64, 65, 200}
	for _, j := range entries {
		bm.Set(j)
	}
	for _, j := range entries {
		if !bm.Get(j) {
			t.Fatal("bit not set: ", j)
		}
	}
	for _, j := range []uint32{2, 62, 66, 199, 201, 100000} {
		if bm.Get(j) {
			t.Fatal("bit unexpectedly set: ", j)
		}
	}
	bm.Zeroes()
	for _, j := range entries {
		if bm.Get(j) {
			t.Fatal("bit survived Zeroes: ", j)
		}
	}
}

func TestBitmapQuickSetInRange(t *testing.T) {
	var bm Bitmap
	bm.Grow(255)
	for i := 0; i < 1000; i++ {
		j := rand.Uint32() % 256
		if !bm.QuickSet(j) {
			t.Fatal("QuickSet failed in range: ", j)
		}
		if !bm.Get(j) {
			t.Fatal("bit not set: ", j)
		}
	}
	if bm.QuickSet(100000) {
		t.Fatal("QuickSet succeeded out of range")
	}
}
