package radixtree

import "testing"

func TestPackRecord24Bit(t *testing.T) {
	buf := make([]byte, 6)
	packRecord(buf, 24, 0x123456, 0)
	want := []byte{0x12, 0x34, 0x56, 0x00, 0x00, 0x00}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("packRecord(24) = % x, want % x", buf, want)
		}
	}
}

func TestPackRecord32Bit(t *testing.T) {
	buf := make([]byte, 8)
	packRecord(buf, 32, 0x01020304, 0x05060708)
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("packRecord(32) = % x, want % x", buf, want)
		}
	}
}

func TestPackRecord28BitMiddleByteNibbles(t *testing.T) {
	buf := make([]byte, 7)
	// left's bits 24-27 (the 28-bit value's high nibble) are 0xA; right's
	// are 0x0, so the packed middle byte should read (0xA<<4)|0x0 = 0xA0.
	left := uint32(0xABCDEF1) // 28 bits: nibble 0xA in bits24-27
	right := uint32(0x0123456)
	packRecord(buf, 28, left, right)

	wantMiddle := byte(0xA << 4)
	if buf[3] != wantMiddle {
		t.Errorf("middle byte = %#x, want %#x", buf[3], wantMiddle)
	}

	gotLeftTriple := []byte{buf[0], buf[1], buf[2]}
	wantLeftTriple := []byte{byte(left >> 16), byte(left >> 8), byte(left)}
	for i := range wantLeftTriple {
		if gotLeftTriple[i] != wantLeftTriple[i] {
			t.Errorf("left triple = % x, want % x", gotLeftTriple, wantLeftTriple)
		}
	}
	gotRightTriple := []byte{buf[4], buf[5], buf[6]}
	wantRightTriple := []byte{byte(right >> 16), byte(right >> 8), byte(right)}
	for i := range wantRightTriple {
		if gotRightTriple[i] != wantRightTriple[i] {
			t.Errorf("right triple = % x, want % x", gotRightTriple, wantRightTriple)
		}
	}
}

func TestBytesPerRecord(t *testing.T) {
	cases := map[int]int{24: 6, 28: 7, 32: 8}
	for recordSize, want := range cases {
		if got := bytesPerRecord(recordSize); got != want {
			t.Errorf("bytesPerRecord(%d) = %d, want %d", recordSize, got, want)
		}
	}
}
