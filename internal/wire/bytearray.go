package wire

// ByteArray is a growable byte buffer whose logical length is tracked
// separately from its capacity.
//
// A ByteArray is owned by the Reader filling it until it is handed to
// ParseResponse, which takes ownership of the underlying bytes.
type ByteArray struct {
	buf []byte
	n   int
}

// NewByteArray allocates a ByteArray with the provided capacity.
func NewByteArray(size int) *ByteArray {
	return &ByteArray{buf: make([]byte, size)}
}

// Bytes returns the bytes up to the logical length.
func (ba *ByteArray) Bytes() []byte {
	return ba.buf[:ba.n]
}

// Len returns the logical length.
func (ba *ByteArray) Len() int {
	return ba.n
}

// Cap returns the current capacity.
func (ba *ByteArray) Cap() int {
	return len(ba.buf)
}

// Grow extends the capacity by inc bytes, preserving the contents.
func (ba *ByteArray) Grow(inc int) {
	buf := make([]byte, len(ba.buf)+inc)
	copy(buf, ba.buf[:ba.n])
	ba.buf = buf
}

// Reset sets the logical length to zero.
func (ba *ByteArray) Reset() {
	ba.n = 0
}

func (ba *ByteArray) append(b byte) {
	ba.buf[ba.n] = b
	ba.n++
}

// detach hands over the bytes and leaves the ByteArray empty.
func (ba *ByteArray) detach() []byte {
	b := ba.buf[:ba.n]
	ba.buf = nil
	ba.n = 0
	return b
}
