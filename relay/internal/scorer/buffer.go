package scorer

import "bytes"

// limitedBuffer keeps at most limit bytes and silently drops the rest so a
// chatty child never blocks on a full pipe. A limit <= 0 keeps everything.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}

	remaining := b.limit - b.buf.Len()
	if remaining >= len(p) {
		return b.buf.Write(p)
	}

	if remaining > 0 {
		b.buf.Write(p[:remaining])
	}
	b.truncated = true
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
