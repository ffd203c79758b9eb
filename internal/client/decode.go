package client

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// chunkDecoder turns a stream of byte chunks into text. A rune split across
// two chunks is held back until the rest of it arrives; invalid bytes become
// U+FFFD.
type chunkDecoder struct {
	t       transform.Transformer
	pending []byte
}

func newChunkDecoder() *chunkDecoder {
	return &chunkDecoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text completed by chunk. final flushes anything held back.
func (d *chunkDecoder) Decode(chunk []byte, final bool) string {
	src := make([]byte, 0, len(d.pending)+len(chunk))
	src = append(src, d.pending...)
	src = append(src, chunk...)
	d.pending = nil

	if len(src) == 0 {
		return ""
	}

	// Each invalid byte expands to the 3-byte replacement character.
	dst := make([]byte, 3*len(src)+4)
	nDst, nSrc, err := d.t.Transform(dst, src, final)
	if err == transform.ErrShortSrc {
		d.pending = src[nSrc:]
	}
	return string(dst[:nDst])
}
