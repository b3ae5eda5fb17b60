package chat

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// EncodeFragment converts a fragment to its UTF-8 wire bytes. Invalid
// sequences in text are replaced with U+FFFD.
func EncodeFragment(text string) []byte {
	b, err := unicode.UTF8.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return []byte(text)
	}
	return b
}

// StreamDecoder decodes a UTF-8 byte stream delivered in arbitrary chunks.
// A multi-byte sequence split across chunks is held back until the rest of
// it arrives. It is not safe for concurrent use.
type StreamDecoder struct {
	t       transform.Transformer
	pending []byte
}

// NewStreamDecoder returns a decoder with no carried state.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text decodable from chunk plus any bytes carried over
// from previous calls.
func (d *StreamDecoder) Decode(chunk []byte) string {
	return d.decode(chunk, false)
}

// Flush ends the stream, returning carried bytes as replacement characters.
func (d *StreamDecoder) Flush() string {
	out := d.decode(nil, true)
	d.t.Reset()
	return out
}

func (d *StreamDecoder) decode(chunk []byte, atEOF bool) string {
	src := append(d.pending, chunk...)
	d.pending = nil
	if len(src) == 0 {
		return ""
	}

	// every invalid byte becomes a three byte U+FFFD
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		switch err {
		case nil:
			return string(out)
		case transform.ErrShortDst:
			if nSrc == 0 && nDst == 0 {
				return string(out)
			}
		case transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
			return string(out)
		default:
			return string(out)
		}
	}
}
