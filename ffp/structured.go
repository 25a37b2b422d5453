package ffp

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// Tags of the structured (TLV) reply format. All integers are big-endian u32.
const (
	ListTag uint32 = 0x44AAAA44
	TextTag uint32 = 0x3A3AA3A3
	BlobTag uint32 = 0x2A2AA2A2

	// MaxListLen bounds the declared element count of a list.
	MaxListLen = 65536
	// MaxDepth bounds how deeply lists may nest.
	MaxDepth = 32
)

// Value is a decoded structured value: Text, List or Blob.
type Value interface {
	isValue()
}

// Text is a UTF-8 string value.
type Text string

// List is an ordered sequence of values.
type List []Value

// Blob is a raw byte value. The decoder never produces it: no reply sample
// with the blob tag is known.
type Blob []byte

func (Text) isValue() {}
func (List) isValue() {}
func (Blob) isValue() {}

func kindOf(v Value) string {
	switch v.(type) {
	case Text:
		return "text"
	case List:
		return "list"
	case Blob:
		return "blob"
	case nil:
		return "nothing"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Decode reads one structured value from r. Short reads return the reader's
// error unchanged (io.EOF or io.ErrUnexpectedEOF).
func Decode(r io.Reader) (Value, error) {
	return decode(r, 0)
}

func decode(r io.Reader, depth int) (Value, error) {
	var hdr [8]byte

	if _, err := io.ReadFull(r, hdr[:4]); err != nil {
		return nil, err
	}
	tag := binary.BigEndian.Uint32(hdr[:4])

	switch tag {
	case ListTag:
		if _, err := io.ReadFull(r, hdr[4:]); err != nil {
			return nil, err
		}
		count := binary.BigEndian.Uint32(hdr[4:])
		if count > MaxListLen {
			return nil, &ResourceLimitError{What: "list", Size: uint64(count), Limit: MaxListLen}
		}
		if depth >= MaxDepth {
			return nil, &ResourceLimitError{What: "list nesting", Size: uint64(depth + 1), Limit: MaxDepth}
		}
		// count is untrusted; grow the list only as elements arrive.
		list := List{}
		for i := uint32(0); i < count; i++ {
			v, err := decode(r, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil

	case TextTag:
		if _, err := io.ReadFull(r, hdr[4:]); err != nil {
			return nil, err
		}
		size := binary.BigEndian.Uint32(hdr[4:])
		// size is untrusted; grow the buffer only as bytes arrive.
		buf, err := io.ReadAll(io.LimitReader(r, int64(size)))
		if err != nil {
			return nil, err
		}
		if uint32(len(buf)) != size {
			return nil, io.ErrUnexpectedEOF
		}
		if !utf8.Valid(buf) {
			return nil, &DecodeError{Msg: "text is not valid UTF-8", Raw: buf}
		}
		return Text(buf), nil

	case BlobTag:
		return nil, &DecodeError{Msg: fmt.Sprintf("blob tag 0x%08X", tag), Raw: hdr[:4], Err: ErrNotImplemented}

	default:
		return nil, &DecodeError{Msg: fmt.Sprintf("unknown tag 0x%08X", tag), Raw: hdr[:4]}
	}
}

// Strings extracts a file listing: v must be a List whose elements are all Text.
func Strings(v Value) ([]string, error) {
	list, ok := v.(List)
	if !ok {
		return nil, &TypeError{Want: "list", Got: v}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(Text)
		if !ok {
			return nil, &TypeError{Want: "text", Got: item}
		}
		out = append(out, string(s))
	}
	return out, nil
}
