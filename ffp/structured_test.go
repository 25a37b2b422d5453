package ffp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileListFixture is an M661 payload captured from a printer.
var fileListFixture = []byte{
	0x44, 0xaa, 0xaa, 0x44, 0x00, 0x00, 0x00, 0x05,
	0x3a, 0x3a, 0xa3, 0xa3, 0x00, 0x00, 0x00, 0x0c,
	0x2f, 0x64, 0x61, 0x74, 0x61, 0x2f, 0x4e, 0x4d,
	0x33, 0x2e, 0x67, 0x78, 0x3a, 0x3a, 0xa3, 0xa3,
	0x00, 0x00, 0x00, 0x17, 0x2f, 0x64, 0x61, 0x74,
	0x61, 0x2f, 0x6e, 0x6f, 0x7a, 0x7a, 0x6c, 0x65,
	0x5f, 0x72, 0x65, 0x6d, 0x6f, 0x76, 0x65, 0x72,
	0x2e, 0x67, 0x78, 0x3a, 0x3a, 0xa3, 0xa3, 0x00,
	0x00, 0x00, 0x13, 0x2f, 0x64, 0x61, 0x74, 0x61,
	0x2f, 0x46, 0x69, 0x67, 0x68, 0x74, 0x65, 0x72,
	0x5f, 0x30, 0x31, 0x2e, 0x67, 0x78, 0x3a, 0x3a,
	0xa3, 0xa3, 0x00, 0x00, 0x00, 0x17, 0x2f, 0x64,
	0x61, 0x74, 0x61, 0x2f, 0x42, 0x75, 0x66, 0x66,
	0x5f, 0x42, 0x65, 0x65, 0x72, 0x5f, 0x6d, 0x75,
	0x67, 0x73, 0x2e, 0x67, 0x78, 0x3a, 0x3a, 0xa3,
	0xa3, 0x00, 0x00, 0x00, 0x15, 0x2f, 0x64, 0x61,
	0x74, 0x61, 0x2f, 0x32, 0x30, 0x6d, 0x6d, 0x5f,
	0x42, 0x6f, 0x78, 0x2d, 0x50, 0x4c, 0x41, 0x2e,
	0x67, 0x78,
}

func u32(vals ...uint32) []byte {
	out := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	return out
}

func TestDecodeFileList(t *testing.T) {
	r := bytes.NewReader(fileListFixture)

	v, err := Decode(r)
	require.NoError(t, err)

	want := List{
		Text("/data/NM3.gx"),
		Text("/data/nozzle_remover.gx"),
		Text("/data/Fighter_01.gx"),
		Text("/data/Buff_Beer_mugs.gx"),
		Text("/data/20mm_Box-PLA.gx"),
	}
	assert.Equal(t, want, v)
	assert.Zero(t, r.Len(), "input not fully consumed")
}

func TestDecodeNested(t *testing.T) {
	data := u32(ListTag, 2, ListTag, 0, TextTag, 2)
	data = append(data, 'o', 'k')

	v, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, List{List{}, Text("ok")}, v)
}

func TestDecodeListLimit(t *testing.T) {
	for _, count := range []uint32{MaxListLen + 1, 1 << 20, 0xFFFFFFFF} {
		// Nothing follows the count; a decoder that tried to read children
		// would fail with io.EOF instead.
		r := bytes.NewReader(u32(ListTag, count))

		_, err := Decode(r)
		var limitErr *ResourceLimitError
		require.ErrorAs(t, err, &limitErr, "count %d", count)
		assert.Equal(t, uint64(count), limitErr.Size)
		assert.Zero(t, r.Len())
	}

	// The limit itself is allowed.
	_, err := Decode(bytes.NewReader(u32(ListTag, MaxListLen)))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeNestedListsBoundMemory(t *testing.T) {
	// Every level declares the maximum count and then runs out of input.
	data := bytes.Repeat(u32(ListTag, MaxListLen), MaxDepth)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := Decode(bytes.NewReader(data))
	runtime.ReadMemStats(&after)

	assert.ErrorIs(t, err, io.EOF)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
}

func TestDecodeDepthLimit(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"full lists", bytes.Repeat(u32(ListTag, MaxListLen), 300)},
		{"single element chain", bytes.Repeat(u32(ListTag, 1), 100000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))

			var limitErr *ResourceLimitError
			require.ErrorAs(t, err, &limitErr)
			assert.Equal(t, "list nesting", limitErr.What)
			assert.Equal(t, uint64(MaxDepth), limitErr.Limit)
		})
	}

	// The deepest allowed nesting still decodes.
	data := bytes.Repeat(u32(ListTag, 1), MaxDepth-1)
	data = append(data, u32(ListTag, 0)...)
	v, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	depth := 0
	for l, ok := v.(List); ok; l, ok = l[0].(List) {
		depth++
		if len(l) == 0 {
			break
		}
	}
	assert.Equal(t, MaxDepth, depth)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		check func(t *testing.T, err error)
	}{
		{
			name:  "empty input",
			input: nil,
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, io.EOF) },
		},
		{
			name:  "truncated tag",
			input: []byte{0x44, 0xaa},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, io.ErrUnexpectedEOF) },
		},
		{
			name:  "truncated text",
			input: append(u32(TextTag, 10), "short"...),
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, io.ErrUnexpectedEOF) },
		},
		{
			name:  "truncated list",
			input: append(u32(ListTag, 2, TextTag, 1), 'a'),
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, io.EOF) },
		},
		{
			name:  "invalid utf-8",
			input: append(u32(TextTag, 2), 0xff, 0xfe),
			check: func(t *testing.T, err error) {
				var decErr *DecodeError
				require.ErrorAs(t, err, &decErr)
				assert.Equal(t, []byte{0xff, 0xfe}, decErr.Raw)
			},
		},
		{
			name:  "blob tag",
			input: u32(BlobTag, 4, 0),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotImplemented)
				var decErr *DecodeError
				assert.ErrorAs(t, err, &decErr)
			},
		},
		{
			name:  "unknown tag",
			input: u32(0x12345678),
			check: func(t *testing.T, err error) {
				var decErr *DecodeError
				require.ErrorAs(t, err, &decErr)
				assert.Contains(t, decErr.Error(), "0x12345678")
				assert.False(t, errors.Is(err, ErrNotImplemented))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.input))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestStrings(t *testing.T) {
	got, err := Strings(List{Text("/data/a.gx"), Text("/data/b.gx")})
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/a.gx", "/data/b.gx"}, got)

	got, err = Strings(List{})
	require.NoError(t, err)
	assert.Empty(t, got)

	var typeErr *TypeError
	_, err = Strings(Text("/data/a.gx"))
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "list", typeErr.Want)

	_, err = Strings(List{Text("/data/a.gx"), List{}})
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "text", typeErr.Want)
	assert.Contains(t, err.Error(), "got list")
}
