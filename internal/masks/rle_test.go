// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package masks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segflow/trackd/internal/domain/session/ports"
)

func TestCodec_EncodeDecode_RoundTrips(t *testing.T) {
	bm := Bitmap{
		Height: 4,
		Width:  3,
		Data: []byte{
			0, 0, 1, 1,
			0, 1, 1, 0,
			1, 1, 0, 0,
		},
	}

	codec := Codec{}
	encoded, err := codec.Encode(bm)
	require.NoError(t, err)
	assert.Equal(t, [2]int{4, 3}, encoded.Size)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	got, ok := decoded.(Bitmap)
	require.True(t, ok)

	assert.Equal(t, bm.Height, got.Height)
	assert.Equal(t, bm.Width, got.Width)
	assert.Equal(t, bm.Data, got.Data)
}

func TestCodec_Encode_AllZeros(t *testing.T) {
	bm := Bitmap{Height: 2, Width: 2, Data: []byte{0, 0, 0, 0}}
	codec := Codec{}
	encoded, err := codec.Encode(bm)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	got := decoded.(Bitmap)
	assert.Equal(t, bm.Data, got.Data)
}

func TestCodec_Encode_AllOnes(t *testing.T) {
	bm := Bitmap{Height: 2, Width: 2, Data: []byte{1, 1, 1, 1}}
	codec := Codec{}
	encoded, err := codec.Encode(bm)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	got := decoded.(Bitmap)
	assert.Equal(t, bm.Data, got.Data)
}

func TestCodec_Encode_RejectsMismatchedLength(t *testing.T) {
	bm := Bitmap{Height: 2, Width: 2, Data: []byte{1, 0}}
	_, err := Codec{}.Encode(bm)
	assert.Error(t, err)
}

func TestCodec_Encode_RejectsWrongType(t *testing.T) {
	_, err := Codec{}.Encode("not a bitmap")
	assert.Error(t, err)
}

func TestCodec_Decode_RejectsInvalidSize(t *testing.T) {
	_, err := Codec{}.Decode(ports.RLEMask{Size: [2]int{0, 0}, Counts: "0"})
	assert.Error(t, err)
}

func TestCodec_Decode_RejectsTruncatedCounts(t *testing.T) {
	_, err := Codec{}.Decode(ports.RLEMask{Size: [2]int{2, 2}, Counts: string([]byte{0x30 | 0x20})})
	assert.Error(t, err)
}

func TestEncodeDecodeCountsToString_RoundTrips(t *testing.T) {
	counts := []int{0, 3, 1000, 5, 0, 42}
	s := encodeCountsToString(counts)
	got, err := decodeCountsFromString(s)
	require.NoError(t, err)
	assert.Equal(t, counts, got)
}

func TestEncodeCounts_AlternatesRuns(t *testing.T) {
	data := []byte{0, 0, 1, 1, 1, 0}
	counts := encodeCounts(data)
	assert.Equal(t, []int{2, 3, 1}, counts)
}

