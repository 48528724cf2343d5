package block

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/gochaorg/logd/internal/buffer"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := Block{
		BlockID:    3,
		DataTypeID: UserDataTypeID,
		BackRefs:   []BackRef{{BlockID: 2, Offset: 100}, {BlockID: 0, Offset: 0}},
		Options:    map[string]string{"mime": "text/plain", "time": "2024-01-01"},
		Payload:    []byte("hello world"),
	}

	buf, headSize, dataSize, tailSz, err := Encode(b)
	require.NoError(t, err)
	require.Equal(t, uint64(headSize)+uint64(dataSize)+uint64(tailSz), uint64(len(buf)))

	mem := buffer.NewMem(0)
	require.NoError(t, mem.WriteAt(buf, 0))

	got, head, err := DecodeAt(mem, 0)
	require.NoError(t, err)
	require.Equal(t, headSize, head.HeadSize)
	require.Equal(t, dataSize, head.DataSize)

	if diff := cmp.Diff(b.Options, got.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, b.Payload, got.Payload)
	require.Equal(t, b.BlockID, got.BlockID)
	require.Equal(t, b.BackRefs, got.BackRefs)
}

func TestEncodeDecodeRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		opts := map[string]string{}
		for j := 0; j < rng.Intn(5); j++ {
			opts[fmt.Sprintf("key-%d", j)] = randString(rng, rng.Intn(200))
		}
		payload := make([]byte, rng.Intn(4096))
		rng.Read(payload)

		b := Block{
			BlockID:    uint32(i),
			DataTypeID: UserDataTypeID,
			Options:    opts,
			Payload:    payload,
		}

		buf, _, _, _, err := Encode(b)
		require.NoError(t, err)

		mem := buffer.NewMem(0)
		require.NoError(t, mem.WriteAt(buf, 0))

		got, _, err := DecodeAt(mem, 0)
		require.NoError(t, err)
		require.Equal(t, b.Payload, got.Payload)
		if diff := cmp.Diff(b.Options, got.Options); diff != "" {
			t.Fatalf("options mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDecodeFromTail(t *testing.T) {
	b := Block{BlockID: 5, DataTypeID: UserDataTypeID, Payload: []byte("tail test")}
	buf, _, _, _, err := Encode(b)
	require.NoError(t, err)

	mem := buffer.NewMem(0)
	require.NoError(t, mem.WriteAt(buf, 0))

	got, _, err := DecodeFromTail(mem, uint64(len(buf)))
	require.NoError(t, err)
	require.Equal(t, b.Payload, got.Payload)
	require.Equal(t, b.BlockID, got.BlockID)
}

func TestDecodeFromTailBadMarker(t *testing.T) {
	mem := buffer.NewMem(0)
	require.NoError(t, mem.WriteAt(make([]byte, 16), 0))

	_, _, err := DecodeFromTail(mem, 16)
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	require.Equal(t, CodeTailMarkerMismatch, be.Code)
}

func TestDecodeAtHeaderTooSmall(t *testing.T) {
	mem := buffer.NewMem(0)
	require.NoError(t, mem.WriteAt(make([]byte, 10), 0))

	_, _, err := DecodeAt(mem, 0)
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	require.Equal(t, CodeHeaderTooSmall, be.Code)
}

func TestReadHeaderDoesNotRequirePayload(t *testing.T) {
	b := Block{BlockID: 1, DataTypeID: UserDataTypeID, Payload: []byte("payload-bytes")}
	buf, headSize, _, _, err := Encode(b)
	require.NoError(t, err)

	// Truncate the payload away; ReadHeader must still succeed.
	mem := buffer.NewMem(0)
	require.NoError(t, mem.WriteAt(buf[:headSize], 0))

	h, err := ReadHeader(mem, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(1), h.BlockID)
}

func randString(rng *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[rng.Intn(len(letters))]
	}
	return string(out)
}
