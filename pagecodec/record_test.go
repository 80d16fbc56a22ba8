package pagecodec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	r := &Record{
		Lo: []byte{},
		Hi: []byte{0xff},
		Entries: []Entry{
			{Key: []byte{0x00}, Value: []byte{0x00}},
			{Key: []byte{0x01}, Value: []byte("hello world")},
		},
	}
	enc := EncodeRecord(r)
	got, err := DecodeRecord(enc)
	require.NoError(t, err)
	if diff := cmp.Diff(r, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordRoundTripUnboundedHi(t *testing.T) {
	r := &Record{Lo: []byte("m"), Hi: nil}
	enc := EncodeRecord(r)
	got, err := DecodeRecord(enc)
	require.NoError(t, err)
	require.Nil(t, got.Hi)
	require.Equal(t, "m", string(got.Lo))
}

func TestCodecCompressRoundTrip(t *testing.T) {
	c := NewCodec(3)
	r := &Record{Lo: []byte{}, Entries: []Entry{{Key: []byte("k"), Value: []byte("v")}}}
	compressed := c.EncodeLeaf(r)
	got, size, err := c.DecodeLeaf(compressed)
	require.NoError(t, err)
	require.Greater(t, size, 0)
	require.Equal(t, "k", string(got.Entries[0].Key))
}

func TestChecksumIsDeterministic(t *testing.T) {
	a := NewChecksumWriter()
	b := NewChecksumWriter()
	a.Write([]byte("leaf-1-bytes"))
	a.Write([]byte("leaf-2-bytes"))
	b.Write([]byte("leaf-1-bytes"))
	b.Write([]byte("leaf-2-bytes"))
	require.Equal(t, a.Sum64(), b.Sum64())
}
