package net

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{7, 'a', 0}))
	assert.Equal(t, []byte{5, 0, 7, 'a', 0}, buf.Bytes())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 'a', 0}, got)
}

func TestReadFrameRejectsBadLength(t *testing.T) {
	for _, hdr := range [][]byte{{0, 0}, {2, 0}, {1, 0}} {
		_, err := ReadFrame(bytes.NewReader(hdr))
		assert.Error(t, err, "header %v", hdr)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{6, 0, 1, 2}))
	assert.Error(t, err)
}

func TestWriteFrameRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteFrame(&buf, nil))
	assert.Error(t, WriteFrame(&buf, make([]byte, MaxFrame+1)))
	assert.Zero(t, buf.Len())
}
