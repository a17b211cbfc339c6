package dht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNodeIDIsRandom(t *testing.T) {
	a, err := GenerateNodeID()
	require.NoError(t, err)
	b, err := GenerateNodeID()
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two generated identifiers should differ")
}

func TestNodeIDFromBytes(t *testing.T) {
	raw := make([]byte, IDSize)
	raw[0] = 0xAB
	id, err := NodeIDFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), id[0])

	_, err = NodeIDFromBytes(raw[:19])
	assert.Error(t, err, "short input must be rejected")

	_, err = NodeIDFromBytes(append(raw, 0x00))
	assert.Error(t, err, "long input must be rejected")
}

func TestXorMetric(t *testing.T) {
	a := fillID(0xAA)
	b := fillID(0x55)
	c := testID(0x01)

	assert.Equal(t, a.Xor(b), b.Xor(a), "distance is symmetric")
	assert.Equal(t, NodeID{}, a.Xor(a), "distance to self is zero")
	assert.Equal(t, fillID(0xFF), a.Xor(b))

	// Bit-componentwise triangle: d(a,c) == d(a,b) XOR d(b,c) for XOR.
	assert.Equal(t, a.Xor(c), a.Xor(b).Xor(b.Xor(c)))
}

func TestDistanceLessIsUnsignedLexOrder(t *testing.T) {
	assert.True(t, distanceLess(testID(0x01), testID(0x02)))
	assert.False(t, distanceLess(testID(0x02), testID(0x01)))
	assert.False(t, distanceLess(testID(0x01), testID(0x01)))

	// The most significant octet dominates.
	low := NodeID{0x00}
	low[19] = 0xFF
	high := NodeID{0x01}
	assert.True(t, distanceLess(low, high))
}

func TestBucketIndexCountsLeadingOnes(t *testing.T) {
	self := NodeID{}

	// First distance bit is 0: index 0.
	assert.Equal(t, 0, self.BucketIndex(testID(0x7F)))

	// Distance 0x80...: one leading 1.
	assert.Equal(t, 1, self.BucketIndex(testID(0x80)))

	// Distance 0xFF 0x80...: nine leading 1s.
	other := fillID(0x00)
	other[0] = 0xFF
	other[1] = 0x80
	assert.Equal(t, 9, self.BucketIndex(other))

	// Identical identifiers: all 160 bits of the distance are 0, but
	// the scan stops at the first 0 bit, which is bit 0.
	assert.Equal(t, 0, self.BucketIndex(self))

	// Distance of all ones: the full width.
	assert.Equal(t, 160, self.BucketIndex(fillID(0xFF)))
}

func TestBucketIndexConsistentWithXorPrefix(t *testing.T) {
	self := fillID(0x3C)
	for b := 0; b < 256; b++ {
		other := fillID(0x3C)
		other[0] = byte(b)
		index := self.BucketIndex(other)

		distance := self.Xor(other)
		// Verify against a naive bit walk from the MSB.
		naive := 0
		for naive < 8 && distance[0]&(0x80>>naive) != 0 {
			naive++
		}
		if naive < 8 {
			assert.Equal(t, naive, index, "byte %#x", b)
		} else {
			assert.GreaterOrEqual(t, index, 8, "byte %#x", b)
		}
	}
}
