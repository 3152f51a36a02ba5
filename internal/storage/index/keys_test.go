package index

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyTypeString(t *testing.T) {
	tests := []struct {
		keyType  KeyType
		expected string
	}{
		{KeyString, "string"},
		{KeyLong, "long"},
		{KeyBytes, "bytes"},
		{KeyComposite, "composite"},
		{KeyID, "id"},
		{KeyOpaque, "opaque"},
		{KeyType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.keyType.String())
		})
	}
}

// sortedKeys is in Compare order.
var sortedKeys = []Key{
	StringKey(""),
	StringKey("a"),
	StringKey("a\x00"),
	StringKey("a\x00b"),
	StringKey("ab"),
	StringKey("b"),
	LongKey(-1 << 62),
	LongKey(-1),
	LongKey(0),
	LongKey(1),
	LongKey(1 << 62),
	BytesKey{},
	BytesKey{0x00},
	BytesKey{0x00, 0x00},
	BytesKey{0x01},
	BytesKey{0xFF, 0xFF},
	ParentIDAndRDN{ParentID: testID(1)},
	ParentIDAndRDN{ParentID: testID(1), RDNs: []string{"cn=a"}},
	ParentIDAndRDN{ParentID: testID(1), RDNs: []string{"cn=a", "ou=x"}},
	ParentIDAndRDN{ParentID: testID(1), RDNs: []string{"cn=b"}},
	ParentIDAndRDN{ParentID: testID(2), RDNs: []string{"cn=a"}},
	IDKey(testID(0)),
	IDKey(testID(1)),
	IDKey(testID(200)),
	OpaqueKey{TypeName: "a", Data: []byte{0x02}},
	OpaqueKey{TypeName: "a", Data: []byte{0x02, 0x00}},
	OpaqueKey{TypeName: "b"},
}

func TestCompareOrder(t *testing.T) {
	for i := 0; i < len(sortedKeys); i++ {
		for j := 0; j < len(sortedKeys); j++ {
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			assert.Equal(t, want, Compare(sortedKeys[i], sortedKeys[j]),
				"Compare(%v, %v)", sortedKeys[i], sortedKeys[j])
		}
	}
}

// TestEncodingPreservesOrder tests that byte order of encoded keys equals
// Compare order.
func TestEncodingPreservesOrder(t *testing.T) {
	encoded := make([][]byte, len(sortedKeys))
	for i, key := range sortedKeys {
		enc, err := encodeKey(key)
		require.NoError(t, err)
		encoded[i] = enc
	}

	shuffled := make([][]byte, len(encoded))
	copy(shuffled, encoded)
	for i, j := 0, len(shuffled)-1; i < j; i, j = i+1, j-1 {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	sort.Slice(shuffled, func(i, j int) bool {
		return bytes.Compare(shuffled[i], shuffled[j]) < 0
	})

	assert.Equal(t, encoded, shuffled)
}

func TestEncodingRoundTrip(t *testing.T) {
	for _, key := range sortedKeys {
		t.Run(key.Kind().String()+"/"+key.String(), func(t *testing.T) {
			enc, err := encodeKey(key)
			require.NoError(t, err)

			decoded, err := decodeKey(enc)
			require.NoError(t, err)
			assert.True(t, Equal(key, decoded), "decoded %v", decoded)
		})
	}
}

func TestDecodeKeyCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unknown tag", []byte{0x09, 0x00}},
		{"unterminated string", []byte{byte(KeyString), 'a'}},
		{"bad escape", []byte{byte(KeyString), 0x00, 0x07}},
		{"short long", []byte{byte(KeyLong), 0x01}},
		{"short id", []byte{byte(KeyID), 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeKey(tt.data)
			assert.ErrorIs(t, err, ErrCorruptKey)
		})
	}
}

func TestPostingsRoundTrip(t *testing.T) {
	values := [][]byte{{1, 2, 3}, {}, bytes.Repeat([]byte{7}, 300)}

	decoded, err := decodePostings(encodePostings(values))
	require.NoError(t, err)
	assert.Equal(t, values, decoded)

	_, err = decodePostings([]byte{0x05, 0x01})
	assert.ErrorIs(t, err, ErrCorruptKey)
}

func TestParseKeyType(t *testing.T) {
	kt, ok := ParseKeyType("LONG")
	assert.True(t, ok)
	assert.Equal(t, KeyLong, kt)

	kt, ok = ParseKeyType("")
	assert.True(t, ok)
	assert.Equal(t, KeyString, kt)

	_, ok = ParseKeyType("float")
	assert.False(t, ok)
}
