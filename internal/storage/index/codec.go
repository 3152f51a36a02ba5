package index

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Table keys are encoded so that byte order equals Compare order. Variable
// length fields escape 0x00 as 0x00 0xFF and end with 0x00 0x01, which keeps
// every encoding prefix-free.
const (
	escByte    = 0x00
	escEscaped = 0xFF
	escEnd     = 0x01

	rdnMarker = 0x01
	rdnEnd    = 0x00
)

// encodeKey returns the order-preserving encoding of key.
func encodeKey(key Key) ([]byte, error) {
	if key == nil {
		return nil, ErrUnsupportedKey
	}

	buf := []byte{byte(key.Kind())}

	switch k := key.(type) {
	case StringKey:
		buf = appendEscaped(buf, []byte(k))
	case LongKey:
		buf = binary.BigEndian.AppendUint64(buf, uint64(k)^(1<<63))
	case BytesKey:
		buf = appendEscaped(buf, k)
	case ParentIDAndRDN:
		buf = append(buf, k.ParentID[:]...)
		for _, rdn := range k.RDNs {
			buf = append(buf, rdnMarker)
			buf = appendEscaped(buf, []byte(rdn))
		}
		buf = append(buf, rdnEnd)
	case IDKey:
		buf = append(buf, k[:]...)
	case OpaqueKey:
		buf = appendEscaped(buf, []byte(k.TypeName))
		buf = appendEscaped(buf, k.Data)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}

	return buf, nil
}

// decodeKey reverses encodeKey.
func decodeKey(data []byte) (Key, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrCorruptKey)
	}

	kind, rest := KeyType(data[0]), data[1:]

	switch kind {
	case KeyString:
		s, _, err := readEscaped(rest)
		if err != nil {
			return nil, err
		}
		return StringKey(s), nil

	case KeyLong:
		if len(rest) != 8 {
			return nil, fmt.Errorf("%w: long key length %d", ErrCorruptKey, len(rest))
		}
		return LongKey(int64(binary.BigEndian.Uint64(rest) ^ (1 << 63))), nil

	case KeyBytes:
		b, _, err := readEscaped(rest)
		if err != nil {
			return nil, err
		}
		return BytesKey(b), nil

	case KeyComposite:
		if len(rest) < 17 {
			return nil, fmt.Errorf("%w: composite key too short", ErrCorruptKey)
		}
		key := ParentIDAndRDN{}
		copy(key.ParentID[:], rest[:16])
		rest = rest[16:]
		for len(rest) > 0 && rest[0] == rdnMarker {
			rdn, n, err := readEscaped(rest[1:])
			if err != nil {
				return nil, err
			}
			key.RDNs = append(key.RDNs, string(rdn))
			rest = rest[1+n:]
		}
		if len(rest) != 1 || rest[0] != rdnEnd {
			return nil, fmt.Errorf("%w: composite key terminator", ErrCorruptKey)
		}
		return key, nil

	case KeyID:
		id, err := uuid.FromBytes(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptKey, err)
		}
		return IDKey(id), nil

	case KeyOpaque:
		name, n, err := readEscaped(rest)
		if err != nil {
			return nil, err
		}
		data, _, err := readEscaped(rest[n:])
		if err != nil {
			return nil, err
		}
		return OpaqueKey{TypeName: string(name), Data: data}, nil
	}

	return nil, fmt.Errorf("%w: tag %d", ErrCorruptKey, kind)
}

func appendEscaped(buf, data []byte) []byte {
	for _, b := range data {
		if b == escByte {
			buf = append(buf, escByte, escEscaped)
			continue
		}
		buf = append(buf, b)
	}
	return append(buf, escByte, escEnd)
}

// readEscaped decodes one escaped field and returns it with the number of
// bytes consumed.
func readEscaped(data []byte) ([]byte, int, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != escByte {
			out = append(out, data[i])
			continue
		}
		if i+1 >= len(data) {
			break
		}
		switch data[i+1] {
		case escEscaped:
			out = append(out, escByte)
			i++
		case escEnd:
			return out, i + 2, nil
		default:
			return nil, 0, fmt.Errorf("%w: bad escape 0x%02x", ErrCorruptKey, data[i+1])
		}
	}
	return nil, 0, fmt.Errorf("%w: unterminated field", ErrCorruptKey)
}

// upperBound returns the smallest byte string greater than every key that
// has prefix as a prefix, or nil when no such bound exists.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// exactBound returns the exclusive upper bound covering only the encoded key
// itself. Encodings are prefix-free, so nothing sorts between the two.
func exactBound(encoded []byte) []byte {
	return append(bytes.Clone(encoded), 0x00)
}

// Posting lists are stored as a sequence of uvarint length-prefixed values.

func encodePostings(values [][]byte) []byte {
	size := 0
	for _, v := range values {
		size += binary.MaxVarintLen32 + len(v)
	}
	buf := make([]byte, 0, size)
	for _, v := range values {
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

func decodePostings(data []byte) ([][]byte, error) {
	var values [][]byte
	for len(data) > 0 {
		n, w := binary.Uvarint(data)
		if w <= 0 || uint64(len(data)-w) < n {
			return nil, fmt.Errorf("%w: posting list", ErrCorruptKey)
		}
		values = append(values, bytes.Clone(data[w:w+int(n)]))
		data = data[w+int(n):]
	}
	return values, nil
}
