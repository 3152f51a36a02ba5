package backup

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/store"
)

// LDIF errors.
var (
	ErrInvalidLDIF   = errors.New("invalid LDIF format")
	ErrMissingDN     = errors.New("missing DN in LDIF entry")
	ErrInvalidBase64 = errors.New("invalid base64 encoding")
	ErrEmptyReader   = errors.New("empty reader")
)

// maxLineLength bounds a single LDIF line.
const maxLineLength = 1 << 20

// ParseLDIF parses LDIF content records.
func ParseLDIF(r io.Reader) ([]*store.Entry, error) {
	if r == nil {
		return nil, ErrEmptyReader
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var (
		entries []*store.Entry
		entry   *store.Entry
		pending string
	)

	flush := func() error {
		if pending == "" {
			return nil
		}
		line := pending
		pending = ""

		if strings.HasPrefix(strings.ToLower(line), "dn:") {
			if entry != nil {
				return fmt.Errorf("%w: dn inside entry %s", ErrInvalidLDIF, entry.DN)
			}
			dn, err := decodeValue(line[3:])
			if err != nil {
				return err
			}
			if strings.TrimSpace(dn) == "" {
				return ErrMissingDN
			}
			entry = store.NewEntry(dn)
			return nil
		}

		if entry == nil {
			return fmt.Errorf("%w: attribute before dn: %s", ErrMissingDN, line)
		}
		return addLine(entry, line)
	}

	endEntry := func() {
		if entry != nil {
			entries = append(entries, entry)
			entry = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		// A line starting with a single space continues the previous one.
		if strings.HasPrefix(line, " ") {
			pending += line[1:]
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}

		switch {
		case strings.HasPrefix(line, "#"):
		case line == "":
			endEntry()
		case strings.HasPrefix(strings.ToLower(line), "version:") && entry == nil && len(entries) == 0:
		default:
			pending = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLDIF, err)
	}

	if err := flush(); err != nil {
		return nil, err
	}
	endEntry()

	return entries, nil
}

// addLine adds an "attr: value" or "attr:: base64" line to entry.
func addLine(entry *store.Entry, line string) error {
	colon := strings.Index(line, ":")
	if colon <= 0 {
		return fmt.Errorf("%w: missing colon in line: %s", ErrInvalidLDIF, line)
	}

	attr := strings.ToLower(strings.TrimSpace(line[:colon]))
	if attr == "changetype" {
		return fmt.Errorf("%w: change records are not supported", ErrInvalidLDIF)
	}

	value, err := decodeValue(line[colon+1:])
	if err != nil {
		return fmt.Errorf("attribute %s: %w", attr, err)
	}
	entry.AddAttributeValue(attr, value)
	return nil
}

// decodeValue decodes the text after the first colon of a line.
func decodeValue(rest string) (string, error) {
	if strings.HasPrefix(rest, ":") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest[1:]))
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidBase64, err)
		}
		return string(decoded), nil
	}
	return strings.TrimSpace(rest), nil
}

// WriteLDIF writes entries in LDIF format in the given order.
func WriteLDIF(w io.Writer, entries []*store.Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if err := writeEntry(bw, e); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeEntry(w io.Writer, e *store.Entry) error {
	if err := writeLine(w, "dn", e.DN); err != nil {
		return err
	}

	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range e.Attributes[name] {
			if err := writeLine(w, name, value); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}

func writeLine(w io.Writer, attr, value string) error {
	if needsBase64Encoding([]byte(value)) {
		_, err := fmt.Fprintf(w, "%s:: %s\n", attr, base64.StdEncoding.EncodeToString([]byte(value)))
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", attr, value)
	return err
}

// needsBase64Encoding checks if a value needs base64 encoding.
// According to RFC 2849, values need base64 encoding if they:
// - Contain non-printable characters (< 0x20 or > 0x7E, except for space)
// - Start with a space, colon, or less-than sign
// - End with a space
func needsBase64Encoding(value []byte) bool {
	if len(value) == 0 {
		return false
	}

	switch value[0] {
	case ' ', ':', '<':
		return true
	}
	if value[len(value)-1] == ' ' {
		return true
	}

	for _, b := range value {
		if b < 0x20 || b > 0x7E {
			return true
		}
	}
	return false
}
