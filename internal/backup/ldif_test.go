package backup

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/dirstore/internal/config"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/search"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/store"
)

func TestNeedsBase64Encoding(t *testing.T) {
	tests := []struct {
		name     string
		value    []byte
		expected bool
	}{
		{"empty value", []byte{}, false},
		{"simple ASCII", []byte("hello world"), false},
		{"starts with space", []byte(" hello"), true},
		{"ends with space", []byte("hello "), true},
		{"starts with colon", []byte(":hello"), true},
		{"starts with less-than", []byte("<hello"), true},
		{"contains newline", []byte("hello\nworld"), true},
		{"contains NUL", []byte("hello\x00world"), true},
		{"contains non-ASCII", []byte("h\xc3\xa9llo"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, needsBase64Encoding(tt.value))
		})
	}
}

func TestParseLDIF(t *testing.T) {
	ldif := `version: 1
# people
dn: uid=alice,ou=users,dc=example,dc=com
objectclass: person
objectClass: inetOrgPerson
cn: Alice Smith
description: a long
  folded value

dn:: ` + base64.StdEncoding.EncodeToString([]byte("uid=bob,ou=users,dc=example,dc=com")) + `
objectclass: person
userPassword:: ` + base64.StdEncoding.EncodeToString([]byte{0x00, 0xff}) + `
`

	entries, err := ParseLDIF(strings.NewReader(ldif))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	alice := entries[0]
	assert.Equal(t, "uid=alice,ou=users,dc=example,dc=com", alice.DN)
	assert.Equal(t, []string{"person", "inetOrgPerson"}, alice.GetAttribute("objectclass"))
	assert.Equal(t, []string{"Alice Smith"}, alice.GetAttribute("cn"))
	assert.Equal(t, []string{"a long folded value"}, alice.GetAttribute("description"))

	bob := entries[1]
	assert.Equal(t, "uid=bob,ou=users,dc=example,dc=com", bob.DN)
	assert.Equal(t, []string{string([]byte{0x00, 0xff})}, bob.GetAttribute("userpassword"))
}

func TestParseLDIFErrors(t *testing.T) {
	tests := []struct {
		name string
		ldif string
		want error
	}{
		{"attribute before dn", "cn: alice\n", ErrMissingDN},
		{"empty dn", "dn: \ncn: x\n", ErrMissingDN},
		{"missing colon", "dn: cn=a\ncn alice\n", ErrInvalidLDIF},
		{"invalid base64", "dn: cn=a\ncn:: !!!\n", ErrInvalidBase64},
		{"change record", "dn: cn=a\nchangetype: delete\n", ErrInvalidLDIF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLDIF(strings.NewReader(tt.ldif))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := ParseLDIF(nil)
	assert.ErrorIs(t, err, ErrEmptyReader)
}

func TestParseLDIFEmpty(t *testing.T) {
	entries, err := ParseLDIF(strings.NewReader("# only a comment\n\n"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteLDIFRoundTrip(t *testing.T) {
	e := store.NewEntry("cn=alice,dc=example,dc=com")
	e.SetAttribute("objectclass", "person")
	e.SetAttribute("cn", "alice")
	e.SetAttribute("userpassword", string([]byte{0x00, 0x01, 0xff}))

	var buf bytes.Buffer
	require.NoError(t, WriteLDIF(&buf, []*store.Entry{e}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "dn: cn=alice,dc=example,dc=com\ncn: alice\nobjectclass: person\n"), out)
	assert.Contains(t, out, "userpassword:: ")

	parsed, err := ParseLDIF(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, e.DN, parsed[0].DN)
	assert.Equal(t, e.Attributes, parsed[0].Attributes)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.IndexBackend = config.BackendMemory
	cfg.Storage.Suffix = "dc=example,dc=com"
	cfg.Storage.SyncWrites = false
	cfg.Storage.CheckpointInterval = 0

	s, err := store.Open(cfg, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const treeLDIF = `dn: cn=link,ou=groups,dc=example,dc=com
objectclass: alias
aliasedobjectname: cn=alice,ou=people,dc=example,dc=com

dn: cn=alice,ou=people,dc=example,dc=com
objectclass: person
cn: Alice

dn: ou=groups,dc=example,dc=com
objectclass: organizationalUnit

dn: ou=people,dc=example,dc=com
objectclass: organizationalUnit

dn: dc=example,dc=com
objectclass: domain
`

func TestImportOrdersParentsAndAliases(t *testing.T) {
	s := openStore(t)

	n, err := NewImporter(s).Import(strings.NewReader(treeLDIF))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	link, err := s.LookupDN("cn=link,ou=groups,dc=example,dc=com")
	require.NoError(t, err)
	assert.True(t, link.IsAlias())

	ids, err := s.SearchIDs("ou=groups,dc=example,dc=com", search.ScopeOneLevel, search.DerefAlways)
	require.NoError(t, err)
	alice, err := s.EntryID("cn=alice,ou=people,dc=example,dc=com")
	require.NoError(t, err)
	assert.Contains(t, ids, alice)
}

func TestImportStopsAtRejectedEntry(t *testing.T) {
	s := openStore(t)

	ldif := "dn: dc=example,dc=com\nobjectclass: domain\n\ndn: cn=orphan,ou=missing,dc=example,dc=com\nobjectclass: person\n"
	n, err := NewImporter(s).Import(strings.NewReader(ldif))
	assert.ErrorIs(t, err, ErrImportFailed)
	assert.ErrorIs(t, err, store.ErrNoSuchParent)
	assert.Equal(t, 1, n)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := openStore(t)
	_, err := NewImporter(src).Import(strings.NewReader(treeLDIF))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := NewExporter(src).Export(&buf, "dc=example,dc=com")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, strings.HasPrefix(buf.String(), "dn: dc=example,dc=com\n"), buf.String())

	dst := openStore(t)
	n, err = NewImporter(dst).Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	count, err := dst.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	t.Run("subtree", func(t *testing.T) {
		var sub bytes.Buffer
		n, err := NewExporter(src).Export(&sub, "ou=people,dc=example,dc=com")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("missing base", func(t *testing.T) {
		_, err := NewExporter(src).Export(&bytes.Buffer{}, "ou=nobody,dc=example,dc=com")
		assert.ErrorIs(t, err, ErrExportFailed)
		assert.ErrorIs(t, err, store.ErrEntryNotFound)
	})
}
