package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cstringAt reads the nul-terminated string starting at off.
func cstringAt(t *testing.T, buf []byte, off int) string {
	t.Helper()
	end := bytes.IndexByte(buf[off:], 0)
	require.GreaterOrEqual(t, end, 0, "string at offset %d is not terminated", off)
	return string(buf[off : off+end])
}

func passwdRequired(name, gecos string) int {
	return len(name) + 1 + len(passwdPlaceholder) + 1 + len(gecos) + 1 +
		len(loginShell) + 1 + len(homeDirPrefix+name) + 1
}

func TestPackPasswdRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	l, err := packPasswd(buf, "alice", "Alice A")
	require.NoError(t, err)

	assert.Equal(t, "alice", cstringAt(t, buf, l.name))
	assert.Equal(t, ".", cstringAt(t, buf, l.passwd))
	assert.Equal(t, "Alice A", cstringAt(t, buf, l.gecos))
	assert.Equal(t, "/bin/bash", cstringAt(t, buf, l.shell))
	assert.Equal(t, "/home/alice", cstringAt(t, buf, l.dir))
}

func TestPackPasswdExactFit(t *testing.T) {
	need := passwdRequired("alice", "Alice A")
	buf := make([]byte, need)
	l, err := packPasswd(buf, "alice", "Alice A")
	require.NoError(t, err)
	assert.Equal(t, "/home/alice", cstringAt(t, buf, l.dir))
}

func TestPackPasswdInsufficientBufferLeavesBufferUntouched(t *testing.T) {
	need := passwdRequired("alice", "Alice A")
	buf := make([]byte, need-1)
	for i := range buf {
		buf[i] = 0xa5
	}
	before := append([]byte(nil), buf...)

	_, err := packPasswd(buf, "alice", "Alice A")
	require.ErrorIs(t, err, errBufferTooSmall)
	assert.Equal(t, before, buf, "a failed pack must not modify the buffer")
}

func TestPackPasswdRejectsEmbeddedNul(t *testing.T) {
	buf := make([]byte, 256)
	_, err := packPasswd(buf, "ali\x00ce", "Alice A")
	require.ErrorIs(t, err, errZeroByteInString)

	_, err = packPasswd(buf, "alice", "Alice\x00A")
	require.ErrorIs(t, err, errZeroByteInString)
}

func TestPackGroupRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	members := []string{"alice@contoso.example", "bob@contoso.example"}
	l, err := packGroup(buf, "devs", members)
	require.NoError(t, err)

	assert.Equal(t, "devs", cstringAt(t, buf, l.name))
	assert.Equal(t, "!", cstringAt(t, buf, l.passwd))
	require.Len(t, l.members, 2)
	for i, off := range l.members {
		assert.Equal(t, members[i], cstringAt(t, buf, off))
	}
}

func TestPackGroupNoMembers(t *testing.T) {
	buf := make([]byte, 64)
	l, err := packGroup(buf, "devs", nil)
	require.NoError(t, err)
	assert.Empty(t, l.members)
	assert.Equal(t, "devs", cstringAt(t, buf, l.name))
}

func TestPackGroupInsufficientBufferLeavesBufferUntouched(t *testing.T) {
	members := []string{"alice@contoso.example", "bob@contoso.example"}
	need := len("devs") + 1 + len(groupPlaceholder) + 1
	for _, m := range members {
		need += len(m) + 1
	}
	buf := make([]byte, need-1)
	for i := range buf {
		buf[i] = 0xa5
	}
	before := append([]byte(nil), buf...)

	_, err := packGroup(buf, "devs", members)
	require.ErrorIs(t, err, errBufferTooSmall)
	assert.Equal(t, before, buf)
}

func TestDecodeName(t *testing.T) {
	for _, name := range []string{"alice", "alice@contoso.example", "grüße"} {
		got, err := decodeName(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, got)
	}

	// Raw bytes from glibc that do not decode as UTF-8 name nothing the
	// directory could hold; the entry reads as absent, no request is made.
	for _, name := range []string{"\xff\xfe", "ali\xffce", "\xc3"} {
		_, err := decodeName(name)
		require.ErrorIs(t, err, errBadName, "%q", name)
	}
}

func TestPackGroupRejectsEmbeddedNul(t *testing.T) {
	buf := make([]byte, 256)
	_, err := packGroup(buf, "de\x00vs", nil)
	require.ErrorIs(t, err, errZeroByteInString)

	_, err = packGroup(buf, "devs", []string{"al\x00ice"})
	require.ErrorIs(t, err, errZeroByteInString)
}
