package main

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Errors the packing engine and the trampolines surface to the status
// translator.
var (
	// errBufferTooSmall asks the caller to come back with a bigger buffer.
	errBufferTooSmall = errors.New("insufficient buffer")
	// errZeroByteInString marks a field value that cannot be represented
	// as a C string. Permanent; a larger buffer will not help.
	errZeroByteInString = errors.New("field value contains a NUL byte")
	// errBadName marks a caller-supplied name that is not valid UTF-8.
	// Such a name cannot exist in the directory, so it reads as not-found.
	errBadName = errors.New("name is not valid UTF-8")
	// errNilParameter marks a nil required pointer or zero-length buffer.
	errNilParameter = errors.New("required pointer argument is nil")
	errOutOfMemory  = errors.New("out of memory")
)

// decodeName validates a login or group name handed over by glibc, which
// passes raw bytes with no encoding guarantee. Rejecting non-UTF-8 here
// keeps garbage names from ever reaching the network.
func decodeName(name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", errBadName
	}
	return name, nil
}

const (
	// "." tells downstream consumers authentication happens elsewhere.
	// "*" would read as a locked account, notably to OpenSSH.
	passwdPlaceholder = "."
	groupPlaceholder  = "!"
	loginShell        = "/bin/bash"
	homeDirPrefix     = "/home/"
)

// bufWriter carves nul-terminated strings out of a caller-owned region.
// Callers must have verified capacity beforehand; putString assumes the
// string fits.
type bufWriter struct {
	buf []byte
	off int
}

// putString writes s plus a terminator at the cursor and returns the
// offset the string starts at.
func (w *bufWriter) putString(s string) int {
	off := w.off
	copy(w.buf[off:], s)
	w.buf[off+len(s)] = 0
	w.off = off + len(s) + 1
	return off
}

// passwdLayout records where each passwd field landed inside the buffer.
// The cgo layer turns offsets into the struct's char pointers.
type passwdLayout struct {
	name, passwd, gecos, shell, dir int
}

// packPasswd serializes a passwd entry for the named user into buf.
// The exact required length is computed up front; when buf is too small
// the call fails without touching a single byte of it.
func packPasswd(buf []byte, name, gecos string) (*passwdLayout, error) {
	if strings.IndexByte(name, 0) >= 0 || strings.IndexByte(gecos, 0) >= 0 {
		return nil, errZeroByteInString
	}
	dir := homeDirPrefix + name
	need := len(name) + 1 +
		len(passwdPlaceholder) + 1 +
		len(gecos) + 1 +
		len(loginShell) + 1 +
		len(dir) + 1
	if need > len(buf) {
		return nil, errBufferTooSmall
	}
	w := bufWriter{buf: buf}
	return &passwdLayout{
		name:   w.putString(name),
		passwd: w.putString(passwdPlaceholder),
		gecos:  w.putString(gecos),
		shell:  w.putString(loginShell),
		dir:    w.putString(dir),
	}, nil
}

// groupLayout records where the group fields and each member name landed.
type groupLayout struct {
	name, passwd int
	members      []int
}

// packGroup serializes a group entry into buf. Member names are charged
// against the buffer; the null-terminated pointer array over them is not,
// because glibc frees gr_mem with the C allocator and the trampoline
// mallocs it separately.
func packGroup(buf []byte, name string, members []string) (*groupLayout, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return nil, errZeroByteInString
	}
	need := len(name) + 1 + len(groupPlaceholder) + 1
	for _, m := range members {
		if strings.IndexByte(m, 0) >= 0 {
			return nil, errZeroByteInString
		}
		need += len(m) + 1
	}
	if need > len(buf) {
		return nil, errBufferTooSmall
	}
	w := bufWriter{buf: buf}
	l := &groupLayout{
		name:    w.putString(name),
		passwd:  w.putString(groupPlaceholder),
		members: make([]int, 0, len(members)),
	}
	for _, m := range members {
		l.members = append(l.members, w.putString(m))
	}
	return l, nil
}
