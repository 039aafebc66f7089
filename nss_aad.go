//go:build cgo

// Copyright (c) 2024 the libnss-aad-go authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER
// DEALINGS IN THE SOFTWARE.

// libnss-aad-go resolves passwd and group entries against Azure Active
// Directory. Build with -buildmode=c-shared and install as libnss_aad.so.2;
// glibc then calls the _nss_aad_* trampolines below. Each call reads the
// configuration, authenticates, queries the Graph and packs the result into
// the caller's buffer; nothing survives from one call to the next.
package main

// #include <sys/types.h>
// #include <stdlib.h>
// #include <pwd.h>
// #include <grp.h>
// #include <nss.h>
// #include <errno.h>
import "C"

import (
	"context"
	"strconv"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/libnss-aad/libnss-aad-go/graph"
)

// minPosixID is the first uid/gid the directory may own. Anything below it
// belongs to local system accounts and is rejected before any network
// traffic happens.
const minPosixID = 1000

var rootCtx = context.Background()

// lookup bundles the per-call state: fresh config, fresh client, fresh
// token. Deliberately rebuilt on every entry so there is no cache to
// invalidate and nothing shared between concurrent calls.
type lookup struct {
	cfg    *aadConfig
	cli    *graph.Client
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func newLookup(op string) (*lookup, error) {
	log := newLogger(tun).With().Str("op", op).Logger()
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Debug().Err(err).Msg("configuration unavailable")
		return nil, err
	}
	ctx, cancel := rootCtx, context.CancelFunc(func() {})
	if tun.timeout > 0 {
		ctx, cancel = context.WithTimeout(rootCtx, tun.timeout)
	}
	cli, err := graph.NewClient(ctx, graph.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Tenant:       cfg.Tenant,
		LoginBaseURL: tun.loginEndpoint,
		GraphBaseURL: tun.graphEndpoint,
		Logger:       log,
	})
	if err != nil {
		cancel()
		log.Debug().Err(err).Msg("authentication failed")
		return nil, err
	}
	return &lookup{cfg: cfg, cli: cli, ctx: ctx, cancel: cancel, log: log}, nil
}

func (lk *lookup) close() { lk.cancel() }

// sidFor builds the full security identifier for a numeric id.
func (lk *lookup) sidFor(id uint32) string {
	return lk.cfg.DomainSID + "-" + strconv.FormatUint(uint64(id), 10)
}

// ret translates an internal error into the protocol's status code and
// errno out-parameter.
func ret(errnop *C.int, err error) C.enum_nss_status {
	status, errno := classify(err)
	if errnop != nil && errno != 0 {
		*errnop = C.int(errno)
	}
	switch status {
	case statusSuccess:
		return C.NSS_STATUS_SUCCESS
	case statusNotFound:
		return C.NSS_STATUS_NOTFOUND
	case statusTryAgain:
		return C.NSS_STATUS_TRYAGAIN
	default:
		return C.NSS_STATUS_UNAVAIL
	}
}

func cBuf(buf *C.char, buflen C.size_t) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(buflen))
}

func cAt(buf *C.char, off int) *C.char {
	return (*C.char)(unsafe.Add(unsafe.Pointer(buf), off))
}

// fillPasswd packs user into the caller's buffer and points pwd's fields
// into it. gid is the configured default group, not a directory value.
func fillPasswd(pwd *C.struct_passwd, buf *C.char, buflen C.size_t, user *graph.User, gid uint32) error {
	if pwd == nil || buf == nil || buflen == 0 {
		return errNilParameter
	}
	l, err := packPasswd(cBuf(buf, buflen), user.Name, user.DisplayName)
	if err != nil {
		return err
	}
	pwd.pw_name = cAt(buf, l.name)
	pwd.pw_passwd = cAt(buf, l.passwd)
	pwd.pw_gecos = cAt(buf, l.gecos)
	pwd.pw_shell = cAt(buf, l.shell)
	pwd.pw_dir = cAt(buf, l.dir)
	pwd.pw_uid = C.uid_t(user.UID)
	pwd.pw_gid = C.gid_t(gid)
	return nil
}

// fillGroup packs group and its member names into the caller's buffer.
// The gr_mem pointer array is the one boundary allocation made outside
// that buffer: glibc releases it with free(3), so it must come from
// malloc(3) and not from Go's heap or the caller's region.
func fillGroup(grp *C.struct_group, buf *C.char, buflen C.size_t, group *graph.Group, members []graph.User) error {
	if grp == nil || buf == nil || buflen == 0 {
		return errNilParameter
	}
	names := make([]string, len(members))
	for i := range members {
		names[i] = members[i].Name
	}
	l, err := packGroup(cBuf(buf, buflen), group.Name, names)
	if err != nil {
		return err
	}
	n := len(l.members)
	arr := C.malloc(C.size_t(n+1) * C.size_t(unsafe.Sizeof((*C.char)(nil))))
	if arr == nil {
		return errOutOfMemory
	}
	ptrs := unsafe.Slice((**C.char)(arr), n+1)
	for i, off := range l.members {
		ptrs[i] = cAt(buf, off)
	}
	ptrs[n] = nil

	grp.gr_name = cAt(buf, l.name)
	grp.gr_passwd = cAt(buf, l.passwd)
	grp.gr_gid = C.gid_t(group.GID)
	grp.gr_mem = (**C.char)(arr)
	return nil
}

// members resolves a group's membership, degrading to an empty list when
// the listing fails. A group without readable members is still a group.
func (lk *lookup) members(group *graph.Group) []graph.User {
	members, err := lk.cli.GroupMembers(lk.ctx, group.ObjectID)
	if err != nil {
		lk.log.Debug().Err(err).Str("group", group.Name).Msg("membership listing failed, returning empty member list")
		return nil
	}
	return members
}

//export _nss_aad_getpwnam_r
func _nss_aad_getpwnam_r(name *C.char, pwd *C.struct_passwd, buf *C.char, buflen C.size_t, errnop *C.int) C.enum_nss_status {
	if name == nil {
		return ret(errnop, errNilParameter)
	}
	login, err := decodeName(C.GoString(name))
	if err != nil {
		return ret(errnop, err)
	}
	lk, err := newLookup("getpwnam")
	if err != nil {
		return ret(errnop, err)
	}
	defer lk.close()

	user, err := lk.cli.User(lk.ctx, login)
	if err != nil {
		lk.log.Debug().Err(err).Msg("user lookup failed")
		return ret(errnop, err)
	}
	return ret(errnop, fillPasswd(pwd, buf, buflen, user, lk.cfg.DefaultUserGroupID))
}

//export _nss_aad_getpwuid_r
func _nss_aad_getpwuid_r(uid C.uid_t, pwd *C.struct_passwd, buf *C.char, buflen C.size_t, errnop *C.int) C.enum_nss_status {
	if uint32(uid) < minPosixID {
		return ret(errnop, graph.ErrNotFound)
	}
	lk, err := newLookup("getpwuid")
	if err != nil {
		return ret(errnop, err)
	}
	defer lk.close()

	user, err := lk.cli.UserBySID(lk.ctx, lk.sidFor(uint32(uid)))
	if err != nil {
		lk.log.Debug().Err(err).Msg("user lookup failed")
		return ret(errnop, err)
	}
	return ret(errnop, fillPasswd(pwd, buf, buflen, user, lk.cfg.DefaultUserGroupID))
}

//export _nss_aad_getgrnam_r
func _nss_aad_getgrnam_r(name *C.char, grp *C.struct_group, buf *C.char, buflen C.size_t, errnop *C.int) C.enum_nss_status {
	if name == nil {
		return ret(errnop, errNilParameter)
	}
	groupName, err := decodeName(C.GoString(name))
	if err != nil {
		return ret(errnop, err)
	}
	lk, err := newLookup("getgrnam")
	if err != nil {
		return ret(errnop, err)
	}
	defer lk.close()

	group, err := lk.cli.GroupByName(lk.ctx, groupName)
	if err != nil {
		lk.log.Debug().Err(err).Msg("group lookup failed")
		return ret(errnop, err)
	}
	return ret(errnop, fillGroup(grp, buf, buflen, group, lk.members(group)))
}

//export _nss_aad_getgrgid_r
func _nss_aad_getgrgid_r(gid C.gid_t, grp *C.struct_group, buf *C.char, buflen C.size_t, errnop *C.int) C.enum_nss_status {
	if uint32(gid) < minPosixID {
		return ret(errnop, graph.ErrNotFound)
	}
	lk, err := newLookup("getgrgid")
	if err != nil {
		return ret(errnop, err)
	}
	defer lk.close()

	group, err := lk.cli.GroupBySID(lk.ctx, lk.sidFor(uint32(gid)))
	if err != nil {
		lk.log.Debug().Err(err).Msg("group lookup failed")
		return ret(errnop, err)
	}
	return ret(errnop, fillGroup(grp, buf, buflen, group, lk.members(group)))
}

//export _nss_aad_initgroups_dyn
func _nss_aad_initgroups_dyn(name *C.char, skipgid C.gid_t, start *C.long, size *C.long, groupsp **C.gid_t, limit C.long, errnop *C.int) C.enum_nss_status {
	if name == nil || start == nil || size == nil || groupsp == nil || *groupsp == nil ||
		*start < 0 || *size < 0 || *start > *size {
		return ret(errnop, errNilParameter)
	}
	login, err := decodeName(C.GoString(name))
	if err != nil {
		return ret(errnop, err)
	}
	lk, err := newLookup("initgroups_dyn")
	if err != nil {
		return ret(errnop, err)
	}
	defer lk.close()

	groups, err := lk.cli.UserGroups(lk.ctx, login)
	if err != nil {
		lk.log.Debug().Err(err).Msg("membership expansion failed")
		return ret(errnop, err)
	}
	gids := qualifyingGids(groups, lk.cfg.GroupIDs, uint32(skipgid))
	if len(gids) == 0 {
		// No allow-listed groups is a fine answer, not a miss.
		return C.NSS_STATUS_SUCCESS
	}

	newSize, nWrite := planGidAppend(int64(*start), int64(*size), int64(limit), int64(len(gids)))
	if newSize > int64(*size) {
		p := C.realloc(unsafe.Pointer(*groupsp), C.size_t(newSize)*C.size_t(unsafe.Sizeof(C.gid_t(0))))
		if p == nil {
			return ret(errnop, errOutOfMemory)
		}
		*groupsp = (*C.gid_t)(p)
		*size = C.long(newSize)
	}
	arr := unsafe.Slice(*groupsp, newSize)
	pos := int64(*start)
	for i := int64(0); i < nWrite; i++ {
		arr[pos+i] = C.gid_t(gids[i])
	}
	*start = C.long(pos + nWrite)
	return C.NSS_STATUS_SUCCESS
}

func main() {
}
