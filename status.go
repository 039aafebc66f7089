package main

import (
	"errors"
	"net/http"

	"golang.org/x/sys/unix"

	"github.com/libnss-aad/libnss-aad-go/graph"
)

// nssStatus mirrors enum nss_status from <nss.h>.
type nssStatus int32

const (
	statusTryAgain nssStatus = -2
	statusUnavail  nssStatus = -1
	statusNotFound nssStatus = 0
	statusSuccess  nssStatus = 1
)

// classify maps an internal failure onto the NSS protocol's coarse outcome
// and errno. This table is the whole contract the host's resolver sees;
// nothing more detailed crosses the ABI boundary.
//
//	success                                     -> SUCCESS
//	config file unreadable                      -> UNAVAIL,  ENOENT
//	nil required pointer / empty buffer         -> UNAVAIL,  EINVAL
//	buffer too small (re-invoke with more)      -> TRYAGAIN, ERANGE
//	NUL byte inside a field value               -> NOTFOUND, ENOENT
//	name not decodable as UTF-8                 -> NOTFOUND, ENOENT
//	zero or ambiguous matches, unusable RID     -> NOTFOUND, ENOENT
//	HTTP 404 from the directory                 -> NOTFOUND, ENOENT
//	any other HTTP/transport/auth/decode error  -> TRYAGAIN, EAGAIN
func classify(err error) (nssStatus, unix.Errno) {
	if err == nil {
		return statusSuccess, 0
	}

	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return statusUnavail, unix.ENOENT
	}
	if errors.Is(err, errNilParameter) {
		return statusUnavail, unix.EINVAL
	}
	if errors.Is(err, errBufferTooSmall) {
		return statusTryAgain, unix.ERANGE
	}
	if errors.Is(err, errZeroByteInString) || errors.Is(err, errBadName) {
		return statusNotFound, unix.ENOENT
	}
	if errors.Is(err, graph.ErrNotFound) || errors.Is(err, graph.ErrTooManyResults) {
		return statusNotFound, unix.ENOENT
	}
	var unusable *graph.UnusableIdentifierError
	if errors.As(err, &unusable) {
		return statusNotFound, unix.ENOENT
	}
	var httpErr *graph.HTTPStatusError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return statusNotFound, unix.ENOENT
	}

	// Auth failures, transport errors, malformed responses and remaining
	// HTTP statuses are service-side conditions the same query may survive
	// later.
	return statusTryAgain, unix.EAGAIN
}
