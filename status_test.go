package main

import (
	"errors"
	"io/fs"
	"net/http"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/libnss-aad/libnss-aad-go/graph"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus nssStatus
		wantErrno  unix.Errno
	}{
		{
			name:       "success",
			err:        nil,
			wantStatus: statusSuccess,
			wantErrno:  0,
		},
		{
			name:       "config unreadable",
			err:        &configError{path: configPath, err: fs.ErrNotExist},
			wantStatus: statusUnavail,
			wantErrno:  unix.ENOENT,
		},
		{
			name:       "nil parameter",
			err:        errNilParameter,
			wantStatus: statusUnavail,
			wantErrno:  unix.EINVAL,
		},
		{
			name:       "buffer too small",
			err:        errBufferTooSmall,
			wantStatus: statusTryAgain,
			wantErrno:  unix.ERANGE,
		},
		{
			name:       "embedded nul",
			err:        errZeroByteInString,
			wantStatus: statusNotFound,
			wantErrno:  unix.ENOENT,
		},
		{
			name:       "undecodable name",
			err:        errBadName,
			wantStatus: statusNotFound,
			wantErrno:  unix.ENOENT,
		},
		{
			name:       "zero matches",
			err:        trace.Wrap(graph.ErrNotFound),
			wantStatus: statusNotFound,
			wantErrno:  unix.ENOENT,
		},
		{
			name:       "ambiguous matches",
			err:        trace.Wrap(graph.ErrTooManyResults),
			wantStatus: statusNotFound,
			wantErrno:  unix.ENOENT,
		},
		{
			name:       "unusable identifier",
			err:        trace.Wrap(&graph.UnusableIdentifierError{SID: "S-1-5-21-1-2-3-999"}),
			wantStatus: statusNotFound,
			wantErrno:  unix.ENOENT,
		},
		{
			name:       "http not found",
			err:        trace.Wrap(&graph.HTTPStatusError{StatusCode: http.StatusNotFound}),
			wantStatus: statusNotFound,
			wantErrno:  unix.ENOENT,
		},
		{
			name:       "http server error",
			err:        trace.Wrap(&graph.HTTPStatusError{StatusCode: http.StatusInternalServerError}),
			wantStatus: statusTryAgain,
			wantErrno:  unix.EAGAIN,
		},
		{
			name:       "auth failure",
			err:        trace.Wrap(graph.ErrNoAccessToken),
			wantStatus: statusTryAgain,
			wantErrno:  unix.EAGAIN,
		},
		{
			name:       "malformed response",
			err:        trace.Wrap(graph.ErrBadResponse),
			wantStatus: statusTryAgain,
			wantErrno:  unix.EAGAIN,
		},
		{
			name:       "transport failure",
			err:        errors.New("dial tcp: connection refused"),
			wantStatus: statusTryAgain,
			wantErrno:  unix.EAGAIN,
		},
		{
			name:       "out of memory",
			err:        errOutOfMemory,
			wantStatus: statusTryAgain,
			wantErrno:  unix.EAGAIN,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, errno := classify(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantErrno, errno)
		})
	}
}
