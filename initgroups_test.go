package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/libnss-aad/libnss-aad-go/graph"
)

func TestPlanGidAppend(t *testing.T) {
	cases := []struct {
		name                   string
		start, size, limit, n  int64
		wantNewSize, wantWrite int64
	}{
		{
			name:  "fits without growth",
			start: 1, size: 4, limit: 0, n: 2,
			wantNewSize: 4, wantWrite: 2,
		},
		{
			name:  "grows unbounded",
			start: 0, size: 2, limit: 0, n: 5,
			wantNewSize: 5, wantWrite: 5,
		},
		{
			name:  "truncated at ceiling",
			start: 0, size: 2, limit: 3, n: 5,
			wantNewSize: 3, wantWrite: 3,
		},
		{
			name:  "ceiling already reached",
			start: 3, size: 3, limit: 3, n: 2,
			wantNewSize: 3, wantWrite: 0,
		},
		{
			name:  "growth stops exactly at ceiling",
			start: 1, size: 2, limit: 4, n: 9,
			wantNewSize: 4, wantWrite: 3,
		},
		{
			name:  "negative limit means unbounded",
			start: 0, size: 1, limit: -1, n: 3,
			wantNewSize: 3, wantWrite: 3,
		},
		{
			name:  "nothing to append",
			start: 2, size: 4, limit: 0, n: 0,
			wantNewSize: 4, wantWrite: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			newSize, nWrite := planGidAppend(tc.start, tc.size, tc.limit, tc.n)
			assert.Equal(t, tc.wantNewSize, newSize, "newSize")
			assert.Equal(t, tc.wantWrite, nWrite, "nWrite")
		})
	}
}

func TestQualifyingGids(t *testing.T) {
	groups := []graph.Group{
		{Name: "devs", ObjectID: "o1", GID: 5001},
		{Name: "ops", ObjectID: "o2", GID: 5002},
		{Name: "unlisted", ObjectID: "o3", GID: 5003},
		{Name: "wheel", ObjectID: "o4", GID: 5004},
	}
	allow := map[string]uint32{
		"devs":  2001,
		"ops":   2002,
		"wheel": 2003,
	}

	// The appended gid is the allow-list value, not the directory RID,
	// and groups outside the allow-list are invisible.
	assert.Equal(t, []uint32{2001, 2002, 2003}, qualifyingGids(groups, allow, 0))

	// The skip gid is the caller's primary group.
	assert.Equal(t, []uint32{2001, 2003}, qualifyingGids(groups, allow, 2002))

	assert.Empty(t, qualifyingGids(groups, map[string]uint32{}, 0))
	assert.Empty(t, qualifyingGids(nil, allow, 0))
}
