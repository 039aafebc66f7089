package main

import "github.com/libnss-aad/libnss-aad-go/graph"

// qualifyingGids maps the user's directory groups through the configured
// allow-list. Groups absent from the mapping are invisible; the gid
// appended is the mapping's value, not the directory RID. skip drops the
// gid initgroups already counted (the user's primary group).
func qualifyingGids(groups []graph.Group, allow map[string]uint32, skip uint32) []uint32 {
	var gids []uint32
	for _, g := range groups {
		gid, ok := allow[g.Name]
		if !ok || gid == skip {
			continue
		}
		gids = append(gids, gid)
	}
	return gids
}

// planGidAppend sizes the caller-owned gid array for appending n entries
// at position start. The array may grow up to limit entries (limit <= 0
// means unbounded); entries that would land beyond the ceiling are
// silently truncated, per the initgroups_dyn contract. Returns the array
// size to realloc to and how many entries to actually write.
func planGidAppend(start, size, limit, n int64) (newSize, nWrite int64) {
	newSize = size
	if start+n > size {
		newSize = start + n
		if limit > 0 && newSize > limit {
			newSize = limit
		}
		if newSize < size {
			newSize = size
		}
	}
	nWrite = n
	if avail := newSize - start; nWrite > avail {
		nWrite = avail
	}
	if nWrite < 0 {
		nWrite = 0
	}
	return newSize, nWrite
}
