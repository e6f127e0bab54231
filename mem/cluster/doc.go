// Package cluster tracks runs of adjacent chapters during one assembly
// attempt.
//
// A Set holds Clusters in ascending address order and keeps them pairwise
// non-adjacent: whenever an inserted chapter touches a neighbour it is
// folded into it, and a prepend that closes the gap to the previous cluster
// absorbs that cluster too. Because no two tracked clusters are ever
// adjacent, one insertion performs at most two merges.
//
// Records live in an arena of slots indexed by a sorted vector, so an ID
// stays valid while its cluster grows and neighbour lookup is a binary
// search.
//
// A Set is not safe for concurrent use; an assembly owns its set.
package cluster
