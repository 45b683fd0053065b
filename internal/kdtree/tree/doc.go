// Package tree implements an incrementally built bucket kd-tree for exact
// k-nearest-neighbour search under squared Euclidean distance.
//
// Points are routed to leaf buckets as they arrive. A bucket that outgrows
// the configured size is split on the dimension with the largest running
// variance, at the running mean of that dimension. Every node keeps the
// axis-aligned bounding box of its subtree, which the search uses to skip
// whole subtrees that cannot contain a closer point than the current k-th
// candidate.
//
// A Tree is not safe for concurrent mutation. Concurrent KNearest calls are
// safe as long as no insertion runs at the same time.
package tree
