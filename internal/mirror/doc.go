// Package mirror keeps a local clone of the upstream web-platform-tests
// repository. Each update checks out the target revision on a throwaway
// isolation branch, so no pre-existing branch is ever moved, and the tracked
// tree (including nested submodules) can then be copied wholesale into the
// downstream test directory.
//
// Updates are not transactional. A failure part way through, such as a
// network error during fetch, can leave the clone dirty, and the next Update
// refuses to run until an operator has inspected it.
package mirror
