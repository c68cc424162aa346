// Package workspace manages the persistent directory of source checkouts.
//
// Each documentation source is checked out once under the workspace root, in a
// directory named after the repository, and reused by every later run.
package workspace
