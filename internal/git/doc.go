// Package git keeps the working checkouts of documentation sources in sync
// with their remotes and reports the revision each tracked branch points at.
//
// Checkouts live in the workspace under the repository's base name and are
// reused across runs:
//   - a missing checkout is cloned (single branch, optionally shallow)
//   - an existing checkout is fetched, the branch checked out and fast-forwarded
//   - a diverged branch is reset to the remote when configured, otherwise an error
//
// Transient failures are retried according to the configured retry policy.
// Errors carry either ErrSourceUnavailable or ErrSourceSyncFailed.
package git
