// Package errors provides the classified error primitives used across continuousdoc.
//
// Every failure that crosses a component boundary is a ClassifiedError carrying a
// category (config, git, build, publish, ledger, ...), a severity and a retry hint.
// The orchestrator uses the category and severity to decide whether a failure is
// run-fatal (ledger, config) or only affects a single unit or format.
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryGit, "fetch failed").
//		Retryable().
//		WithContext("url", repoURL).
//		WithCause(originalErr).
//		Build()
package errors
