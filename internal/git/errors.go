package git

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
)

var (
	// ErrSourceUnavailable means the repository or tracked branch does not exist.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceSyncFailed means the checkout could not be brought up to date.
	ErrSourceSyncFailed = errors.New("source synchronisation failed")
)

var (
	errBranchMissing = errors.New("branch not found on remote")
	errDiverged      = errors.New("local branch diverged from remote (enable hard-reset-on-diverge to override)")
)

// classify wraps a raw synchronisation error into a git ClassifiedError
// carrying the matching sentinel.
func classify(u config.Unit, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := derrors.AsClassified(err); ok {
		return err
	}

	sentinel, message := ErrSourceSyncFailed, "failed to synchronise source"
	if isUnavailable(err) {
		sentinel, message = ErrSourceUnavailable, "source unavailable"
	}

	b := derrors.GitError(message).
		WithCause(fmt.Errorf("%w: %w", sentinel, err)).
		WithContext("op", op).
		WithContext("unit", u.ID).
		WithContext("source", u.Source).
		WithContext("branch", u.Branch)
	if !isRetryable(err) {
		b.WithRetry(derrors.RetryNever)
	}
	return b.Build()
}

func isUnavailable(err error) bool {
	switch {
	case errors.Is(err, errBranchMissing),
		errors.Is(err, git.NoMatchingRefSpecError{}),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository):
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "couldn't find remote ref") ||
		strings.Contains(msg, "repository not found")
}

// isRetryable reports whether another attempt could succeed. Missing sources,
// credential problems, divergence and cancellation are permanent.
func isRetryable(err error) bool {
	if err == nil || isUnavailable(err) {
		return false
	}
	switch {
	case errors.Is(err, errDiverged),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return false
	}
	if strings.Contains(msg, "unsupported protocol") || strings.Contains(msg, "invalid reference") {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return true
}
