package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	"git.home.luguber.info/inful/continuousdoc/internal/logfields"
	"git.home.luguber.info/inful/continuousdoc/internal/retry"
	"git.home.luguber.info/inful/continuousdoc/internal/workspace"
)

// Tracker synchronises unit checkouts and reports branch revisions.
type Tracker struct {
	ws     *workspace.Manager
	cfg    config.GitConfig
	policy retry.Policy
	logger *slog.Logger
}

// NewTracker creates a tracker keeping its checkouts in ws.
func NewTracker(ws *workspace.Manager, cfg config.GitConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{ws: ws, cfg: cfg, policy: retry.FromGitConfig(cfg), logger: logger}
}

// CheckoutDir returns the working directory used for u.
func (t *Tracker) CheckoutDir(u config.Unit) (string, error) {
	name, err := u.CheckoutName()
	if err != nil {
		return "", err
	}
	return t.ws.CheckoutPath(name)
}

// LatestRevision brings the checkout of u up to date with its remote branch
// and returns the full hash the local branch points at afterwards.
func (t *Tracker) LatestRevision(ctx context.Context, u config.Unit) (string, error) {
	name, err := u.CheckoutName()
	if err != nil {
		return "", classify(u, "resolve", err)
	}
	path, err := t.ws.CheckoutPath(name)
	if err != nil {
		return "", classify(u, "resolve", err)
	}
	if err := t.ws.Create(); err != nil {
		return "", classify(u, "workspace", err)
	}

	var rev string
	err = t.policy.Do(ctx, isRetryable, func(attempt int) error {
		if attempt > 1 {
			t.logger.Warn("Retrying source sync", logfields.Unit(u.ID), logfields.Attempt(attempt))
		}
		r, serr := t.sync(ctx, u, name, path)
		if serr != nil {
			return serr
		}
		rev = r
		return nil
	})
	if err != nil {
		return "", classify(u, "sync", err)
	}
	return rev, nil
}

// RemoteRevision asks the remote for the hash of the tracked branch without
// touching the checkout.
func (t *Tracker) RemoteRevision(ctx context.Context, u config.Unit) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &ggitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{u.Source},
	})
	want := plumbing.NewBranchReferenceName(u.Branch)

	var rev string
	err := t.policy.Do(ctx, isRetryable, func(int) error {
		refs, err := remote.ListContext(ctx, &git.ListOptions{})
		if err != nil {
			return fmt.Errorf("list remote: %w", err)
		}
		for _, ref := range refs {
			if ref.Type() == plumbing.HashReference && ref.Name() == want {
				rev = ref.Hash().String()
				return nil
			}
		}
		return fmt.Errorf("%w: %s", errBranchMissing, u.Branch)
	})
	if err != nil {
		return "", classify(u, "ls-remote", err)
	}
	return rev, nil
}

func (t *Tracker) sync(ctx context.Context, u config.Unit, name, path string) (string, error) {
	var (
		repo *git.Repository
		err  error
	)
	if t.ws.HasCheckout(name) {
		repo, err = t.update(ctx, u, path)
	} else {
		repo, err = t.clone(ctx, u, name, path)
	}
	if err != nil {
		return "", err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(u.Branch), true)
	if err != nil {
		return "", fmt.Errorf("local branch %s: %w", u.Branch, err)
	}
	rev := ref.Hash().String()
	t.logger.Debug("Source synchronised",
		logfields.Unit(u.ID),
		logfields.Branch(u.Branch),
		logfields.Revision(rev))
	return rev, nil
}

func (t *Tracker) clone(ctx context.Context, u config.Unit, name, path string) (*git.Repository, error) {
	// Leftovers of an interrupted clone would make PlainClone fail.
	if err := t.ws.Discard(name); err != nil {
		return nil, err
	}
	t.logger.Info("Cloning source",
		logfields.Unit(u.ID),
		logfields.Source(u.Source),
		logfields.Branch(u.Branch),
		logfields.Path(path))

	opts := &git.CloneOptions{
		URL:           u.Source,
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(u.Branch),
		SingleBranch:  true,
		Tags:          git.NoTags,
	}
	if t.cfg.ShallowDepth > 0 {
		opts.Depth = t.cfg.ShallowDepth
	}
	repo, err := git.PlainCloneContext(ctx, path, false, opts)
	if err != nil {
		if derr := t.ws.Discard(name); derr != nil {
			t.logger.Warn("Failed to remove partial clone", logfields.Path(path), logfields.Error(derr))
		}
		return nil, fmt.Errorf("clone: %w", err)
	}
	return repo, nil
}

func (t *Tracker) update(ctx context.Context, u config.Unit, path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open checkout: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}

	if err := t.fetchOrigin(ctx, repo, u.Branch); err != nil {
		return nil, err
	}
	localRef, remoteRef, err := checkoutAndGetRefs(repo, wt, u.Branch)
	if err != nil {
		return nil, err
	}
	if err := t.syncWithRemote(repo, wt, u, localRef, remoteRef); err != nil {
		return nil, err
	}
	return repo, nil
}

// fetchOrigin fetches only the tracked branch into its remote-tracking ref.
func (t *Tracker) fetchOrigin(ctx context.Context, repo *git.Repository, branch string) error {
	spec := ggitcfg.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch))
	opts := &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []ggitcfg.RefSpec{spec},
		Tags:       git.NoTags,
		Force:      true,
	}
	if t.cfg.ShallowDepth > 0 {
		opts.Depth = t.cfg.ShallowDepth
	}
	if err := repo.FetchContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// checkoutAndGetRefs checks out the local branch, creating it at the remote
// head when it does not exist yet.
func checkoutAndGetRefs(repo *git.Repository, wt *git.Worktree, branch string) (localRef, remoteRef *plumbing.Reference, err error) {
	localName := plumbing.NewBranchReferenceName(branch)
	remoteRef, err = repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return nil, nil, fmt.Errorf("remote ref: %w", err)
	}

	if _, lerr := repo.Reference(localName, true); lerr != nil {
		if err = wt.Checkout(&git.CheckoutOptions{Branch: localName, Hash: remoteRef.Hash(), Create: true, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout new branch: %w", err)
		}
	} else if err = wt.Checkout(&git.CheckoutOptions{Branch: localName, Force: true}); err != nil {
		return nil, nil, fmt.Errorf("checkout existing branch: %w", err)
	}

	localRef, err = repo.Reference(localName, true)
	if err != nil {
		return nil, nil, fmt.Errorf("local ref: %w", err)
	}
	return localRef, remoteRef, nil
}

// syncWithRemote fast-forwards the local branch or, on divergence, resets it
// when hard-reset-on-diverge is enabled.
func (t *Tracker) syncWithRemote(repo *git.Repository, wt *git.Worktree, u config.Unit, localRef, remoteRef *plumbing.Reference) error {
	from, to := localRef.Hash(), remoteRef.Hash()

	ff, err := isAncestor(repo, from, to)
	if err != nil {
		t.logger.Warn("Ancestor check failed", logfields.Unit(u.ID), logfields.Error(err))
	}
	if !ff {
		if !t.cfg.HardResetOnDiverge {
			return errDiverged
		}
		t.logger.Warn("Diverged branch, hard resetting", logfields.Unit(u.ID), logfields.Branch(u.Branch))
	}

	if err := wt.Reset(&git.ResetOptions{Commit: to, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if from != to {
		t.logger.Info("Updated source",
			logfields.Unit(u.ID),
			logfields.Branch(u.Branch),
			slog.String("from", shortHash(from)),
			slog.String("to", shortHash(to)))
	}
	return nil
}

// isAncestor reports whether a is reachable from b.
func isAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

func shortHash(h plumbing.Hash) string {
	return h.String()[:8]
}
