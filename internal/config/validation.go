package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	derrors "git.home.luguber.info/inful/continuousdoc/internal/foundation/errors"
	"golang.org/x/text/language"
)

var unitIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks the main config after defaults were applied.
func (m *Main) Validate() error {
	var problems []error
	if strings.TrimSpace(m.WWW.Path) == "" {
		problems = append(problems, errors.New("www.path is required"))
	}
	if m.WWW.Build < 0 {
		problems = append(problems, fmt.Errorf("www.build must not be negative, got %d", m.WWW.Build))
	}
	if strings.TrimSpace(m.Build.Command) == "" {
		problems = append(problems, errors.New("build.command must not be empty"))
	}
	if m.Build.Timeout <= 0 {
		problems = append(problems, fmt.Errorf("build.timeout must be positive, got %s", m.Build.Timeout))
	}
	if m.Build.Concurrency < 1 {
		problems = append(problems, fmt.Errorf("build.concurrency must be at least 1, got %d", m.Build.Concurrency))
	}
	if strings.TrimSpace(m.Build.Workspace) == "" {
		problems = append(problems, errors.New("build.workspace must not be empty"))
	}
	if m.Git.MaxRetries < 0 {
		problems = append(problems, fmt.Errorf("git.max-retries must not be negative, got %d", m.Git.MaxRetries))
	}
	if m.Git.RetryInitialDelay <= 0 || m.Git.RetryMaxDelay <= 0 {
		problems = append(problems, errors.New("git retry delays must be positive"))
	} else if m.Git.RetryMaxDelay < m.Git.RetryInitialDelay {
		problems = append(problems, fmt.Errorf("git.retry-max-delay (%s) is below git.retry-initial-delay (%s)",
			m.Git.RetryMaxDelay, m.Git.RetryInitialDelay))
	}
	if m.Git.ShallowDepth < 0 {
		problems = append(problems, fmt.Errorf("git.shallow-depth must not be negative, got %d", m.Git.ShallowDepth))
	}
	if m.Daemon.Interval <= 0 {
		problems = append(problems, fmt.Errorf("daemon.interval must be positive, got %s", m.Daemon.Interval))
	}
	if m.Notify.URL != "" && strings.TrimSpace(m.Notify.Subject) == "" {
		problems = append(problems, errors.New("notify.subject is required when notify.url is set"))
	}
	if len(problems) > 0 {
		return configProblems(fmt.Sprintf("invalid main config %s", m.Path), problems)
	}
	return nil
}

// ValidateUnits checks every unit and the relations between them. Units sharing
// a checkout directory are only allowed when they track the same source and
// branch and units are processed one at a time.
func ValidateUnits(units []Unit, concurrency int) error {
	var problems []error
	if len(units) == 0 {
		problems = append(problems, errors.New("no documentation units configured"))
	}

	ids := make(map[string]bool, len(units))
	checkouts := make(map[string]Unit, len(units))
	for _, u := range units {
		if errs := validateUnit(u); len(errs) > 0 {
			problems = append(problems, errs...)
			continue
		}
		if ids[u.ID] {
			problems = append(problems, fmt.Errorf("unit %s: duplicate id", u.ID))
			continue
		}
		ids[u.ID] = true

		name, _ := u.CheckoutName()
		if other, ok := checkouts[name]; ok {
			shareable := other.Source == u.Source && other.Branch == u.Branch
			if !shareable || concurrency > 1 {
				problems = append(problems, fmt.Errorf("unit %s: checkout directory %q collides with unit %s", u.ID, name, other.ID))
			}
			continue
		}
		checkouts[name] = u
	}

	if len(problems) > 0 {
		return configProblems("invalid documentation units", problems)
	}
	return nil
}

func validateUnit(u Unit) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("unit %s: "+format, append([]any{u.ID}, args...)...))
	}
	if !unitIDPattern.MatchString(u.ID) {
		fail("id must match %s", unitIDPattern.String())
	}
	if u.Name == "" {
		fail("name is required")
	}
	if u.Language == "" {
		fail("language is required")
	} else if _, err := language.Parse(u.Language); err != nil {
		fail("language %q is not a valid language tag: %v", u.Language, err)
	}
	if u.Source == "" {
		fail("source is required")
	} else if _, err := u.CheckoutName(); err != nil {
		fail("%v", err)
	}
	if u.Branch == "" {
		fail("branch is required")
	}
	if u.DC == "" {
		fail("dc is required")
	}
	if len(u.Formats) == 0 {
		fail("no formats configured")
	}
	return errs
}

func configProblems(message string, problems []error) error {
	return derrors.ConfigError(message).
		WithCause(errors.Join(problems...)).
		WithContext("problems", len(problems)).
		Build()
}
