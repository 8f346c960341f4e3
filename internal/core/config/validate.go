package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MaxRunsToKeep = 10000
	MaxDaysOld    = 3650
)

// ErrInvalidParameter wraps every validation failure.
var ErrInvalidParameter = errors.New("invalid parameter")

var (
	tokenRe        = regexp.MustCompile(`^(ghp_|ghs_|github_pat_)[a-zA-Z0-9_]{36,}$`)
	ownerRe        = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	repoRe         = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	workflowNameRe = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)
)

type paramError struct {
	name string
	msg  string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("[Invalid Parameter] <%s> %s", e.name, e.msg)
}

func (e *paramError) Unwrap() error { return ErrInvalidParameter }

func invalid(name, msg string) error {
	return &paramError{name: name, msg: msg}
}

// Validate checks the run inputs. Dry runs do not require a token.
func (c *AppConfig) Validate() error {
	if c.Token == "" {
		if !bool(c.Retention.DryRun) {
			return invalid("token", "must be provided")
		}
	} else if !tokenRe.MatchString(c.Token) {
		return invalid("token", "must be a valid GitHub token (ghp_, ghs_, or github_pat_)")
	}

	if c.Owner == "" {
		return invalid("owner", "must be provided")
	}
	if !ownerRe.MatchString(c.Owner) {
		return invalid("owner", "must be a valid GitHub username or organization")
	}

	if c.Repo == "" {
		return invalid("repo", "must be provided")
	}
	if !repoRe.MatchString(c.Repo) {
		return invalid("repo", "must be a valid GitHub repository name")
	}

	if c.Retention.RunsToKeep < 0 {
		return invalid("runs_to_keep", "must be non-negative")
	}
	if c.Retention.RunsToKeep > MaxRunsToKeep {
		return invalid("runs_to_keep", fmt.Sprintf("must be less than or equal to %d", MaxRunsToKeep))
	}

	days := c.OlderThanDays()
	if days < 0 {
		return invalid("runs_older_than", "must be non-negative")
	}
	if days > MaxDaysOld {
		return invalid("runs_older_than", fmt.Sprintf("must be less than or equal to %d days", MaxDaysOld))
	}

	for _, name := range c.Retention.WorkflowNames {
		if !workflowNameRe.MatchString(name) {
			return invalid("workflow_names", "contains invalid characters. Use alphanumeric, spaces, dashes, and underscores only")
		}
	}

	if c.Engine.BatchSize < 1 {
		return invalid("batch_size", "must be at least 1")
	}
	if _, err := c.EngineConfig(); err != nil {
		return invalid("classifier", err.Error())
	}
	return nil
}

// ParseWorkflowNames splits a comma-separated list, dropping blanks.
func ParseWorkflowNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Bool is a boolean that accepts true/false, yes/no and 1/0.
type Bool bool

// ParseBool parses the accepted boolean spellings.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no", "":
		return false, nil
	}
	return false, invalid("dry_run", "must be a boolean value (true/false, yes/no, 1/0)")
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Bool) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var v bool
		if err := unmarshal(&v); err != nil {
			return err
		}
		*b = Bool(v)
		return nil
	}
	v, err := ParseBool(s)
	if err != nil {
		return err
	}
	*b = Bool(v)
	return nil
}
