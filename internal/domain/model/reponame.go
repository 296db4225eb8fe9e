package model

import (
	"fmt"
	"strings"
)

// NormalizeRepoName collapses the accepted repository spellings down to the
// canonical "owner/repo" form: full GitHub URLs, scheme-less URLs, SSH remote
// syntax, a trailing ".git", and surrounding slashes or whitespace. It is
// idempotent; normalizing an already-canonical name returns it unchanged.
func NormalizeRepoName(raw string) string {
	name := strings.TrimSpace(raw)

	for _, prefix := range []string{"https://", "http://", "git@"} {
		name = strings.TrimPrefix(name, prefix)
	}

	// SSH remotes separate host and path with a colon.
	name = strings.TrimPrefix(name, "github.com:")
	name = strings.TrimPrefix(name, "github.com/")

	name = strings.TrimSuffix(name, ".git")
	name = strings.Trim(name, "/")

	// A URL with extra path segments ("owner/repo/pulls") keeps only the
	// first two.
	parts := strings.Split(name, "/")
	if len(parts) > 2 {
		name = parts[0] + "/" + parts[1]
	}

	return name
}

// ValidateRepoName checks that name is canonical "owner/repo" with non-empty
// components and no embedded whitespace.
func ValidateRepoName(name string) error {
	parts := strings.Split(name, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid repo name %q: expected owner/repo", name)
	}
	if strings.ContainsAny(name, " \t") {
		return fmt.Errorf("invalid repo name %q: contains whitespace", name)
	}
	return nil
}

// SplitRepoName splits a canonical "owner/repo" name into its components.
func SplitRepoName(name string) (owner, repo string, err error) {
	if err := ValidateRepoName(name); err != nil {
		return "", "", err
	}
	parts := strings.SplitN(name, "/", 2)
	return parts[0], parts[1], nil
}
