package application

import "strings"

// IsExcluded reports whether a branch name matches any exclusion pattern.
// A pattern is either an exact branch name or a prefix wildcard of the form
// "prefix*". Matching is case-sensitive; there is no regex and no globstar.
// A nil or empty pattern set means no branch is excluded -- callers apply
// the subscription's default set before getting here.
func IsExcluded(branchName string, patterns []string) bool {
	for _, pattern := range patterns {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(branchName, prefix) {
				return true
			}
			continue
		}
		if branchName == pattern {
			return true
		}
	}
	return false
}
