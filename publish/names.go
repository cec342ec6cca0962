package publish

import (
	"fmt"
	"regexp"
	"strings"
)

// pathUnsafeChars matches runs of characters which would split a repository name
// into path segments
var pathUnsafeChars = regexp.MustCompile(`[/\\\s]+`)

// invalidRepoNameChars matches characters GitHub does not allow in repository names
var invalidRepoNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeRepoName makes name a valid GitHub repository name. Runs of slashes,
// backslashes and whitespace become a single "-", as does any other character
// GitHub would reject.
func SanitizeRepoName(name string) string {
	s := pathUnsafeChars.ReplaceAllString(strings.TrimSpace(name), "-")
	return invalidRepoNameChars.ReplaceAllString(s, "-")
}

// RepoNameForTask returns the repository every round of a task is published to.
// The name depends only on the task ID so later rounds update the repository the
// first round created, making the task ID the publish idempotency key.
func RepoNameForTask(prefix, taskID string) string {
	return SanitizeRepoName(prefix + taskID)
}

// RepoURL returns the web URL of a repository
func RepoURL(owner, repoName string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, repoName)
}

// PagesURL returns the GitHub Pages URL a repository's branch root is served at
func PagesURL(owner, repoName string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", strings.ToLower(owner), repoName)
}
