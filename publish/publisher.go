package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/appforge/app-builder-api/models"
	"github.com/appforge/app-builder-api/retry"

	"github.com/Noah-Huppert/golog"
	"github.com/google/go-github/v62/github"
)

// ErrFileNotFound is returned by FetchFile when the repository or file does not exist
var ErrFileNotFound = errors.New("file not found")

// File is a file which should exist in a published repository
type File struct {
	// Path relative to the repository root
	Path string

	// Content the file should hold
	Content string
}

// Options customize a publish
type Options struct {
	// Round is used in commit messages
	Round int

	// Description is set on newly created repositories
	Description string

	// SkipHosting disables the GitHub Pages step
	SkipHosting bool
}

// Publication is the outcome of a successful publish
type Publication struct {
	models.PublishResult

	// RepoName is the sanitized repository name which was published to
	RepoName string

	// Created indicates the repository did not exist before this publish
	Created bool

	// Hosting is what is known about GitHub Pages for the repository
	Hosting HostingOutcome
}

// Publisher makes a GitHub repository hold a set of files and serves them with
// GitHub Pages. Publishing is create-or-update: the desired file content always
// overwrites what is in the repository.
type Publisher struct {
	// GH is a GitHub API client
	GH *github.Client

	// Logger logs information
	Logger golog.Logger

	// Owner is the user or organization which owns published repositories
	Owner string

	// OwnerIsOrg indicates repositories are created in the Owner organization
	// instead of under the authenticated user
	OwnerIsOrg bool

	// Branch files are written to and Pages is served from
	Branch string

	// Retry is applied to every GitHub API call. Its Retryable predicate is
	// replaced with one which understands GitHub API errors.
	Retry retry.Policy

	// CallTimeout bounds each GitHub API call, no bound if 0
	CallTimeout time.Duration
}

// Publish ensures the repository named repoName exists, holds files, and has
// Pages enabled. Files are written in order, each one its own commit. Pages
// failures are logged and reported in Publication.Hosting, they never fail the
// publish.
func (p Publisher) Publish(ctx context.Context, repoName string, files []File, opts Options) (*Publication, error) {
	// {{{1 Check configuration
	if p.GH == nil || len(p.Owner) == 0 {
		return nil, PublishError{
			Kind:  KindAuthConfigMissing,
			Stage: "publish",
			Err:   fmt.Errorf("a GitHub client and repository owner are required"),
		}
	}

	name := SanitizeRepoName(repoName)

	// {{{1 Resolve or create repository
	repo, created, err := p.resolveRepo(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	// {{{1 Upsert files
	// The first write to a repository without commits initializes the branch.
	// Repositories can be left empty by an earlier publish which failed after
	// creating them.
	empty := created
	if !created {
		empty, err = p.isEmpty(ctx, name)
		if err != nil {
			return nil, err
		}
	}

	for _, file := range files {
		if err := p.upsertFile(ctx, name, file, opts, empty); err != nil {
			return nil, err
		}

		empty = false
	}

	// {{{1 Read back latest commit
	commitSHA, err := p.latestCommit(ctx, name)
	if err != nil {
		return nil, err
	}

	// {{{1 Enable hosting
	hosting := HostingNotAttempted
	if !opts.SkipHosting {
		hosting = p.enablePages(ctx, name)
	}

	// {{{1 Compose result
	repoURL := repo.GetHTMLURL()
	if len(repoURL) == 0 {
		repoURL = RepoURL(p.Owner, name)
	}

	return &Publication{
		PublishResult: models.PublishResult{
			RepoURL:   repoURL,
			CommitSHA: commitSHA,
			PagesURL:  PagesURL(p.Owner, name),
		},
		RepoName: name,
		Created:  created,
		Hosting:  hosting,
	}, nil
}

// FetchFile returns the content of a file on the Publisher's branch. Returns
// ErrFileNotFound if the repository or file does not exist.
func (p Publisher) FetchFile(ctx context.Context, repoName, path string) (string, error) {
	if p.GH == nil || len(p.Owner) == 0 {
		return "", PublishError{
			Kind:  KindAuthConfigMissing,
			Stage: "fetch file",
			Err:   fmt.Errorf("a GitHub client and repository owner are required"),
		}
	}

	name := SanitizeRepoName(repoName)

	var content *github.RepositoryContent
	err := p.do(ctx, func(callCtx context.Context) error {
		fileContent, _, _, err := p.GH.Repositories.GetContents(callCtx, p.Owner, name,
			path, &github.RepositoryContentGetOptions{
				Ref: p.Branch,
			})
		content = fileContent
		return err
	})
	if isNotFound(err) {
		return "", ErrFileNotFound
	} else if err != nil {
		return "", classify(fmt.Sprintf("get %s from %s", path, name), err)
	}

	if content == nil {
		return "", fmt.Errorf("%s in %s is a directory, not a file", path, name)
	}

	txt, err := content.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode content of %s: %s", path, err.Error())
	}

	return txt, nil
}

// do runs a GitHub API call under the retry policy, giving every attempt its own
// timeout
func (p Publisher) do(ctx context.Context, call func(callCtx context.Context) error) error {
	policy := p.Retry.WithRetryable(isTransient)
	if policy.OnRetry == nil {
		policy = policy.WithOnRetry(func(err error, wait time.Duration) {
			p.Logger.Warnf("GitHub API call failed, retrying in %s: %s", wait, err.Error())
		})
	}

	return retry.Do(ctx, policy, func() error {
		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			defer cancel()
		}

		return call(callCtx)
	})
}

// resolveRepo gets the repository, creating it if it does not exist. The boolean
// return value indicates if the repository was created.
func (p Publisher) resolveRepo(ctx context.Context, name string, opts Options) (*github.Repository, bool, error) {
	// {{{1 Get existing
	repo, err := p.getRepo(ctx, name)
	if err == nil {
		p.Logger.Infof("repository %s/%s found, updating for round %d", p.Owner, name,
			opts.Round)
		return repo, false, nil
	} else if !isNotFound(err) {
		return nil, false, classify(fmt.Sprintf("get repository %s", name), err)
	}

	// {{{1 Create
	// No README or license is generated by GitHub, every file comes from the caller
	org := ""
	if p.OwnerIsOrg {
		org = p.Owner
	}

	p.Logger.Infof("creating repository %s/%s", p.Owner, name)

	err = p.do(ctx, func(callCtx context.Context) error {
		createdRepo, _, err := p.GH.Repositories.Create(callCtx, org, &github.Repository{
			Name:        github.String(name),
			Description: github.String(opts.Description),
			Private:     github.Bool(false),
			AutoInit:    github.Bool(false),
		})
		repo = createdRepo
		return err
	})

	switch code := statusCode(err); {
	case err == nil:
		return repo, true, nil

	case code == http.StatusUnprocessableEntity:
		// The name exists. If it became visible since the get, another run for the
		// same task won a race to create it. Otherwise it belongs to someone else.
		existing, getErr := p.getRepo(ctx, name)
		if getErr == nil {
			p.Logger.Infof("repository %s/%s was created concurrently, updating it",
				p.Owner, name)
			return existing, false, nil
		}

		return nil, false, PublishError{
			Kind:  KindRepositoryAccessDenied,
			Stage: fmt.Sprintf("create repository %s", name),
			Err:   err,
		}

	case code == http.StatusNotFound:
		return nil, false, PublishError{
			Kind:  KindRepositoryAccessDenied,
			Stage: fmt.Sprintf("create repository %s", name),
			Err:   err,
		}

	default:
		return nil, false, classify(fmt.Sprintf("create repository %s", name), err)
	}
}

// getRepo gets a repository owned by Owner
func (p Publisher) getRepo(ctx context.Context, name string) (*github.Repository, error) {
	var repo *github.Repository

	err := p.do(ctx, func(callCtx context.Context) error {
		r, _, err := p.GH.Repositories.Get(callCtx, p.Owner, name)
		repo = r
		return err
	})

	return repo, err
}

// upsertFile makes a file in the repository hold file.Content. Existing files are
// overwritten without comparing content. If initial is true the write is the
// repository's first commit and no branch is specified so GitHub creates the
// default branch.
func (p Publisher) upsertFile(ctx context.Context, name string, file File, opts Options, initial bool) error {
	action := ""

	err := p.do(ctx, func(callCtx context.Context) error {
		// {{{1 Get current file SHA
		existing, _, _, err := p.GH.Repositories.GetContents(callCtx, p.Owner, name,
			file.Path, &github.RepositoryContentGetOptions{
				Ref: p.Branch,
			})
		if err != nil && !isNotFound(err) {
			return err
		}

		// {{{1 Write
		fileOpts := &github.RepositoryContentFileOptions{
			Content: []byte(file.Content),
		}
		if !initial {
			fileOpts.Branch = github.String(p.Branch)
		}

		if err == nil && existing != nil {
			action = "Update"
			fileOpts.SHA = existing.SHA
			fileOpts.Message = github.String(fmt.Sprintf("Update %s for round %d",
				file.Path, opts.Round))

			_, _, err = p.GH.Repositories.UpdateFile(callCtx, p.Owner, name, file.Path,
				fileOpts)
			return err
		}

		action = "Create"
		fileOpts.Message = github.String(fmt.Sprintf("Create %s for round %d",
			file.Path, opts.Round))

		_, _, err = p.GH.Repositories.CreateFile(callCtx, p.Owner, name, file.Path,
			fileOpts)
		return err
	})
	if err != nil {
		return classify(fmt.Sprintf("write %s in %s", file.Path, name), err)
	}

	p.Logger.Infof("%sd %s in %s/%s", action, file.Path, p.Owner, name)

	return nil
}

// isEmpty indicates a repository has no commits
func (p Publisher) isEmpty(ctx context.Context, name string) (bool, error) {
	err := p.do(ctx, func(callCtx context.Context) error {
		_, _, err := p.GH.Repositories.GetCommitSHA1(callCtx, p.Owner, name, p.Branch, "")
		return err
	})

	// GitHub responds with a conflict for repositories without commits
	switch code := statusCode(err); {
	case err == nil:
		return false, nil
	case code == http.StatusConflict:
		p.Logger.Infof("repository %s/%s has no commits yet", p.Owner, name)
		return true, nil
	default:
		return false, classify(fmt.Sprintf("check commits of %s on %s", name, p.Branch), err)
	}
}

// latestCommit returns the SHA of the newest commit on the Publisher's branch
func (p Publisher) latestCommit(ctx context.Context, name string) (string, error) {
	sha := ""

	err := p.do(ctx, func(callCtx context.Context) error {
		s, _, err := p.GH.Repositories.GetCommitSHA1(callCtx, p.Owner, name, p.Branch, "")
		sha = s
		return err
	})
	if err != nil {
		return "", classify(fmt.Sprintf("get latest commit of %s on %s", name, p.Branch),
			err)
	}

	if len(sha) == 0 {
		return "", PublishError{
			Kind:  KindFileWriteConflict,
			Stage: fmt.Sprintf("get latest commit of %s on %s", name, p.Branch),
			Err:   fmt.Errorf("GitHub returned an empty commit SHA"),
		}
	}

	return sha, nil
}

// enablePages turns on GitHub Pages for the root of the Publisher's branch.
// Failures are logged, not returned.
func (p Publisher) enablePages(ctx context.Context, name string) HostingOutcome {
	err := p.do(ctx, func(callCtx context.Context) error {
		_, _, err := p.GH.Repositories.EnablePages(callCtx, p.Owner, name, &github.Pages{
			Source: &github.PagesSource{
				Branch: github.String(p.Branch),
				Path:   github.String("/"),
			},
		})
		return err
	})

	// GitHub responds with a conflict if Pages is already enabled
	if err == nil || statusCode(err) == http.StatusConflict {
		p.Logger.Infof("GitHub Pages enabled for %s/%s, hosting=%s", p.Owner, name,
			HostingEnabled)
		return HostingEnabled
	}

	hostingErr := PublishError{
		Kind:  KindHostingEnableFailed,
		Stage: fmt.Sprintf("enable GitHub Pages for %s", name),
		Err:   err,
	}
	p.Logger.Warnf("%s, hosting=%s", hostingErr.Error(), HostingUnconfirmed)

	return HostingUnconfirmed
}
