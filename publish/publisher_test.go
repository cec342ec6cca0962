package publish

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/appforge/app-builder-api/internal/ghfake"
	"github.com/appforge/app-builder-api/retry"

	"github.com/Noah-Huppert/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "Octo-Student"

func newTestPublisher(t *testing.T) (Publisher, *ghfake.Server) {
	gh := ghfake.NewServer(testOwner)
	t.Cleanup(gh.Close)

	return Publisher{
		GH:     gh.Client(),
		Logger: golog.NewStdLogger("publish-test"),
		Owner:  testOwner,
		Branch: "main",
		Retry: retry.Policy{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   time.Millisecond,
			MaxDelay:    4 * time.Millisecond,
		},
		CallTimeout: 5 * time.Second,
	}, gh
}

func bundle(index string) []File {
	return []File{
		{Path: "index.html", Content: index},
		{Path: "README.md", Content: "# student-repo-t1"},
		{Path: "LICENSE", Content: "MIT License"},
	}
}

func TestPublishCreatesRepository(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	pub, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<!doctype html><p>one</p>"), Options{Round: 1})
	require.NoError(t, err)

	assert.True(t, pub.Created)
	assert.Equal(t, "student-repo-t1", pub.RepoName)
	assert.Equal(t, "https://github.com/Octo-Student/student-repo-t1", pub.RepoURL)
	assert.Equal(t, "https://octo-student.github.io/student-repo-t1/", pub.PagesURL)
	assert.Equal(t, HostingEnabled, pub.Hosting)

	repo := gh.Repo("student-repo-t1")
	require.NotNil(t, repo)
	assert.Equal(t, "<!doctype html><p>one</p>", repo.Files["index.html"])
	assert.Contains(t, repo.Files, "README.md")
	assert.Contains(t, repo.Files, "LICENSE")
	assert.True(t, repo.PagesEnabled)
	assert.Equal(t, "", repo.Org, "user repositories are not created in an organization")

	// First write initializes the branch, so it must not name one
	assert.Equal(t, "", repo.InitialCommitBranch)
	assert.Equal(t, repo.Commits[len(repo.Commits)-1], pub.CommitSHA)
	assert.Equal(t, []string{
		"Create index.html for round 1",
		"Create README.md for round 1",
		"Create LICENSE for round 1",
	}, repo.CommitMessages)
}

func TestPublishTwiceUpdatesSameRepository(t *testing.T) {
	publisher, gh := newTestPublisher(t)
	ctx := context.Background()

	first, err := publisher.Publish(ctx, "student-repo-t1", bundle("<html>v1</html>"),
		Options{Round: 1})
	require.NoError(t, err)

	second, err := publisher.Publish(ctx, "student-repo-t1", bundle("<html>v2</html>"),
		Options{Round: 2})
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, 1, gh.RepoCount())
	assert.Equal(t, 1, gh.Calls(ghfake.OpCreateRepo))
	assert.Equal(t, first.RepoURL, second.RepoURL)
	assert.Equal(t, first.PagesURL, second.PagesURL)
	assert.NotEqual(t, first.CommitSHA, second.CommitSHA)

	repo := gh.Repo("student-repo-t1")
	assert.Equal(t, "<html>v2</html>", repo.Files["index.html"])
	assert.Contains(t, repo.CommitMessages, "Update index.html for round 2")

	// Pages already enabled is still a confirmed outcome
	assert.Equal(t, HostingEnabled, second.Hosting)
}

func TestPublishIdenticalContentKeepsURLs(t *testing.T) {
	publisher, gh := newTestPublisher(t)
	ctx := context.Background()

	files := bundle("<html>same</html>")

	first, err := publisher.Publish(ctx, "student-repo-t1", files, Options{Round: 1})
	require.NoError(t, err)

	second, err := publisher.Publish(ctx, "student-repo-t1", files, Options{Round: 1})
	require.NoError(t, err)

	assert.Equal(t, first.RepoURL, second.RepoURL)
	assert.Equal(t, first.PagesURL, second.PagesURL)
	assert.Equal(t, "<html>same</html>", gh.Repo("student-repo-t1").Files["index.html"])
}

func TestPublishSanitizesName(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	pub, err := publisher.Publish(context.Background(), `student-repo-a/b\c d`,
		bundle("<html></html>"), Options{Round: 1})
	require.NoError(t, err)

	assert.Equal(t, "student-repo-a-b-c-d", pub.RepoName)
	assert.NotNil(t, gh.Repo("student-repo-a-b-c-d"))
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	gh.FailNext(ghfake.OpGetRepo, http.StatusBadGateway)
	gh.FailNext(ghfake.OpPutContents, http.StatusInternalServerError,
		http.StatusServiceUnavailable)
	gh.FailNext(ghfake.OpGetCommit, http.StatusTooManyRequests)

	pub, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html></html>"), Options{Round: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, pub.CommitSHA)

	assert.Equal(t, 2, gh.Calls(ghfake.OpGetRepo))
	assert.Equal(t, 2, gh.Calls(ghfake.OpGetCommit))
	assert.Equal(t, 3+2, gh.Calls(ghfake.OpPutContents))
}

func TestPublishGivesUpAfterThreeAttempts(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	gh.FailNext(ghfake.OpGetRepo, http.StatusInternalServerError,
		http.StatusInternalServerError, http.StatusInternalServerError)

	_, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html></html>"), Options{Round: 1})
	require.Error(t, err)

	assert.True(t, IsKind(err, KindTransientServiceError))
	assert.Equal(t, 3, gh.Calls(ghfake.OpGetRepo))
	assert.Equal(t, 0, gh.Calls(ghfake.OpCreateRepo))
}

func TestPublishDoesNotRetryDefinitiveErrors(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	gh.FailNext(ghfake.OpGetRepo, http.StatusForbidden)

	_, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html></html>"), Options{Round: 1})

	assert.True(t, IsKind(err, KindRepositoryAccessDenied))
	assert.Equal(t, 1, gh.Calls(ghfake.OpGetRepo))
}

func TestPublishForeignNameIsAccessDenied(t *testing.T) {
	publisher, gh := newTestPublisher(t)
	gh.ForeignNames["student-repo-t1"] = true

	_, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html></html>"), Options{Round: 1})

	assert.True(t, IsKind(err, KindRepositoryAccessDenied))
	assert.Equal(t, 0, gh.RepoCount())
}

func TestPublishHostingFailureDoesNotFail(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	gh.FailNext(ghfake.OpEnablePages, http.StatusForbidden)

	pub, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html></html>"), Options{Round: 1})
	require.NoError(t, err)

	assert.Equal(t, HostingUnconfirmed, pub.Hosting)
	assert.NotEmpty(t, pub.RepoURL)
	assert.NotEmpty(t, pub.CommitSHA)
	assert.Equal(t, "https://octo-student.github.io/student-repo-t1/", pub.PagesURL)
}

func TestPublishSkipHosting(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	pub, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html></html>"), Options{Round: 1, SkipHosting: true})
	require.NoError(t, err)

	assert.Equal(t, HostingNotAttempted, pub.Hosting)
	assert.False(t, pub.Hosting.Confirmed())
	assert.Equal(t, 0, gh.Calls(ghfake.OpEnablePages))
}

func TestPublishNoFilesToEmptyRepository(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	_, err := publisher.Publish(context.Background(), "student-repo-t1", nil,
		Options{Round: 1})

	assert.True(t, IsKind(err, KindFileWriteConflict))
	assert.Equal(t, 1, gh.Calls(ghfake.OpGetCommit), "a 409 must not be retried")
}

func TestPublishNoFilesToExistingRepository(t *testing.T) {
	publisher, gh := newTestPublisher(t)
	gh.SeedRepo("student-repo-t1", map[string]string{"index.html": "<html></html>"})

	pub, err := publisher.Publish(context.Background(), "student-repo-t1", nil,
		Options{Round: 1})
	require.NoError(t, err)

	assert.False(t, pub.Created)
	assert.Equal(t, gh.Repo("student-repo-t1").Commits[0], pub.CommitSHA)
}

func TestPublishWithoutConfig(t *testing.T) {
	_, err := Publisher{}.Publish(context.Background(), "student-repo-t1", nil, Options{})
	assert.True(t, IsKind(err, KindAuthConfigMissing))
}

func TestFetchFile(t *testing.T) {
	publisher, gh := newTestPublisher(t)
	ctx := context.Background()

	_, err := publisher.FetchFile(ctx, "student-repo-t1", "index.html")
	assert.ErrorIs(t, err, ErrFileNotFound)

	gh.SeedRepo("student-repo-t1", map[string]string{"index.html": "<html>old</html>"})

	content, err := publisher.FetchFile(ctx, "student-repo-t1", "index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html>old</html>", content)

	_, err = publisher.FetchFile(ctx, "student-repo-t1", "missing.html")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestPublishCreatesOrganizationRepository(t *testing.T) {
	publisher, gh := newTestPublisher(t)
	publisher.OwnerIsOrg = true

	pub, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html></html>"), Options{Round: 1})
	require.NoError(t, err)

	assert.True(t, pub.Created)

	repo := gh.Repo("student-repo-t1")
	require.NotNil(t, repo)
	assert.Equal(t, testOwner, repo.Org)
	assert.Equal(t, "<html></html>", repo.Files["index.html"])
}

func TestPublishConcurrentCreateContinuesAsUpdate(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	// Another run for the task created the repository after this run's get
	gh.SeedRepo("student-repo-t1", map[string]string{"index.html": "<html>other</html>"})
	gh.FailNext(ghfake.OpGetRepo, http.StatusNotFound)

	pub, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html>mine</html>"), Options{Round: 1})
	require.NoError(t, err)

	assert.False(t, pub.Created)
	assert.Equal(t, 1, gh.Calls(ghfake.OpCreateRepo))
	assert.Equal(t, 2, gh.Calls(ghfake.OpGetRepo))
	assert.Equal(t, 1, gh.RepoCount())

	repo := gh.Repo("student-repo-t1")
	assert.Equal(t, "<html>mine</html>", repo.Files["index.html"])
	assert.Contains(t, repo.CommitMessages, "Update index.html for round 1")
	assert.Equal(t, repo.Commits[len(repo.Commits)-1], pub.CommitSHA)
}

func TestPublishConcurrentCreateOfEmptyRepository(t *testing.T) {
	publisher, gh := newTestPublisher(t)

	gh.SeedRepo("student-repo-t1", nil)
	gh.FailNext(ghfake.OpGetRepo, http.StatusNotFound)

	pub, err := publisher.Publish(context.Background(), "student-repo-t1",
		bundle("<html></html>"), Options{Round: 1})
	require.NoError(t, err)

	assert.False(t, pub.Created)

	repo := gh.Repo("student-repo-t1")
	assert.Equal(t, "", repo.InitialCommitBranch)
	assert.Len(t, repo.Files, 3)
}

func TestPublishRecoversRepositoryLeftEmpty(t *testing.T) {
	publisher, gh := newTestPublisher(t)
	ctx := context.Background()

	// Every attempt at the first write fails, leaving a repository without commits
	gh.FailNext(ghfake.OpPutContents, http.StatusBadGateway, http.StatusBadGateway,
		http.StatusBadGateway)

	_, err := publisher.Publish(ctx, "student-repo-t1", bundle("<html>v1</html>"),
		Options{Round: 1})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransientServiceError))

	repo := gh.Repo("student-repo-t1")
	require.NotNil(t, repo)
	assert.Empty(t, repo.Commits)

	pub, err := publisher.Publish(ctx, "student-repo-t1", bundle("<html>v1</html>"),
		Options{Round: 1})
	require.NoError(t, err)

	assert.False(t, pub.Created)
	assert.Equal(t, 1, gh.Calls(ghfake.OpCreateRepo))

	repo = gh.Repo("student-repo-t1")
	assert.Equal(t, "", repo.InitialCommitBranch)
	assert.Equal(t, "<html>v1</html>", repo.Files["index.html"])
	assert.Equal(t, repo.Commits[len(repo.Commits)-1], pub.CommitSHA)
}
