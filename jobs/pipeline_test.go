package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/appforge/app-builder-api/attachments"
	"github.com/appforge/app-builder-api/generation"
	"github.com/appforge/app-builder-api/internal/ghfake"
	"github.com/appforge/app-builder-api/metrics"
	"github.com/appforge/app-builder-api/models"
	"github.com/appforge/app-builder-api/publish"

	"github.com/Noah-Huppert/golog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "Octo-Student"

// stubProvider answers every prompt with output and remembers the prompts
type stubProvider struct {
	mutex   sync.Mutex
	output  string
	err     error
	prompts []string
}

func (p *stubProvider) Name() string {
	return "stub"
}

func (p *stubProvider) Configured() bool {
	return true
}

func (p *stubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.prompts = append(p.prompts, prompt)
	return p.output, p.err
}

func (p *stubProvider) lastPrompt() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

// callbackRecorder is an evaluation endpoint which records callbacks
type callbackRecorder struct {
	mutex    sync.Mutex
	server   *httptest.Server
	payloads []models.CallbackPayload
}

func newCallbackRecorder(t *testing.T) *callbackRecorder {
	recorder := &callbackRecorder{}
	recorder.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := models.CallbackPayload{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		recorder.mutex.Lock()
		recorder.payloads = append(recorder.payloads, payload)
		recorder.mutex.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(recorder.server.Close)

	return recorder
}

func (c *callbackRecorder) received() []models.CallbackPayload {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]models.CallbackPayload{}, c.payloads...)
}

type pipelineFixture struct {
	job       PipelineJob
	gh        *ghfake.Server
	provider  *stubProvider
	callbacks *callbackRecorder
	metrics   metrics.Metrics
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	logger := golog.NewStdLogger("pipeline-test")

	gh := ghfake.NewServer(testOwner)
	t.Cleanup(gh.Close)

	provider := &stubProvider{
		output: "<!DOCTYPE html><html><body><button onclick=\"alert('hi')\">Go</button></body></html>",
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())

	fixture := &pipelineFixture{
		gh:        gh,
		provider:  provider,
		callbacks: newCallbackRecorder(t),
		metrics:   m,
	}

	fixture.job = PipelineJob{
		Logger:  logger,
		Metrics: m,
		Attachments: attachments.Store{
			Dir:    t.TempDir(),
			Logger: logger,
		},
		Generator: generation.Generator{
			Primary: provider,
			Retry:   testRetryPolicy(),
			Logger:  logger,
		},
		Publisher: publish.Publisher{
			GH:          gh.Client(),
			Logger:      logger,
			Owner:       testOwner,
			Branch:      "main",
			Retry:       testRetryPolicy(),
			CallTimeout: 5 * time.Second,
		},
		Notifier:   NewCallbackNotifier(logger, testRetryPolicy(), 5*time.Second),
		Owner:      testOwner,
		RepoPrefix: "student-repo-",
		Now: func() time.Time {
			return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
		},
	}

	return fixture
}

func (f *pipelineFixture) submission(round int) models.TaskSubmission {
	return models.TaskSubmission{
		Email:         "student@example.com",
		Secret:        "shh",
		Task:          "t1",
		Round:         round,
		Nonce:         "n-1",
		Brief:         "button that alerts",
		Checks:        []string{"has a button"},
		EvaluationURL: f.callbacks.server.URL + "/cb",
	}
}

func (f *pipelineFixture) run(t *testing.T, submission models.TaskSubmission) error {
	data, err := json.Marshal(submission)
	require.NoError(t, err)

	return f.job.Do(context.Background(), "run-1", data)
}

func TestPipelineFirstRound(t *testing.T) {
	f := newPipelineFixture(t)

	require.NoError(t, f.run(t, f.submission(1)))

	repo := f.gh.Repo("student-repo-t1")
	require.NotNil(t, repo)
	assert.Contains(t, repo.Files["index.html"], "<button")
	assert.Contains(t, repo.Files["index.html"], "alert(")
	assert.Contains(t, repo.Files["README.md"], "button that alerts")
	assert.Contains(t, repo.Files["LICENSE"], "MIT License")
	assert.True(t, repo.PagesEnabled)

	callbacks := f.callbacks.received()
	require.Len(t, callbacks, 1)

	cb := callbacks[0]
	assert.Equal(t, "student@example.com", cb.Email)
	assert.Equal(t, "t1", cb.Task)
	assert.Equal(t, 1, cb.Round)
	assert.Equal(t, "n-1", cb.Nonce)
	assert.Equal(t, "https://github.com/Octo-Student/student-repo-t1", cb.RepoURL)
	assert.Equal(t, repo.Commits[len(repo.Commits)-1], cb.CommitSHA)
	assert.Equal(t, "https://octo-student.github.io/student-repo-t1/", cb.PagesURL)
}

func TestPipelineSecondRoundRevisesSameRepository(t *testing.T) {
	f := newPipelineFixture(t)

	require.NoError(t, f.run(t, f.submission(1)))
	firstHTML := f.gh.Repo("student-repo-t1").Files["index.html"]

	f.provider.output = "<!DOCTYPE html><html><body>v2</body></html>"

	second := f.submission(2)
	second.Brief = "add a counter"
	require.NoError(t, f.run(t, second))

	assert.Equal(t, 1, f.gh.RepoCount())
	assert.Equal(t, 1, f.gh.Calls(ghfake.OpCreateRepo))

	prompt := f.provider.lastPrompt()
	assert.Contains(t, prompt, "add a counter")
	assert.Contains(t, prompt, firstHTML)

	repo := f.gh.Repo("student-repo-t1")
	assert.Equal(t, "<!DOCTYPE html><html><body>v2</body></html>", repo.Files["index.html"])

	callbacks := f.callbacks.received()
	require.Len(t, callbacks, 2)
	assert.Equal(t, 2, callbacks[1].Round)
	assert.Equal(t, callbacks[0].RepoURL, callbacks[1].RepoURL)
	assert.NotEqual(t, callbacks[0].CommitSHA, callbacks[1].CommitSHA)
}

func TestPipelineRevisionWithoutPreviousRepository(t *testing.T) {
	f := newPipelineFixture(t)

	require.NoError(t, f.run(t, f.submission(2)))

	assert.Contains(t, f.provider.lastPrompt(), "not available")
	assert.Len(t, f.callbacks.received(), 1)
}

func TestPipelineNormalizesFragments(t *testing.T) {
	f := newPipelineFixture(t)
	f.provider.output = "```html\n<button>Go</button>\n```"

	require.NoError(t, f.run(t, f.submission(1)))

	assert.True(t, HasDocumentStart(f.gh.Repo("student-repo-t1").Files["index.html"]))
}

func TestPipelineNoProviderConfigured(t *testing.T) {
	f := newPipelineFixture(t)
	f.job.Generator = generation.Generator{
		Logger: golog.NewStdLogger("pipeline-test"),
	}

	err := f.run(t, f.submission(1))

	var stageErr StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageGenerate, stageErr.Stage)
	assert.ErrorIs(t, err, generation.ErrNoProviderConfigured)

	assert.Equal(t, 0, f.gh.RepoCount())
	assert.Equal(t, 0, f.gh.Calls(ghfake.OpPutContents))
	assert.Empty(t, f.callbacks.received())
}

func TestPipelineGenerationFailureSendsNothing(t *testing.T) {
	f := newPipelineFixture(t)
	f.provider.err = errors.New("connection reset")

	assert.Error(t, f.run(t, f.submission(1)))
	assert.Len(t, f.provider.prompts, 3)
	assert.Equal(t, 0, f.gh.RepoCount())
	assert.Empty(t, f.callbacks.received())
}

func TestPipelinePublishFailureSendsNothing(t *testing.T) {
	f := newPipelineFixture(t)
	f.gh.FailNext(ghfake.OpGetRepo, http.StatusForbidden)

	err := f.run(t, f.submission(1))

	var stageErr StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePublish, stageErr.Stage)
	assert.True(t, publish.IsKind(err, publish.KindRepositoryAccessDenied))
	assert.Empty(t, f.callbacks.received())
}

func TestPipelineHostingFailureStillCallsBack(t *testing.T) {
	f := newPipelineFixture(t)
	f.gh.FailNext(ghfake.OpEnablePages, http.StatusForbidden)

	require.NoError(t, f.run(t, f.submission(1)))

	callbacks := f.callbacks.received()
	require.Len(t, callbacks, 1)
	assert.NotEmpty(t, callbacks[0].RepoURL)
	assert.NotEmpty(t, callbacks[0].CommitSHA)
	assert.NotEmpty(t, callbacks[0].PagesURL)
}

func TestPipelineSavesAttachments(t *testing.T) {
	f := newPipelineFixture(t)

	submission := f.submission(1)
	submission.Attachments = []models.Attachment{
		{Filename: "sample.txt", ContentBase64: "aGVsbG8="},
	}
	require.NoError(t, f.run(t, submission))

	content, err := os.ReadFile(filepath.Join(f.job.Attachments.Dir, "sample.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	assert.Contains(t, f.provider.lastPrompt(), "sample.txt (5 bytes)")
}

func TestPipelineBadData(t *testing.T) {
	f := newPipelineFixture(t)

	err := f.job.Do(context.Background(), "run-1", []byte("{"))

	var stageErr StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDecode, stageErr.Stage)
}
