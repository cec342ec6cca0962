package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appforge/app-builder-api/attachments"
	"github.com/appforge/app-builder-api/metrics"
	"github.com/appforge/app-builder-api/models"
	"github.com/appforge/app-builder-api/publish"

	"github.com/Noah-Huppert/golog"
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline stages, used to label failures
const (
	StageDecode   = "decode"
	StageGenerate = "generate"
	StagePublish  = "publish"
	StageCallback = "callback"
)

// ArtifactGenerator produces raw HTML from a prompt
type ArtifactGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RepoPublisher writes files to a repository and reads them back
type RepoPublisher interface {
	Publish(ctx context.Context, repoName string, files []publish.File, opts publish.Options) (*publish.Publication, error)
	FetchFile(ctx context.Context, repoName, path string) (string, error)
}

// CallbackSender delivers a payload to an evaluation URL
type CallbackSender interface {
	Send(ctx context.Context, url string, payload models.CallbackPayload) error
}

// StageError is a pipeline failure
type StageError struct {
	// Stage which failed
	Stage string

	// Err is the failure
	Err error
}

// Error implements error
func (e StageError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Err.Error())
}

// Unwrap returns Err
func (e StageError) Unwrap() error {
	return e.Err
}

// PipelineJob turns one task submission into a published application and reports
// it to the submission's evaluation URL. Data is a JSON encoded
// models.TaskSubmission.
//
// Steps run one after another:
//    1. Save attachments
//    2. On revisions, fetch the previous index.html
//    3. Generate and normalize HTML
//    4. Publish index.html, README.md and LICENSE
//    5. Send the callback
//
// A failure in generation, publishing or the callback abandons the run. Nothing
// is sent to the evaluation URL unless publishing succeeded.
type PipelineJob struct {
	// Logger logs information
	Logger golog.Logger

	// Metrics records pipeline outcomes
	Metrics metrics.Metrics

	// Attachments saves uploaded files
	Attachments attachments.Store

	// Generator produces HTML
	Generator ArtifactGenerator

	// Publisher publishes to GitHub
	Publisher RepoPublisher

	// Notifier delivers callbacks
	Notifier CallbackSender

	// Owner of published repositories, used in the license
	Owner string

	// RepoPrefix is prepended to task IDs to name repositories
	RepoPrefix string

	// Now returns the current time, time.Now if nil
	Now func() time.Time
}

// Do implements Job
func (j PipelineJob) Do(ctx context.Context, runID string, data []byte) error {
	submission := models.TaskSubmission{}
	if err := json.Unmarshal(data, &submission); err != nil {
		return j.fail(runID, submission, StageDecode,
			fmt.Errorf("failed to decode submission: %w", err))
	}

	logger := j.Logger.GetChild(fmt.Sprintf("task=%s round=%d nonce=%s run=%s",
		submission.Task, submission.Round, submission.Nonce, runID))

	// {{{1 Attachments
	saved := j.Attachments.SaveAll(submission.Attachments)

	// {{{1 Previous round
	repoName := publish.RepoNameForTask(j.RepoPrefix, submission.Task)

	existingHTML := ""
	if submission.IsRevision() {
		existing, err := j.Publisher.FetchFile(ctx, repoName, IndexPath)
		if err != nil {
			if errors.Is(err, publish.ErrFileNotFound) {
				logger.Warnf("no previous %s in %s", IndexPath, repoName)
			} else {
				logger.Warnf("failed to fetch previous %s from %s: %s", IndexPath,
					repoName, err.Error())
			}
		} else {
			existingHTML = existing
		}
	}

	// {{{1 Generate
	raw, err := j.Generator.Generate(ctx, BuildPrompt(submission, saved, existingHTML))
	if err != nil {
		return j.fail(runID, submission, StageGenerate, err)
	}

	artifact := NormalizeHTML(raw)
	if artifact.HTML != strings.TrimSpace(raw) {
		logger.Debug("normalized generated output")
	}

	// {{{1 Publish
	bundle := Bundle{
		Submission: submission,
		Artifact:   artifact,
		Owner:      j.Owner,
		RepoName:   publish.SanitizeRepoName(repoName),
		Now:        j.now(),
	}

	publication, err := j.Publisher.Publish(ctx, repoName, bundle.Files(), publish.Options{
		Round:       submission.Round,
		Description: fmt.Sprintf("Generated application for task %s", submission.Task),
	})
	if err != nil {
		return j.fail(runID, submission, StagePublish, err)
	}

	j.Metrics.HostingOutcomesTotal.With(prometheus.Labels{
		"outcome": string(publication.Hosting),
	}).Inc()

	if !publication.Hosting.Confirmed() {
		logger.Warnf("GitHub Pages %s for %s, pages URL may not serve yet",
			publication.Hosting, publication.RepoName)
	}

	logger.Infof("published %s at commit %s", publication.RepoURL, publication.CommitSHA)

	// {{{1 Callback
	payload := models.NewCallbackPayload(submission, publication.PublishResult)
	if err := j.Notifier.Send(ctx, submission.EvaluationURL, payload); err != nil {
		return j.fail(runID, submission, StageCallback, err)
	}

	logger.Infof("sent callback to %s", submission.EvaluationURL)

	return nil
}

// fail records a failed stage and returns it as a StageError
func (j PipelineJob) fail(runID string, submission models.TaskSubmission, stage string, err error) error {
	j.Metrics.PipelineFailuresTotal.With(prometheus.Labels{
		"stage": stage,
	}).Inc()

	j.Logger.Errorf("run %s for task=%s round=%d nonce=%s abandoned at %s: %s",
		runID, submission.Task, submission.Round, submission.Nonce, stage, err.Error())

	return StageError{
		Stage: stage,
		Err:   err,
	}
}

// now returns the current time
func (j PipelineJob) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}

	return time.Now()
}
