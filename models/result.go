package models

// GeneratedArtifact is the HTML document produced for a submission
type GeneratedArtifact struct {
	// HTML is the document text, always starting with a document declaration
	// once normalized
	HTML string
}

// PublishResult describes where a published application lives
type PublishResult struct {
	// RepoURL is the repository's public web URL
	RepoURL string `json:"repo_url"`

	// CommitSHA is the latest commit on the published branch
	CommitSHA string `json:"commit_sha"`

	// PagesURL is the GitHub Pages URL the application is served from. Derived
	// from the owner and repository name so it is returned even if enabling
	// Pages could not be confirmed.
	PagesURL string `json:"pages_url"`
}

// CallbackPayload is sent to a submission's evaluation URL once its
// application is published
type CallbackPayload struct {
	Email string `json:"email"`
	Task  string `json:"task"`
	Round int    `json:"round"`
	Nonce string `json:"nonce"`

	PublishResult
}

// NewCallbackPayload echoes a submission's identity fields alongside a publish result
func NewCallbackPayload(submission TaskSubmission, result PublishResult) CallbackPayload {
	return CallbackPayload{
		Email:         submission.Email,
		Task:          submission.Task,
		Round:         submission.Round,
		Nonce:         submission.Nonce,
		PublishResult: result,
	}
}
