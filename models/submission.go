package models

// TaskSubmission holds one request to generate and publish an application.
// Submissions are treated as immutable once validated.
type TaskSubmission struct {
	// Email identifies the requester
	Email string `json:"email" validate:"required"`

	// Secret is the shared secret used to authenticate the submitter
	Secret string `json:"secret"`

	// Task identifies the logical task. Every round of the same task is published
	// to the same repository.
	Task string `json:"task" validate:"required,task_id"`

	// Round is the iteration of the task, 1 creates, 2 and above revise
	Round int `json:"round" validate:"required,min=1"`

	// Nonce is echoed back in the callback so the submitter can correlate results
	Nonce string `json:"nonce" validate:"required"`

	// Brief is the natural language description of the application
	Brief string `json:"brief" validate:"required"`

	// Checks are requirement descriptions the generated application must satisfy
	Checks []string `json:"checks" validate:"dive,required"`

	// EvaluationURL is the callback URL which receives the CallbackPayload
	EvaluationURL string `json:"evaluation_url" validate:"required,url"`

	// Attachments are optional files which accompany the brief
	Attachments []Attachment `json:"attachments" validate:"dive"`
}

// IsRevision indicates the submission revises a previously published round
func (s TaskSubmission) IsRevision() bool {
	return s.Round >= 2
}

// Attachment is a file uploaded with a submission
type Attachment struct {
	// Filename the attachment is saved as, must not contain path separators
	Filename string `json:"filename" validate:"required,filename"`

	// ContentBase64 is the base64 encoded file content
	ContentBase64 string `json:"content_base64" validate:"required,base64"`
}
