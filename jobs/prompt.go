package jobs

import (
	"fmt"
	"strings"

	"github.com/appforge/app-builder-api/attachments"
	"github.com/appforge/app-builder-api/models"
)

// BuildPrompt combines a submission's brief, checks and attachments into a
// generation prompt. On revisions existingHTML, if not empty, is included so the
// previous round's application is revised instead of replaced.
func BuildPrompt(submission models.TaskSubmission, saved []attachments.SavedAttachment, existingHTML string) string {
	var sb strings.Builder

	sb.WriteString("Build a single page web application as one HTML file.\n\n")

	// {{{1 Brief
	sb.WriteString("Brief:\n")
	fmt.Fprintf(&sb, "%s\n\n", strings.TrimSpace(submission.Brief))

	// {{{1 Checks
	if len(submission.Checks) > 0 {
		sb.WriteString("Requirements, each will be checked automatically:\n")
		for i, check := range submission.Checks {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, check)
		}
		sb.WriteString("\n")
	}

	// {{{1 Attachments
	if len(saved) > 0 {
		sb.WriteString("Attachments provided with the brief, refer to them by file name:\n")
		for _, attachment := range saved {
			fmt.Fprintf(&sb, "- %s (%d bytes)\n", attachment.Filename, attachment.Size)
		}
		sb.WriteString("\n")
	}

	// {{{1 Previous round
	if submission.IsRevision() {
		if len(existingHTML) > 0 {
			fmt.Fprintf(&sb, "This is round %d. Revise the existing application below "+
				"so it satisfies the brief and requirements above. Keep existing "+
				"behavior unless the brief changes it.\n\n", submission.Round)
			fmt.Fprintf(&sb, "Existing %s:\n%s\n\n", IndexPath, existingHTML)
		} else {
			fmt.Fprintf(&sb, "This is round %d but the previous version is not "+
				"available, build the application from scratch.\n\n", submission.Round)
		}
	}

	sb.WriteString("Respond with only the complete HTML document, starting with <!DOCTYPE html>.\n")

	return sb.String()
}
