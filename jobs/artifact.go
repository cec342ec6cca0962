package jobs

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/appforge/app-builder-api/models"
	"github.com/appforge/app-builder-api/publish"
)

// IndexPath is the repository path of the generated document
const IndexPath = "index.html"

// ReadmePath is the repository path of the README
const ReadmePath = "README.md"

// LicensePath is the repository path of the license
const LicensePath = "LICENSE"

// docStartExp matches text which begins with an HTML document declaration
var docStartExp = regexp.MustCompile(`(?i)^(<!doctype html|<html)`)

// fenceExp matches text wrapped in a single Markdown code fence
//
// Groups:
//    1. Fenced text
var fenceExp = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\r?\n(.*?)\r?\n?```$")

// documentShell wraps generated output which is not a full document
const documentShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Generated App</title>
</head>
<body>
%s
</body>
</html>
`

// HasDocumentStart indicates html begins with "<!doctype html" or "<html", case
// insensitive
func HasDocumentStart(html string) bool {
	return docStartExp.MatchString(html)
}

// NormalizeHTML turns raw generator output into a renderable document. Surrounding
// whitespace and a wrapping Markdown code fence are removed. If what is left does
// not start with a document declaration it is placed, unchanged, in the body of a
// minimal document.
func NormalizeHTML(raw string) models.GeneratedArtifact {
	text := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))

	if groups := fenceExp.FindStringSubmatch(text); groups != nil {
		text = strings.TrimSpace(groups[1])
	}

	if HasDocumentStart(text) {
		return models.GeneratedArtifact{HTML: text}
	}

	return models.GeneratedArtifact{HTML: fmt.Sprintf(documentShell, text)}
}

// Bundle is the set of files published for a submission
type Bundle struct {
	// Submission the bundle was built for
	Submission models.TaskSubmission

	// Artifact is the normalized generated document
	Artifact models.GeneratedArtifact

	// Owner of the repository, used in the license
	Owner string

	// RepoName is the repository the bundle is published to
	RepoName string

	// Now is used for the license year
	Now time.Time
}

// Files returns the index document, README and license, in the order they are written
func (b Bundle) Files() []publish.File {
	return []publish.File{
		{Path: IndexPath, Content: b.Artifact.HTML},
		{Path: ReadmePath, Content: b.Readme()},
		{Path: LicensePath, Content: b.License()},
	}
}

// Readme summarizes the brief and checks
func (b Bundle) Readme() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", b.RepoName)
	sb.WriteString("A single page application generated from a task brief.\n\n")

	sb.WriteString("## Brief\n\n")
	fmt.Fprintf(&sb, "%s\n\n", strings.TrimSpace(b.Submission.Brief))

	if len(b.Submission.Checks) > 0 {
		sb.WriteString("## Checks\n\n")
		for _, check := range b.Submission.Checks {
			fmt.Fprintf(&sb, "- %s\n", check)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Usage\n\n")
	fmt.Fprintf(&sb, "Open `%s` in a browser, or visit the GitHub Pages site:\n%s\n\n",
		IndexPath, publish.PagesURL(b.Owner, b.RepoName))

	sb.WriteString("## Revision\n\n")
	fmt.Fprintf(&sb, "Task `%s`, round %d.\n\n", b.Submission.Task, b.Submission.Round)

	sb.WriteString("## License\n\n")
	fmt.Fprintf(&sb, "MIT, see [%s](%s).\n", LicensePath, LicensePath)

	return sb.String()
}

// License returns the MIT license text
func (b Bundle) License() string {
	return fmt.Sprintf(`MIT License

Copyright (c) %d %s

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
`, b.Now.Year(), b.Owner)
}
