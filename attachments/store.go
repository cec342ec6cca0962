package attachments

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/appforge/app-builder-api/models"

	"github.com/Noah-Huppert/golog"
)

// Store saves submission attachments to a local directory
type Store struct {
	// Dir is the directory attachments are written to, created if missing
	Dir string

	// Logger logs information
	Logger golog.Logger
}

// SavedAttachment is an attachment which was written to disk
type SavedAttachment struct {
	// Filename is the name the submitter gave the attachment
	Filename string

	// Path is where the attachment was saved
	Path string

	// Size is the number of decoded bytes written
	Size int
}

// Save decodes and writes a single attachment under the Store's directory
func (s Store) Save(attachment models.Attachment) (*SavedAttachment, error) {
	name := filepath.Base(attachment.Filename)
	if name == "." || name == ".." || name != attachment.Filename {
		return nil, fmt.Errorf("attachment file name \"%s\" is not a plain file name",
			attachment.Filename)
	}

	content, err := base64.StdEncoding.DecodeString(attachment.ContentBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment \"%s\" as base64: %s",
			attachment.Filename, err.Error())
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory \"%s\": %s",
			s.Dir, err.Error())
	}

	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return nil, fmt.Errorf("failed to write attachment to \"%s\": %s",
			path, err.Error())
	}

	return &SavedAttachment{
		Filename: attachment.Filename,
		Path:     path,
		Size:     len(content),
	}, nil
}

// SaveAll saves every attachment it can. Attachments which fail are logged and
// skipped so one bad upload does not abort the task.
func (s Store) SaveAll(attachments []models.Attachment) []SavedAttachment {
	saved := []SavedAttachment{}

	for _, attachment := range attachments {
		savedAttachment, err := s.Save(attachment)
		if err != nil {
			s.Logger.Warnf("skipping attachment: %s", err.Error())
			continue
		}

		s.Logger.Debugf("saved attachment %s (%d bytes)", savedAttachment.Path,
			savedAttachment.Size)
		saved = append(saved, *savedAttachment)
	}

	return saved
}
