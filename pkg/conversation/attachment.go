package conversation

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// MaxAttachmentSize is the largest file accepted as inline data.
const MaxAttachmentSize = 20 * 1024 * 1024

// Attachment is a binary blob sent inline with a user message. Data is
// serialized as base64 by encoding/json.
type Attachment struct {
	MIMEType string `json:"mimeType" yaml:"mimeType"`
	Data     []byte `json:"data" yaml:"data"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

func NewAttachment(mimeType string, data []byte, name string) Attachment {
	return Attachment{
		MIMEType: mimeType,
		Data:     append([]byte(nil), data...),
		Name:     name,
	}
}

// NewAttachmentFromFile reads path and guesses its MIME type from the
// extension, falling back to content sniffing.
func NewAttachmentFromFile(path string) (Attachment, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Attachment{}, errors.Wrapf(err, "could not stat %s", path)
	}
	if fi.IsDir() {
		return Attachment{}, errors.Errorf("%s is a directory", path)
	}
	if fi.Size() > MaxAttachmentSize {
		return Attachment{}, errors.Errorf("%s exceeds the %dMB attachment limit", path, MaxAttachmentSize/(1024*1024))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, errors.Wrapf(err, "could not read %s", path)
	}

	mt := mediaType(filepath.Ext(path), data)
	if !IsSupportedMIMEType(mt) {
		return Attachment{}, errors.Errorf("unsupported attachment type %s for %s", mt, path)
	}

	return Attachment{
		MIMEType: mt,
		Data:     data,
		Name:     fi.Name(),
	}, nil
}

// IsSupportedMIMEType accepts images, PDFs and text files.
func IsSupportedMIMEType(mt string) bool {
	return strings.HasPrefix(mt, "image/") || strings.HasPrefix(mt, "text/") || mt == "application/pdf"
}

func mediaType(ext string, data []byte) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

// CopyAttachments returns a copy of attachments that shares no backing
// arrays with the input.
func CopyAttachments(attachments []Attachment) []Attachment {
	if len(attachments) == 0 {
		return nil
	}
	ret := make([]Attachment, len(attachments))
	for i, a := range attachments {
		ret[i] = NewAttachment(a.MIMEType, a.Data, a.Name)
	}
	return ret
}
