package engine

import (
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/pkg/errors"
)

var (
	ErrEmptyContent = errors.New("message has neither text nor attachments")
	ErrUnknownRole  = errors.New("unknown message role")
)

type PartKind string

const (
	PartKindInline PartKind = "inline"
	PartKindText   PartKind = "text"
)

// Part is one element of a backend turn. Kind decides which fields are set:
// MIMEType and Data for inline parts, Text for text parts.
type Part struct {
	Kind     PartKind
	MIMEType string
	Data     []byte
	Text     string
}

func InlinePart(mimeType string, data []byte) Part {
	return Part{Kind: PartKindInline, MIMEType: mimeType, Data: data}
}

func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// Content is a role-tagged list of parts, the unit of history replay.
type Content struct {
	Role  conversation.Role
	Parts []Part
}

// PartsFor returns the parts of a turn: one inline part per attachment in
// order, then the text if it is not empty.
func PartsFor(text string, attachments []conversation.Attachment) []Part {
	ret := make([]Part, 0, len(attachments)+1)
	for _, a := range attachments {
		ret = append(ret, InlinePart(a.MIMEType, a.Data))
	}
	if text != "" {
		ret = append(ret, TextPart(text))
	}
	return ret
}

func ContentFromMessage(m conversation.Message) (Content, error) {
	if !m.Role.IsValid() {
		return Content{}, errors.Wrapf(ErrUnknownRole, "message %s has role %q", m.ID, m.Role)
	}
	parts := PartsFor(m.Text, m.Attachments)
	if len(parts) == 0 {
		return Content{}, errors.Wrapf(ErrEmptyContent, "message %s", m.ID)
	}
	return Content{Role: m.Role, Parts: parts}, nil
}

// ContentsFromMessages converts stored messages into replayable history.
// Model replies that settled without any text carry nothing to replay and
// are skipped. An empty user message is malformed.
func ContentsFromMessages(msgs []conversation.Message) ([]Content, error) {
	ret := make([]Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == conversation.RoleModel && !m.HasContent() {
			continue
		}
		c, err := ContentFromMessage(m)
		if err != nil {
			return nil, err
		}
		ret = append(ret, c)
	}
	return ret, nil
}
