package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/charmbracelet/glamour"
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"gopkg.in/yaml.v3"
)

type PrinterOption func(*printer)

// WithMarkdownStyle buffers the reply and renders it with glamour once the
// turn settled, instead of streaming raw deltas.
func WithMarkdownStyle(style string) PrinterOption {
	return func(p *printer) {
		p.markdownStyle = style
	}
}

// WithWordWrap wraps rendered markdown at width columns. Zero keeps the
// glamour default.
func WithWordWrap(width int) PrinterOption {
	return func(p *printer) {
		p.wordWrap = width
	}
}

// WithSessionChanges also prints the session list whenever it changes.
func WithSessionChanges(print bool) PrinterOption {
	return func(p *printer) {
		p.printSessions = print
	}
}

type printer struct {
	name          string
	w             io.Writer
	markdownStyle string
	wordWrap      int
	printSessions bool
	isFirst       bool
}

// ChatPrinterFunc returns a watermill handler that writes a human readable
// rendition of chat events to w.
func ChatPrinterFunc(name string, w io.Writer, options ...PrinterOption) func(msg *message.Message) error {
	p := &printer{name: name, w: w, isFirst: true}
	for _, o := range options {
		o(p)
	}

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		return p.print(e)
	}
}

func (p *printer) print(e Event) error {
	switch p_ := e.(type) {
	case *EventTurnStart:
		p.isFirst = true

	case *EventPartialCompletion:
		if p.markdownStyle != "" {
			return nil
		}
		if p.isFirst && p.name != "" {
			p.isFirst = false
			if _, err := fmt.Fprintf(p.w, "\n%s: \n", p.name); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(p.w, "%s", p_.Delta); err != nil {
			return err
		}

	case *EventFinal:
		if p.markdownStyle != "" {
			if err := p.render(p_.Text); err != nil {
				return err
			}
			return p.printSources(p_.Message)
		}
		if !strings.HasSuffix(p_.Text, "\n") {
			if _, err := fmt.Fprintf(p.w, "\n"); err != nil {
				return err
			}
		}
		return p.printSources(p_.Message)

	case *EventError:
		// the error text replaces whatever was streamed so far
		if _, err := fmt.Fprintf(p.w, "\n%s\n", p_.Message.Text); err != nil {
			return err
		}

	case *EventInfo:
		if _, err := fmt.Fprintf(p.w, "\n[i] %s\n", p_.Message); err != nil {
			return err
		}
		if len(p_.Data) > 0 {
			v_, err := yaml.Marshal(p_.Data)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(p.w, "%s\n", v_); err != nil {
				return err
			}
		}

	case *EventSessionsChanged:
		if !p.printSessions {
			return nil
		}
		for i, s := range p_.Sessions {
			marker := " "
			if s.ID == p_.ActiveID {
				marker = "*"
			}
			if _, err := fmt.Fprintf(p.w, "%s %d. %s (%d messages)\n", marker, i+1, s.Title, s.MessageCount); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *printer) render(text string) error {
	if p.name != "" {
		if _, err := fmt.Fprintf(p.w, "\n%s: \n", p.name); err != nil {
			return err
		}
	}
	out, err := p.renderMarkdown(text)
	if err != nil {
		// fall back to the raw markdown
		out = text + "\n"
	}
	_, err = fmt.Fprint(p.w, out)
	return err
}

func (p *printer) renderMarkdown(text string) (string, error) {
	if p.wordWrap <= 0 {
		return glamour.Render(text, p.markdownStyle)
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(p.markdownStyle),
		glamour.WithWordWrap(p.wordWrap),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

func (p *printer) printSources(msg conversation.Message) error {
	sources := msg.GroundingMetadata.Sources()
	if len(sources) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(p.w, "\nSources:\n"); err != nil {
		return err
	}
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.URI
		}
		if _, err := fmt.Fprintf(p.w, "  [%d] %s <%s>\n", i+1, title, src.URI); err != nil {
			return err
		}
	}
	return nil
}
