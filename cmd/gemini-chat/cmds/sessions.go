package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/jackzhu119/Gemini-clone/pkg/events"
	"github.com/jackzhu119/Gemini-clone/pkg/store"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored chat sessions",
	}

	cmd.AddCommand(
		newSessionsListCommand(),
		newSessionsShowCommand(),
		newSessionsNewCommand(),
		newSessionsDeleteCommand(),
		newSessionsExportCommand(),
	)
	return cmd
}

func newSessionsListCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.load(cmd.Context()); err != nil {
				return err
			}

			summaries := events.SummarizeSessions(a.controller.Sessions())
			switch output {
			case "text", "":
				return printSessionList(cmd.OutOrStdout(), summaries, a.controller.ActiveSessionID())
			default:
				return writeStructured(cmd.OutOrStdout(), output, summaries)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func newSessionsShowCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <n|id>",
		Short: "Show the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.load(cmd.Context()); err != nil {
				return err
			}

			s, err := resolveSession(a.controller.Sessions(), args[0])
			if err != nil {
				return err
			}
			switch output {
			case "text", "":
				return printTranscript(cmd.OutOrStdout(), s, terminalWidth(cmd.OutOrStdout()))
			default:
				return writeStructured(cmd.OutOrStdout(), output, s)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func newSessionsNewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create an empty session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.load(cmd.Context()); err != nil {
				return err
			}

			s, err := a.controller.NewSession(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s.ID)
			return err
		},
	}
}

func newSessionsDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <n|id>...",
		Short: "Delete sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.load(cmd.Context()); err != nil {
				return err
			}

			// resolve everything first, positions shift while deleting
			sessions := a.controller.Sessions()
			targets := make([]*conversation.ChatSession, 0, len(args))
			for _, ref := range args {
				s, err := resolveSession(sessions, ref)
				if err != nil {
					return err
				}
				targets = append(targets, s)
			}

			for _, s := range targets {
				if !yes {
					ok, err := confirm(fmt.Sprintf("Delete %q (%d messages)?", s.Title, len(s.Messages)))
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				if err := a.controller.DeleteSession(cmd.Context(), s.ID); err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", s.ID); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newSessionsExportCommand() *cobra.Command {
	var output string
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all sessions, including attachments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.load(cmd.Context()); err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if file != "" {
				f, err := os.Create(file)
				if err != nil {
					return errors.Wrapf(err, "could not create %s", file)
				}
				defer f.Close()
				w = f
			}

			sessions := a.controller.Sessions()
			if output == "json" {
				// same format as the stored state, so it can be loaded back
				b, err := store.Encode(sessions)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(b))
				return err
			}
			return writeStructured(w, output, sessions)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format (json, yaml)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Write to file instead of stdout")
	return cmd
}

// resolveSession finds a session by 1-based position in the list, by id or
// by unique id prefix.
func resolveSession(sessions []*conversation.ChatSession, ref string) (*conversation.ChatSession, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("no session given")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(sessions) {
			return nil, errors.Errorf("no session at position %d, there are %d", n, len(sessions))
		}
		return sessions[n-1], nil
	}

	var match *conversation.ChatSession
	for _, s := range sessions {
		if s.ID == ref {
			return s, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			if match != nil {
				return nil, errors.Errorf("session id prefix %q is ambiguous", ref)
			}
			match = s
		}
	}
	if match == nil {
		return nil, errors.Wrap(conversation.ErrSessionNotFound, ref)
	}
	return match, nil
}

func printSessionList(w io.Writer, sessions []events.SessionSummary, activeID string) error {
	for i, s := range sessions {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		_, err := fmt.Fprintf(w, "%s %2d. %-33s %3d messages  %s  %s\n",
			marker, i+1, s.Title, s.MessageCount, s.CreatedAt.Format("2006-01-02 15:04"), shortID(s.ID))
		if err != nil {
			return err
		}
	}
	return nil
}

// printTranscript writes a plain rendition of s. Message text is wrapped at
// width columns when width is positive.
func printTranscript(w io.Writer, s *conversation.ChatSession, width int) error {
	if _, err := fmt.Fprintf(w, "# %s\n", s.Title); err != nil {
		return err
	}
	for _, m := range s.Messages {
		name := "You"
		if m.Role == conversation.RoleModel {
			name = "Gemini"
		}
		if _, err := fmt.Fprintf(w, "\n%s (%s):\n", speakerStyle.Render(name), m.Timestamp.Format("15:04")); err != nil {
			return err
		}
		for _, att := range m.Attachments {
			if _, err := fmt.Fprintf(w, "  [attachment] %s %s, %d bytes\n", att.Name, att.MIMEType, len(att.Data)); err != nil {
				return err
			}
		}
		text := m.Text
		if m.IsStreaming {
			text += " ..."
		}
		if width > 0 {
			text = wordwrap.String(text, width)
		}
		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
		for i, src := range m.GroundingMetadata.Sources() {
			if _, err := fmt.Fprintf(w, "  [%d] %s <%s>\n", i+1, src.Title, src.URI); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
