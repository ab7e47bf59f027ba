package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jackzhu119/Gemini-clone/pkg/controller"
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/jackzhu119/Gemini-clone/pkg/events"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

// Suggestions are offered on an empty session and by /help.
var Suggestions = []string{
	"Analyze this sales data for trends",
	"Summarize recent news about AI",
	"Help me debug this Python code",
	"Plan a travel itinerary for Japan",
}

const helpText = `Commands:
  /new                 start a new session
  /list                list sessions
  /switch <n|id>       switch to another session
  /delete [n|id]       delete a session (default: the current one)
  /attach <path>       attach a file to the next message
  /clear-attachments   drop queued attachments
  /suggest <n>         send one of the suggestions below
  /help                show this help
  /quit                leave
`

func NewChatCommand() *cobra.Command {
	var sessionRef string
	var newSession bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively, one line per message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := newApp(appOptions{printer: true, out: out})
			if err != nil {
				return err
			}
			defer a.Close()

			return a.run(cmd.Context(), func(ctx context.Context) error {
				r := newREPL(a.controller, out)
				if newSession || sessionRef != "" {
					id, err := targetSession(ctx, a.controller, sessionRef, newSession)
					if err != nil {
						return err
					}
					if err := a.controller.SelectSession(ctx, id); err != nil {
						return err
					}
				}
				return r.loop(ctx, newLineReader())
			})
		},
	}

	cmd.Flags().StringVarP(&sessionRef, "session", "s", "", "Session position or id to continue (default: most recent)")
	cmd.Flags().BoolVar(&newSession, "new", false, "Start with a new session")
	return cmd
}

type lineReader interface {
	// ReadLine returns io.EOF once input is exhausted.
	ReadLine(prompt string) (string, error)
}

func newLineReader() lineReader {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return &ttyReader{ui: newUI()}
	}
	return newScannerReader(os.Stdin)
}

type ttyReader struct {
	ui *input.UI
}

func (t *ttyReader) ReadLine(prompt string) (string, error) {
	line, err := t.ui.Ask(prompt, &input.Options{HideOrder: true})
	if errors.Is(err, input.ErrInterrupted) {
		return "", io.EOF
	}
	return line, err
}

// maxLineLength bounds one piped input line.
const maxLineLength = 8 * 1024 * 1024

type scannerReader struct {
	scanner *bufio.Scanner
}

func newScannerReader(r io.Reader) *scannerReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &scannerReader{scanner: scanner}
}

func (s *scannerReader) ReadLine(prompt string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

type repl struct {
	c       *controller.Controller
	out     io.Writer
	pending []conversation.Attachment
	done    bool
}

func newREPL(c *controller.Controller, out io.Writer) *repl {
	return &repl{c: c, out: out}
}

func (r *repl) loop(ctx context.Context, lr lineReader) error {
	r.greet()
	for !r.done {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := lr.ReadLine(r.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := r.handle(ctx, line); err != nil {
			// command errors are shown, the session goes on
			fmt.Fprintf(r.out, "error: %s\n", err)
		}
	}
	return nil
}

func (r *repl) prompt() string {
	if len(r.pending) > 0 {
		return fmt.Sprintf("\n[%d attached] > ", len(r.pending))
	}
	return "\n> "
}

func (r *repl) greet() {
	s, ok := r.c.ActiveSession()
	if !ok {
		return
	}
	if len(s.Messages) > 0 {
		fmt.Fprintf(r.out, "Continuing %q (%d messages). /help lists commands.\n", s.Title, len(s.Messages))
		return
	}
	fmt.Fprintln(r.out, "Hello! How can I help you today? /help lists commands.")
	r.printSuggestions()
}

func (r *repl) printSuggestions() {
	fmt.Fprintln(r.out, "Suggestions (/suggest <n>):")
	for i, s := range Suggestions {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, s)
	}
}

// handle runs one input line, either a slash command or a message.
func (r *repl) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	name, arg, isCommand := parseCommand(line)
	if !isCommand {
		if line == "" && len(r.pending) == 0 {
			return nil
		}
		// "//" escapes a message starting with a slash
		if strings.HasPrefix(line, "//") {
			line = line[1:]
		}
		return r.send(ctx, line)
	}

	switch name {
	case "quit", "exit", "q":
		r.done = true
		return nil

	case "help", "?":
		fmt.Fprint(r.out, helpText)
		r.printSuggestions()
		return nil

	case "new":
		s, err := r.c.NewSession(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Started a new session (%s)\n", shortID(s.ID))
		return nil

	case "list", "ls":
		return printSessionList(r.out, events.SummarizeSessions(r.c.Sessions()), r.c.ActiveSessionID())

	case "switch":
		s, err := resolveSession(r.c.Sessions(), arg)
		if err != nil {
			return err
		}
		if err := r.c.SelectSession(ctx, s.ID); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Switched to %q\n", s.Title)
		return printTranscript(r.out, s, terminalWidth(r.out))

	case "delete", "rm":
		id := r.c.ActiveSessionID()
		if arg != "" {
			s, err := resolveSession(r.c.Sessions(), arg)
			if err != nil {
				return err
			}
			id = s.ID
		}
		if err := r.c.DeleteSession(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Deleted %s\n", shortID(id))
		return nil

	case "attach":
		if arg == "" {
			return errors.New("usage: /attach <path>")
		}
		att, err := conversation.NewAttachmentFromFile(arg)
		if err != nil {
			return err
		}
		r.pending = append(r.pending, att)
		fmt.Fprintf(r.out, "Attached %s (%s, %d bytes)\n", att.Name, att.MIMEType, len(att.Data))
		return nil

	case "clear-attachments":
		r.pending = nil
		return nil

	case "suggest":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(Suggestions) {
			return errors.Errorf("usage: /suggest <1-%d>", len(Suggestions))
		}
		return r.send(ctx, Suggestions[n-1])

	default:
		return errors.Errorf("unknown command /%s, try /help", name)
	}
}

func (r *repl) send(ctx context.Context, text string) error {
	res, err := r.c.Send(ctx, controller.SendRequest{
		SessionID:   r.c.ActiveSessionID(),
		Text:        text,
		Attachments: r.pending,
	})
	if err != nil {
		return err
	}
	// attachments are consumed once the turn started, even if it failed
	r.pending = nil
	if res.Err != nil {
		log.Debug().Err(res.Err).Str("turn_id", res.TurnID).Msg("Turn failed")
	}
	return nil
}

// parseCommand splits "/name arg" lines. Lines not starting with a slash are
// messages.
func parseCommand(line string) (name string, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimPrefix(line, "/"), " ", 2)
	name = strings.ToLower(fields[0])
	if name == "" {
		return "", "", false
	}
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return name, arg, true
}
