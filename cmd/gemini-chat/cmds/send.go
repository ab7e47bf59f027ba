package cmds

import (
	"context"
	"strings"

	"github.com/jackzhu119/Gemini-clone/pkg/controller"
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewSendCommand() *cobra.Command {
	var attachPaths []string
	var sessionRef string
	var newSession bool

	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send one message and print the streamed reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			attachments, err := loadAttachments(attachPaths)
			if err != nil {
				return err
			}
			if text == "" && len(attachments) == 0 {
				return errors.New("nothing to send, pass a message or --attach")
			}

			a, err := newApp(appOptions{printer: true, out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			var res *controller.TurnResult
			err = a.run(cmd.Context(), func(ctx context.Context) error {
				sessionID, err := targetSession(ctx, a.controller, sessionRef, newSession)
				if err != nil {
					return err
				}
				res, err = a.controller.Send(ctx, controller.SendRequest{
					SessionID:   sessionID,
					Text:        text,
					Attachments: attachments,
				})
				return err
			})
			if err != nil {
				return err
			}
			if res.Outcome == controller.OutcomeFailure {
				return errors.Wrap(res.Err, "turn failed")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&attachPaths, "attach", "a", nil, "Attach a file (image, PDF or text), can be repeated")
	cmd.Flags().StringVarP(&sessionRef, "session", "s", "", "Session position or id (default: most recent)")
	cmd.Flags().BoolVar(&newSession, "new", false, "Start a new session")
	return cmd
}

func targetSession(ctx context.Context, c *controller.Controller, ref string, create bool) (string, error) {
	if create {
		s, err := c.NewSession(ctx)
		if err != nil {
			return "", err
		}
		return s.ID, nil
	}
	if ref == "" {
		return c.ActiveSessionID(), nil
	}
	s, err := resolveSession(c.Sessions(), ref)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

func loadAttachments(paths []string) ([]conversation.Attachment, error) {
	ret := make([]conversation.Attachment, 0, len(paths))
	for _, p := range paths {
		att, err := conversation.NewAttachmentFromFile(p)
		if err != nil {
			return nil, err
		}
		ret = append(ret, att)
	}
	return ret, nil
}
