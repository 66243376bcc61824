// ABOUTME: Export command: writes a conversation or group history as Markdown or HTML
// ABOUTME: Output goes to stdout unless --output names a file

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lavoro/lavoro-chat/internal/transcript"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		group  bool
		asHTML bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <peer-id|group-id>",
		Short: "Export a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var tr transcript.Transcript
			if group {
				h := a.svc.FetchGroupMessages(ctx, args[0], a.userID)
				if !h.OK {
					return errors.New(h.Error)
				}
				tr.Title = args[0]
				if h.Group != nil && h.Group.Name != "" {
					tr.Title = h.Group.Name
				}
				tr.Messages = h.Messages
			} else {
				h := a.svc.FetchConversation(ctx, a.userID, args[0])
				if !h.OK {
					return errors.New(h.Error)
				}
				tr.Title = "Conversation avec " + h.Peer.Name
				tr.Messages = h.Messages
			}
			tr.Location = time.Local

			var w io.Writer = a.out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			if asHTML {
				return tr.WriteHTML(w)
			}
			return tr.WriteMarkdown(w)
		},
	}
	cmd.Flags().BoolVarP(&group, "group", "g", false, "export a group instead of a direct conversation")
	cmd.Flags().BoolVar(&asHTML, "html", false, "render HTML instead of Markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file")
	return cmd
}
