// ABOUTME: Write commands: send direct and group messages, delete messages, manage groups
// ABOUTME: Sends go over REST by default; --socket emits on the real-time connection and waits for the ack

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lavoro/lavoro-chat/internal/api"
	"github.com/lavoro/lavoro-chat/internal/chat"
)

// openAttachment opens path for upload. The returned close func is never nil.
func openAttachment(path string) (*api.Attachment, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	att, f, err := api.AttachmentFromFile(path)
	if err != nil {
		return nil, func() {}, err
	}
	return att, func() { _ = f.Close() }, nil
}

func messageText(args []string) string {
	return strings.Join(args, " ")
}

func newSendCmd(a *app) *cobra.Command {
	var (
		attach    string
		useSocket bool
	)
	cmd := &cobra.Command{
		Use:   "send <peer-id> [text...]",
		Short: "Send a direct message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := messageText(args[1:])
			if strings.TrimSpace(text) == "" && attach == "" {
				return errors.New("nothing to send: give a message or --attach a file")
			}

			if useSocket {
				if attach != "" {
					return errors.New("--socket cannot upload attachments")
				}
				return a.sendOverSocket(cmd.Context(), args[0], "", text)
			}

			att, closeAtt, err := openAttachment(attach)
			if err != nil {
				return err
			}
			defer closeAtt()

			msg, err := a.svc.SendMessage(cmd.Context(), api.OutgoingMessage{
				SenderID:   a.userID,
				ReceiverID: args[0],
				Message:    text,
			}, att)
			if err != nil {
				return fmt.Errorf("sending message: %w", err)
			}
			return a.emit(msg, func(w io.Writer) { printMessage(w, msg) })
		},
	}
	cmd.Flags().StringVarP(&attach, "attach", "a", "", "file to attach (19 MB max)")
	cmd.Flags().BoolVar(&useSocket, "socket", false, "send over the real-time connection")
	return cmd
}

func newSendGroupCmd(a *app) *cobra.Command {
	var (
		attach    string
		useSocket bool
	)
	cmd := &cobra.Command{
		Use:   "send-group <group-id> [text...]",
		Short: "Send a message to a group",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := messageText(args[1:])
			if strings.TrimSpace(text) == "" && attach == "" {
				return errors.New("nothing to send: give a message or --attach a file")
			}

			if useSocket {
				if attach != "" {
					return errors.New("--socket cannot upload attachments")
				}
				return a.sendOverSocket(cmd.Context(), "", args[0], text)
			}

			att, closeAtt, err := openAttachment(attach)
			if err != nil {
				return err
			}
			defer closeAtt()

			msg, err := a.svc.SendGroupMessage(cmd.Context(), api.OutgoingGroupMessage{
				GroupID:  args[0],
				SenderID: a.userID,
				Message:  text,
			}, att)
			if err != nil {
				return fmt.Errorf("sending group message: %w", err)
			}
			return a.emit(msg, func(w io.Writer) { printMessage(w, msg) })
		},
	}
	cmd.Flags().StringVarP(&attach, "attach", "a", "", "file to attach (19 MB max)")
	cmd.Flags().BoolVar(&useSocket, "socket", false, "send over the real-time connection")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "delete <message-id>",
		Short: "Delete a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if group {
				err = a.svc.DeleteGroupMessage(cmd.Context(), args[0])
			} else {
				err = a.svc.DeleteMessage(cmd.Context(), args[0])
			}
			if err != nil {
				return fmt.Errorf("deleting message: %w", err)
			}
			return a.emit(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				okColor.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&group, "group", "g", false, "the message belongs to a group")
	return cmd
}

func newCreateGroupCmd(a *app) *cobra.Command {
	var (
		description string
		members     []string
		avatar      string
	)
	cmd := &cobra.Command{
		Use:   "create-group <name>",
		Short: "Create a group with the current user as creator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			att, closeAtt, err := openAttachment(avatar)
			if err != nil {
				return err
			}
			defer closeAtt()

			g, err := a.svc.CreateGroup(cmd.Context(), api.NewGroup{
				Name:        args[0],
				Description: description,
				CreatorID:   a.userID,
				MemberIDs:   members,
			}, att)
			if err != nil {
				return fmt.Errorf("creating group: %w", err)
			}
			return a.emit(g, func(w io.Writer) { printGroups(w, []chat.GroupConversation{g}) })
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "group description")
	cmd.Flags().StringSliceVarP(&members, "member", "m", nil, "member user id (repeatable)")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar image file")
	return cmd
}

func newGroupAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "group-add <group-id> <user-id>",
		Short: "Add a member to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.svc.AddGroupMember(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("adding member: %w", err)
			}
			return a.emit(g, func(w io.Writer) { printGroups(w, []chat.GroupConversation{g}) })
		},
	}
}

func newGroupRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "group-remove <group-id> <user-id>",
		Short: "Remove a member from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.svc.RemoveGroupMember(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("removing member: %w", err)
			}
			return a.emit(g, func(w io.Writer) { printGroups(w, []chat.GroupConversation{g}) })
		},
	}
}

