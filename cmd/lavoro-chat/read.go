// ABOUTME: Read commands: conversation and group lists, histories and contacts
// ABOUTME: List commands fall back to the last persisted snapshot when the server is unreachable

package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/lavoro/lavoro-chat/internal/conversations"
)

func newConversationsCmd(a *app) *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List direct-message conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var list conversations.ConversationList
			if noCache {
				list = a.svc.FetchUserConversations(ctx, a.userID)
			} else {
				list = a.svc.ConversationsWithFallback(ctx, a.userID)
			}
			if !list.OK && !list.FromCache {
				return errors.New(list.Error)
			}
			if list.FromCache {
				a.logger.Warn("server unreachable, showing saved conversations", "error", list.Error)
			}
			return a.emit(list.Conversations, func(w io.Writer) { printConversations(w, list.Conversations) })
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "fail instead of showing saved conversations")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <peer-id>",
		Short: "Show the messages exchanged with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := a.svc.FetchConversation(cmd.Context(), a.userID, args[0])
			if !h.OK {
				return errors.New(h.Error)
			}
			return a.emit(h, func(w io.Writer) {
				nameColor.Fprintln(w, h.Peer.Name)
				printMessages(w, h.Messages)
			})
		},
	}
}

func newGroupsCmd(a *app) *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List the groups the user belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var list conversations.GroupList
			if noCache {
				list = a.svc.FetchUserGroups(ctx, a.userID)
			} else {
				list = a.svc.GroupsWithFallback(ctx, a.userID)
			}
			if !list.OK && !list.FromCache {
				return errors.New(list.Error)
			}
			if list.FromCache {
				a.logger.Warn("server unreachable, showing saved groups", "error", list.Error)
			}
			return a.emit(list.Groups, func(w io.Writer) { printGroups(w, list.Groups) })
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "fail instead of showing saved groups")
	return cmd
}

func newGroupHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "group-history <group-id>",
		Short: "Show a group's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := a.svc.FetchGroupMessages(cmd.Context(), args[0], a.userID)
			if !h.OK {
				return errors.New(h.Error)
			}
			return a.emit(h, func(w io.Writer) {
				if h.Group != nil {
					nameColor.Fprintln(w, h.Group.Name)
				}
				printMessages(w, h.Messages)
			})
		},
	}
}

func newContactsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List users the current user can message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := a.svc.FetchContacts(cmd.Context(), a.userID)
			if !list.OK {
				return errors.New(list.Error)
			}
			return a.emit(list.Contacts, func(w io.Writer) { printContacts(w, list.Contacts) })
		},
	}
}
