package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/changefeed/internal/cli/output"
	"github.com/leapstack-labs/changefeed/internal/state"
)

// JournalSession is the JSON form of a recorded session.
type JournalSession struct {
	ID          string     `json:"id"`
	Adapter     string     `json:"adapter"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Messages    int        `json:"messages"`
	Error       string     `json:"error,omitempty"`
	Query       string     `json:"query,omitempty"`
}

// JournalMessage is the JSON form of one recorded message.
type JournalMessage struct {
	Seq        int       `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
	Raw        string    `json:"raw"`
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded sessions",
		Long: `Sessions recorded with "watch --record" are kept in the journal database
(journal_path, default .changefeed/journal.db). Recorded sessions can be
replayed with --adapter replay --session <id>.`,
	}
	cmd.AddCommand(newJournalListCommand())
	cmd.AddCommand(newJournalShowCommand())
	cmd.AddCommand(newJournalDeleteCommand())
	return cmd
}

func newJournalListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			store, err := cmdCtx.OpenJournal()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderSessions(cmdCtx.Renderer, sessions)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list (0 for all)")
	return cmd
}

func renderSessions(r *output.Renderer, sessions []*state.Session) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]JournalSession, len(sessions))
		for i, s := range sessions {
			out[i] = toJournalSession(s, false)
		}
		return r.JSON(out)
	}

	if len(sessions) == 0 {
		r.Muted("No recorded sessions")
		return nil
	}
	r.Header(1, fmt.Sprintf("Sessions (%d)", len(sessions)))
	rows := make([][]string, len(sessions))
	for i, s := range sessions {
		rows[i] = []string{
			s.ID,
			s.Adapter,
			string(s.Status),
			s.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(s.Messages),
			s.Error,
		}
	}
	r.Table([]string{"ID", "Adapter", "Status", "Started", "Messages", "Error"}, rows)
	return nil
}

func newJournalShowCommand() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show a session and its messages (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer
			store, err := cmdCtx.OpenJournal()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var sess *state.Session
			if len(args) == 0 || args[0] == "latest" {
				sess, err = store.LatestSession(cmd.Context())
			} else {
				sess, err = store.GetSession(cmd.Context(), args[0])
			}
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("no such session; run \"changefeed journal list\"")
			}
			if err != nil {
				return err
			}
			msgs, err := store.Messages(cmd.Context(), sess.ID)
			if err != nil {
				return err
			}

			if raw {
				for _, m := range msgs {
					r.Println(string(m.Raw))
				}
				return nil
			}
			return renderSession(r, sess, msgs)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print only the raw messages, one per line")
	return cmd
}

func renderSession(r *output.Renderer, sess *state.Session, msgs []state.Message) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := struct {
			JournalSession
			Log []JournalMessage `json:"log"`
		}{JournalSession: toJournalSession(sess, true), Log: make([]JournalMessage, len(msgs))}
		for i, m := range msgs {
			out.Log[i] = JournalMessage{Seq: m.Seq, ReceivedAt: m.ReceivedAt, Raw: string(m.Raw)}
		}
		return r.JSON(out)
	}

	r.Header(1, "Session "+sess.ID)
	r.Println(output.FormatKeyValue("Adapter", sess.Adapter))
	r.Println(output.FormatKeyValue("Status", string(sess.Status)))
	r.Println(output.FormatKeyValue("Started", sess.StartedAt.Local().Format(time.DateTime)))
	if sess.CompletedAt != nil {
		r.Println(output.FormatKeyValue("Completed", sess.CompletedAt.Local().Format(time.DateTime)))
	}
	if sess.Error != "" {
		r.Println(output.FormatKeyValue("Error", sess.Error))
	}
	r.Println(output.FormatKeyValue("Query", sess.Query))
	r.Println()

	r.Header(2, fmt.Sprintf("Messages (%d)", len(msgs)))
	rows := make([][]string, len(msgs))
	for i, m := range msgs {
		rows[i] = []string{strconv.Itoa(m.Seq), m.ReceivedAt.Local().Format(time.TimeOnly), string(m.Raw)}
	}
	r.Table([]string{"Seq", "Received", "Message"}, rows)
	return nil
}

func newJournalDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			store, err := cmdCtx.OpenJournal()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			err = store.DeleteSession(cmd.Context(), args[0])
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("no session %s", args[0])
			}
			if err != nil {
				return err
			}
			cmdCtx.Renderer.Success("deleted session " + args[0])
			return nil
		},
	}
}

func toJournalSession(s *state.Session, withQuery bool) JournalSession {
	out := JournalSession{
		ID:          s.ID,
		Adapter:     s.Adapter,
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Messages:    s.Messages,
		Error:       s.Error,
	}
	if withQuery {
		out.Query = s.Query
	}
	return out
}
