package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlasbake/pkg/store"
)

// historyCommand creates the history command.
func (c *CLI) historyCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous bakes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newHistory()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer st.Close(context.Background())

			recs, err := st.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				printInfo("No bakes recorded yet")
				return nil
			}
			fmt.Println(renderHistory(recs, time.Now()).Render())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of bakes to show (0 for all)")
	cmd.AddCommand(c.historyShowCommand())
	return cmd
}

// historyShowCommand creates the "history show" subcommand.
func (c *CLI) historyShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded bake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newHistory()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer st.Close(context.Background())

			rec, err := findRecord(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			printKeyValue("ID", rec.ID)
			printKeyValue("Created", rec.CreatedAt.Local().Format(time.DateTime))
			printKeyValue("Manifest", rec.Manifest)
			printKeyValue("Inputs", strconv.Itoa(rec.Inputs))
			printKeyValue("Atlases", strconv.Itoa(rec.Atlases))
			printKeyValue("Unplaced", strconv.Itoa(rec.Unplaced))
			printKeyValue("Cycles", strconv.Itoa(rec.Cycles))
			printKeyValue("Duration", rec.Duration.Round(time.Millisecond).String())
			printKeyValue("Cached", strconv.FormatBool(rec.Cached))
			for _, a := range rec.Assets {
				printFile(a)
			}
			return nil
		},
	}
}

// findRecord looks a record up by full id or unique id prefix.
func findRecord(ctx context.Context, st store.Store, id string) (*store.Record, error) {
	if rec, err := st.Get(ctx, id); err == nil {
		return rec, nil
	}
	recs, err := st.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	var match *store.Record
	for i := range recs {
		if strings.HasPrefix(recs[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("id prefix %q is ambiguous", id)
			}
			match = &recs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no bake with id %q: %w", id, store.ErrNotFound)
	}
	return match, nil
}

func renderHistory(recs []store.Record, now time.Time) *table.Table {
	t := newTable("ID", "When", "Manifest", "Items", "Atlases", "Unplaced", "Source")
	for _, r := range recs {
		source := iconFresh
		if r.Cached {
			source = iconCached
		}
		t.Row(
			shortID(r.ID),
			formatRelativeTime(r.CreatedAt, now),
			r.Manifest,
			strconv.Itoa(r.Inputs),
			strconv.Itoa(r.Atlases),
			strconv.Itoa(r.Unplaced),
			source,
		)
	}
	return t
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
