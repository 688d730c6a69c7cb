package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/atlasbake/pkg/errors"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var entries bool

	cmd := &cobra.Command{
		Use:   "inspect <result.json>",
		Short: "Summarise a baked result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := readResult(args[0])
			if err != nil {
				return err
			}
			fmt.Println(renderSummary(res))
			fmt.Println(renderAtlasTable(res).Render())
			if entries {
				fmt.Println(renderEntryTable(res).Render())
			}
			for _, e := range res.Unplaced() {
				printWarning("%s (%v) did not fit", e.Source, e.Size)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&entries, "entries", false, "list every item with its atlas and UV window")
	return cmd
}

// readResult loads a result document written by bake.
func readResult(path string) (*pipeline.Result, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "result %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode result %s", path)
	}
	return &res, nil
}

func renderSummary(res *pipeline.Result) string {
	return fmt.Sprintf("%s %s\n%s",
		StyleTitle.Render("Bake"),
		StyleDim.Render(res.ID),
		statsLine(res.Stats, false))
}

func renderAtlasTable(res *pipeline.Result) *table.Table {
	t := newTable("#", "Resolution", "Items", "Coverage", "Cycle", "File")
	for _, at := range res.Atlases {
		file := at.File
		if file == "" {
			file = "-"
		}
		t.Row(
			strconv.Itoa(at.Index),
			fmt.Sprintf("%d²", at.Resolution),
			strconv.Itoa(len(at.Placements)),
			fmt.Sprintf("%.1f%%", at.Coverage()*100),
			strconv.Itoa(at.Cycle+1),
			file,
		)
	}
	return t
}

func renderEntryTable(res *pipeline.Result) *table.Table {
	t := newTable("Source", "Size", "Atlas", "UV min", "UV max", "Rotated")
	for _, e := range res.Entries {
		if !e.Placed() {
			t.Row(e.Source, e.Size.String(), "-", "", "", "")
			continue
		}
		rot := ""
		if e.Rotated {
			rot = "yes"
		}
		t.Row(
			e.Source,
			e.Size.String(),
			strconv.Itoa(e.Atlas),
			fmt.Sprintf("%.4f, %.4f", e.UV.Min.X(), e.UV.Min.Y()),
			fmt.Sprintf("%.4f, %.4f", e.UV.Max.X(), e.UV.Max.Y()),
			rot,
		)
	}
	return t
}
