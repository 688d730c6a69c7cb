package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
	"github.com/matzehuels/atlasbake/pkg/render/tree"
)

// treeCommand creates the tree command.
func (c *CLI) treeCommand() *cobra.Command {
	var (
		output   string
		root     string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "tree <manifest>",
		Short: "Render the cluster tree of a manifest",
		Long: `Tree sorts the items of a manifest the way the first bake cycle does and
renders the resulting cluster tree. Group roots and their leaves share a
colour, so the diagram shows which items will share an atlas.

The output format follows the file extension: .dot, .svg or .png.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "_tree.svg"
			}

			s := newSpinner("Sorting items...")
			s.Start()
			data, groups, err := c.renderTree(ctx, pipeline.Options{Manifest: args[0], Root: root}, output, detailed)
			if err != nil {
				s.StopWithError("Tree rendering failed")
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				s.StopWithError("Tree rendering failed")
				return fmt.Errorf("write %s: %w", output, err)
			}
			s.StopWithSuccess(fmt.Sprintf("Rendered cluster tree with %s", plural(groups, "group")))
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <manifest>_tree.svg)")
	cmd.Flags().StringVar(&root, "root", "", "directory sources resolve against (default: manifest dir)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include points and sizes in node labels")
	return cmd
}

// renderTree sorts the manifest and renders its tree in the format implied
// by output. It returns the encoded diagram and the number of groups.
func (c *CLI) renderTree(ctx context.Context, opts pipeline.Options, output string, detailed bool) ([]byte, int, error) {
	runner := pipeline.NewRunner(nil, nil, nil, c.Logger)
	p, err := runner.Prepare(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	res, err := atlas.Sort(p.Unique, p.Config)
	if err != nil {
		return nil, 0, err
	}

	labels := make([]string, len(p.Unique))
	for i, in := range p.Unique {
		labels[i] = in.Source
	}
	dot := tree.ToDOT(res.Tree(), tree.Options{Labels: labels, Detailed: detailed})

	var data []byte
	switch ext := strings.ToLower(filepath.Ext(output)); ext {
	case ".dot", ".gv":
		data = []byte(dot)
	case ".svg":
		data, err = tree.RenderSVG(ctx, dot)
	case ".png":
		data, err = tree.RenderPNG(ctx, dot)
	default:
		return nil, 0, fmt.Errorf("unsupported tree format %q (use .dot, .svg or .png)", ext)
	}
	if err != nil {
		return nil, 0, err
	}
	return data, len(res.Groups), nil
}
