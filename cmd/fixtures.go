package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"signflow/internal/fixtures"
	"signflow/internal/geometry"
)

// defaultInspectContainer is the editor page box of the fake CRM, so
// "fixtures inspect" without flags shows the screen points scenarios drag to.
var defaultInspectContainer = geometry.Box{X: 100, Y: 150, Width: 714, Height: 1009}

func newFixturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Inspect and generate the reference document fixtures",
		Long: `The reference document is a three-page PDF whose companion coordinate
map says where every field belongs. Authoring scenarios place fields at
those coordinates and verification compares against them.`,
	}
	cmd.AddCommand(newFixturesInspectCmd())
	cmd.AddCommand(newFixturesPDFCmd())
	return cmd
}

func newFixturesInspectCmd() *cobra.Command {
	var (
		coordinatesPath string
		container       string
		page            int
		role            string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the coordinate map and where each field lands on screen",
		Long: `Print every field of the coordinate map with its document-space box and
the screen box it maps to for a rendered page container.

The container is the page element's bounding box as "x,y,width,height" in
CSS pixels, e.g. as read from the browser's devtools.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			coords, err := loadCoordinates(coordinatesPath)
			if err != nil {
				return err
			}
			box := defaultInspectContainer
			if container != "" {
				if box, err = parseBox(container); err != nil {
					return err
				}
			}
			mapper, err := geometry.NewMapper(box, coords.PageSize())
			if err != nil {
				return err
			}

			fields := coords.All()
			if role != "" {
				fields = coords.VisibleTo(role)
			}
			if page > 0 {
				var onPage []fixtures.FieldCoord
				for _, f := range fields {
					if f.Page == page {
						onPage = append(onPage, f)
					}
				}
				fields = onPage
			}

			sx, sy := mapper.Scale()
			fmt.Fprintf(cmd.OutOrStdout(), "Page %gx%g, container %s, scale %.3f x %.3f, roles: %s\n",
				coords.PageWidth, coords.PageHeight, formatBox(box), sx, sy, strings.Join(coords.Roles(), ", "))
			renderFieldTable(cmd, fields, mapper)
			return nil
		},
	}
	cmd.Flags().StringVar(&coordinatesPath, "coordinates", "", "Coordinate map JSON (default: the embedded fixture)")
	cmd.Flags().StringVar(&container, "container", "", "Rendered page box as x,y,width,height (default: the fake CRM editor)")
	cmd.Flags().IntVar(&page, "page", 0, "Only show fields on this page")
	cmd.Flags().StringVar(&role, "role", "", "Only show fields visible to this role")
	return cmd
}

func renderFieldTable(cmd *cobra.Command, fields []fixtures.FieldCoord, mapper *geometry.Mapper) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Page", "Field", "Type", "Scope", "Document", "Screen"})
	for _, f := range fields {
		scope := f.Scope
		if f.IsDocumentScope() {
			scope = text.FgHiBlack.Sprint(fixtures.DocumentScope)
		}
		tw.AppendRow(table.Row{f.Page, f.Name, f.Type, scope, formatBox(f.Rect()), formatBox(mapper.RectToScreen(f.Rect()))})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d fields", len(fields))})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	tw.Render()
}

func newFixturesPDFCmd() *cobra.Command {
	var (
		out   string
		pages int
	)
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "Write the reference PDF",
		Long:  `Write the blank reference document the coordinate map describes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 1 {
				return fmt.Errorf("pages must be at least 1, got %d", pages)
			}
			if dir := filepath.Dir(out); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create %s: %w", dir, err)
				}
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := fixtures.WriteReferencePDF(f, pages, geometry.A4); err != nil {
				f.Close()
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "📄 Wrote %d-page reference document to %s\n", pages, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "testdata/reference.pdf", "Where to write the PDF")
	cmd.Flags().IntVar(&pages, "pages", fixtures.PageCount, "Number of pages")
	return cmd
}

func loadCoordinates(path string) (*fixtures.CoordinateMap, error) {
	if path == "" {
		return fixtures.DefaultCoordinates()
	}
	return fixtures.LoadCoordinates(path)
}

// parseBox parses "x,y,width,height".
func parseBox(s string) (geometry.Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Box{}, fmt.Errorf("container must be x,y,width,height, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geometry.Box{}, fmt.Errorf("container must be x,y,width,height, got %q", s)
		}
		v[i] = f
	}
	return geometry.Box{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func formatBox(b geometry.Box) string {
	return fmt.Sprintf("%.1f,%.1f %gx%g", b.X, b.Y, round1(b.Width), round1(b.Height))
}

func round1(f float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 1, 64), 64)
	return v
}
