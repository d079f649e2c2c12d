package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
	"github.com/qqqlq/itf-ensyu/pkg/screen"
)

// boardCommand creates the board command.
func (c *CLI) boardCommand() *cobra.Command {
	var (
		asJSON bool
		tags   []string
	)

	cmd := &cobra.Command{
		Use:   "board [variant]",
		Short: "Load a board variant and print its visible posters",
		Long: `Load a board variant from the poster API and print the posters that pass
the tag filter. Each --tag selects one tag; a poster is shown if it carries
any selected tag.`,
		Example: `  posterboard board
  posterboard board second --tag art --tag music
  posterboard board --json | jq '.visible[].name'`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: c.completeVariants,
		RunE: func(cmd *cobra.Command, args []string) error {
			lb, err := c.loadBoard(cmd.Context(), variantArg(args), !asJSON)
			if err != nil {
				return err
			}
			defer lb.close()

			for _, t := range tags {
				tag := t
				if err := lb.screen.Do(cmd.Context(), "toggle", func(e *board.Engine) error {
					if !e.IsSelected(tag) {
						e.ToggleTag(tag)
					}
					return nil
				}); err != nil {
					return err
				}
			}

			snap, err := lb.screen.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printBoard(snap)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the board snapshot as JSON")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "select a tag filter (repeatable)")

	return cmd
}

// tagsCommand creates the tags command.
func (c *CLI) tagsCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "tags [variant]",
		Short:             "Print the tag universe of a board variant",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: c.completeVariants,
		RunE: func(cmd *cobra.Command, args []string) error {
			lb, err := c.loadBoard(cmd.Context(), variantArg(args), false)
			if err != nil {
				return err
			}
			defer lb.close()

			snap, err := lb.screen.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range snap.Tags {
				fmt.Println(t)
			}
			return nil
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// loadedBoard is a mounted screen whose event loop runs until close.
type loadedBoard struct {
	screen  *screen.Screen
	infoURL string
	close   func()
}

// startBoard opens the variant and runs its screen loop. It does not mount.
func (c *CLI) startBoard(ctx context.Context, name string) (*loadedBoard, error) {
	s, client, cc, err := c.openBoard(ctx, name)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(runCtx)
	}()
	return &loadedBoard{
		screen:  s,
		infoURL: client.InfoURL(),
		close: func() {
			cancel()
			<-done
			cc.Close()
		},
	}, nil
}

// loadBoard starts the variant, mounts it and waits for the load to settle.
// A failed load is returned as an error after the board is closed.
func (c *CLI) loadBoard(ctx context.Context, name string, showSpinner bool) (*loadedBoard, error) {
	lb, err := c.startBoard(ctx, name)
	if err != nil {
		return nil, err
	}

	prog := newLoadProgress(c.Logger, name)
	var spinner *Spinner
	if showSpinner {
		spinner = newBoardSpinner(ctx, name)
		spinner.Start()
	}

	if err := lb.screen.Mount(ctx); err != nil {
		stopSpinner(spinner, err)
		lb.close()
		return nil, err
	}
	if spinner != nil {
		spinner.SetMessage(fmt.Sprintf("Fetching %s...", lb.infoURL))
	}
	state, err := lb.screen.Wait(ctx)
	stopSpinner(spinner, err)
	if err != nil || state != screen.Loaded {
		lb.close()
		if err == nil {
			err = perrors.New(perrors.ErrCodeInternal, "board %s ended in state %s", name, state)
		}
		return nil, err
	}

	snap, err := lb.screen.Snapshot(ctx)
	if err != nil {
		lb.close()
		return nil, err
	}
	prog.done(len(snap.Entities))
	return lb, nil
}

// stopSpinner stops s, reporting the failure unless the load was cancelled.
func stopSpinner(s *Spinner, err error) {
	switch {
	case s == nil:
	case err != nil && !s.Cancelled():
		s.StopWithError()
	default:
		s.Stop()
	}
}

func variantArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultVariant
}

func errUnknownVariant(name string, known []string) error {
	return perrors.New(perrors.ErrCodeInvalidInput, "unknown variant %q (available: %s)", name, strings.Join(known, ", "))
}

// completeVariants offers the configured variant names for shell completion.
func (c *CLI) completeVariants(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return c.config().VariantNames(), cobra.ShellCompDirectiveNoFileComp
}

// =============================================================================
// Output
// =============================================================================

// printBoard renders the visible posters as a table.
func printBoard(snap screen.Snapshot) {
	fmt.Println(StyleTitle.Render(snap.Variant) + " " + StyleDim.Render("board"))
	printBoardStats(len(snap.Entities), len(snap.Visible), len(snap.Tags))
	if len(snap.Selected) > 0 {
		printKeyValue("Filter", strings.Join(snap.Selected, ", "))
	}
	if len(snap.Visible) == 0 {
		printInfo("No posters match the selected tags")
		return
	}
	fmt.Println(boardTable(snap.Visible, snap.Selected).Render())
}

func boardTable(entities []board.Entity, selected []string) *table.Table {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, []string{
			fmt.Sprint(e.ID),
			e.Name,
			e.PostTime,
			formatTags(e.Tags, selected),
			formatSize(e.Size),
			formatPosition(e.Position),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Poster", "Posted", "Tags", "Size", "Position").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle
			case col == 0 || col == 4 || col == 5:
				return lipgloss.NewStyle().Foreground(colorCyan)
			case col == 2:
				return lipgloss.NewStyle().Foreground(colorGray)
			default:
				return lipgloss.NewStyle().Foreground(colorWhite)
			}
		})
}

// formatTags joins tags, marking the ones that are part of the filter.
func formatTags(tags, selected []string) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		if slices.Contains(selected, t) {
			parts[i] = "#" + t + "*"
		} else {
			parts[i] = "#" + t
		}
	}
	return strings.Join(parts, " ")
}

func formatSize(s board.Size) string {
	return fmt.Sprintf("%.0f×%.0f", s.Width, s.Height)
}

func formatPosition(p board.Position) string {
	return fmt.Sprintf("(%.0f, %.0f)", p.X, p.Y)
}
