package main

import (
	"fmt"

	"github.com/bitfantasy/precast/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Open the inspection workbench",
	Long:  `Open the terminal workbench for a workspace/form: navigate pieces and drawing pages, reorder the queue, mark inspection points and approve or reject pieces.`,
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().Bool("no-mouse", false, "disable mouse support in the TUI")
}

func runInspect(cmd *cobra.Command, args []string) error {
	scope, err := scopeFromFlags()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := GetContext()
	model := tui.New(ctx, newClient(), scope, logger.Named("tui"))

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if noMouse, _ := cmd.Flags().GetBool("no-mouse"); !noMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	logger.Info("inspection session started", zap.String("scope", scope.Key()))
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	done, total := model.Session().Progress()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d inspected\n", scope.Key(), done, total)
	return nil
}
