package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/workflow"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the inspection queue in display order",
	RunE:  runQueue,
}

var reorderCmd = &cobra.Command{
	Use:   "reorder PIECE_ID...",
	Short: "Save a custom arrangement",
	Long: `Save PIECE_ID... as the arrangement of the scope. Scheduled pieces not listed
keep their schedule order after the listed ones. Without arguments the
arrangement is cleared.`,
	RunE: runReorder,
}

var moveCmd = &cobra.Command{
	Use:   "move FROM TO",
	Short: "Move the piece at position FROM to position TO (1-based)",
	Args:  cobra.ExactArgs(2),
	RunE:  runMove,
}

func runQueue(cmd *cobra.Command, args []string) error {
	scope, err := scopeFromFlags()
	if err != nil {
		return err
	}
	pieces, err := newClient().Queue(GetContext(), scope)
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}
	printQueue(cmd.OutOrStdout(), pieces, scope.InspectionType)
	return nil
}

func runReorder(cmd *cobra.Command, args []string) error {
	scope, err := scopeFromFlags()
	if err != nil {
		return err
	}
	client := newClient()
	ctx := GetContext()
	if err := client.SaveArrangement(ctx, scope, args); err != nil {
		return fmt.Errorf("failed to save arrangement: %w", err)
	}
	pieces, err := client.Queue(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}
	printQueue(cmd.OutOrStdout(), pieces, scope.InspectionType)
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	scope, err := scopeFromFlags()
	if err != nil {
		return err
	}
	from, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid position %q", args[0])
	}
	to, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid position %q", args[1])
	}

	ctx := GetContext()
	session := workflow.NewSession(newClient(), scope)
	if err := session.Load(ctx); err != nil {
		return fmt.Errorf("failed to load %s: %w", scope.Key(), err)
	}
	if err := session.Reorder(ctx, from-1, to-1); err != nil {
		return err
	}
	printQueue(cmd.OutOrStdout(), session.Pieces(), scope.InspectionType)
	return nil
}

func printQueue(w io.Writer, pieces []entity.Piece, inspectionType string) {
	if len(pieces) == 0 {
		fmt.Fprintln(w, "No pieces scheduled")
		return
	}
	fmt.Fprintf(w, "%-4s %-32s %-20s %-18s %s\n", "#", "ID", "MARK", "STATUS", "QC")
	fmt.Fprintf(w, "%-4s %-32s %-20s %-18s %s\n", "-", "--", "----", "------", "--")
	for i, p := range pieces {
		mark := p.Mark
		if len(mark) > 18 {
			mark = mark[:15] + "..."
		}
		fmt.Fprintf(w, "%-4d %-32s %-20s %-18s %s\n", i+1, p.ID, mark, p.Status, p.InspectionStatus(inspectionType))
	}
}
