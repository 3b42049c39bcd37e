package main

import (
	"fmt"
	"strings"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/spf13/cobra"
)

var completeCmd = &cobra.Command{
	Use:   "complete PIECE_ID",
	Short: "Approve or reject a piece",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

var recommendCmd = &cobra.Command{
	Use:   "recommend PIECE_ID",
	Short: "Show the suggested decision for a piece",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecommend,
}

func init() {
	completeCmd.Flags().StringP("status", "s", entity.InspectionStatusApproved, "decision (APPROVED, REJECTED)")
	completeCmd.Flags().String("notes", "", "inspection notes")
}

func runComplete(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	notes, _ := cmd.Flags().GetString("notes")
	status = strings.ToUpper(status)
	if status != entity.InspectionStatusApproved && status != entity.InspectionStatusRejected {
		return fmt.Errorf("status must be APPROVED or REJECTED, got %q", status)
	}
	inspectionType := strings.ToUpper(settings.GetString("type"))

	piece, err := newClient().Complete(GetContext(), args[0], inspectionType, status, notes)
	if err != nil {
		return fmt.Errorf("failed to complete %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s (piece status %s)\n",
		piece.Mark, inspectionType, piece.InspectionStatus(inspectionType), piece.Status)
	return nil
}

func runRecommend(cmd *cobra.Command, args []string) error {
	inspectionType := strings.ToUpper(settings.GetString("type"))
	rec, err := newClient().Recommend(GetContext(), args[0], inspectionType)
	if err != nil {
		return fmt.Errorf("failed to get recommendation: %w", err)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s: %s (%.0f%%)\n", rec.PieceID, rec.InspectionType, rec.Suggestion, rec.Confidence*100)
	for _, r := range rec.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
	return nil
}
