package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decided(id, pieceID, decision string) *entity.PieceInspection {
	now := time.Now()
	return &entity.PieceInspection{
		ID:             id,
		PieceID:        pieceID,
		InspectionType: entity.InspectionTypePrePour,
		Status:         decision,
		InspectorID:    "u1",
		CompletedAt:    &now,
	}
}

func TestInspectionCompleteOnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := NewInspectionRepository(db)
	scope := entity.Scope{WorkspaceID: "W1", FormID: "F1", InspectionType: entity.InspectionTypePrePour}
	testutil.SeedScope(t, db, scope, testutil.Piece("P1"), testutil.Piece("P2"))

	require.NoError(t, repo.Complete(ctx, decided("i1", "P1", entity.InspectionStatusApproved), "", nil))
	err := repo.Complete(ctx, decided("i2", "P1", entity.InspectionStatusRejected), "", nil)
	assert.ErrorIs(t, err, ErrConflict, "a second decision loses to the first one")

	var rows []entity.PieceInspection
	require.NoError(t, db.Where("piece_id = ?", "P1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, entity.InspectionStatusApproved, rows[0].Status)
}

func TestInspectionCompleteUpdatesPendingRow(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := NewInspectionRepository(db)
	scope := entity.Scope{WorkspaceID: "W1", FormID: "F1", InspectionType: entity.InspectionTypePrePour}
	testutil.SeedScope(t, db, scope, testutil.Piece("P1"))

	pending := &entity.PieceInspection{ID: "i0", PieceID: "P1", InspectionType: entity.InspectionTypePrePour, Status: entity.InspectionStatusPending}
	require.NoError(t, db.Create(pending).Error)

	require.NoError(t, repo.Complete(ctx, decided("i1", "P1", entity.InspectionStatusRejected), "", nil))
	var rows []entity.PieceInspection
	require.NoError(t, db.Where("piece_id = ?", "P1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "i0", rows[0].ID)
	assert.Equal(t, entity.InspectionStatusRejected, rows[0].Status)
	assert.NotNil(t, rows[0].CompletedAt)

	assert.ErrorIs(t, repo.Complete(ctx, decided("i2", "P1", entity.InspectionStatusApproved), "", nil), ErrConflict)
}
