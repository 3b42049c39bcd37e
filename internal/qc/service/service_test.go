package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bitfantasy/precast/internal/config"
	"github.com/bitfantasy/precast/internal/qc/cache"
	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/bitfantasy/precast/internal/qc/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestServices(t *testing.T) (*Services, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := &config.Config{QC: config.QCConfig{ArrangementCacheTTL: time.Minute}}
	return NewServices(repository.NewRepositories(db), nil, cfg, nil, zap.NewNop()), db
}

func boolPtr(b bool) *bool { return &b }

func TestCompleteRequestDecision(t *testing.T) {
	tests := []struct {
		name    string
		req     CompleteRequest
		want    string
		wantErr bool
	}{
		{"approved flag", CompleteRequest{Approved: boolPtr(true)}, entity.InspectionStatusApproved, false},
		{"rejected flag", CompleteRequest{Approved: boolPtr(false)}, entity.InspectionStatusRejected, false},
		{"status wins", CompleteRequest{Approved: boolPtr(true), Status: "REJECTED"}, entity.InspectionStatusRejected, false},
		{"lowercase status", CompleteRequest{Status: "approved"}, entity.InspectionStatusApproved, false},
		{"pending is not a decision", CompleteRequest{Status: "PENDING"}, "", true},
		{"missing", CompleteRequest{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Decision()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArrangementCacheRefreshedOnSave(t *testing.T) {
	svc, db := newTestServices(t)
	ctx := context.Background()
	scope := entity.Scope{WorkspaceID: "W1", FormID: "F1", InspectionType: entity.InspectionTypePrePour}
	testutil.SeedScope(t, db, scope, testutil.Piece("P1"), testutil.Piece("P2"))

	ids, err := svc.Arrangement.Get(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, ids)

	req := &SaveArrangementRequest{WorkspaceID: "W1", FormID: "F1", InspectionType: "PRE_POUR", Arrangement: []string{"P2", "P1"}}
	require.NoError(t, svc.Arrangement.Save(ctx, req, "u1"))

	ids, err = svc.Arrangement.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"P2", "P1"}, ids, "a cached empty arrangement must not survive a save")

	req.Arrangement = []string{}
	require.NoError(t, svc.Arrangement.Save(ctx, req, "u1"))
	queue, err := svc.Arrangement.Queue(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, "P1", queue[0].ID, "clearing the arrangement restores schedule order")
}

// slowFillCache runs beforeFill between the database read and the cache fill.
type slowFillCache struct {
	cache.ArrangementCache
	beforeFill func()
}

func (c *slowFillCache) Fill(ctx context.Context, scope entity.Scope, ids []string) {
	if fn := c.beforeFill; fn != nil {
		c.beforeFill = nil
		fn()
	}
	c.ArrangementCache.Fill(ctx, scope, ids)
}

func TestArrangementCacheReaderDoesNotRestoreReplacedOrder(t *testing.T) {
	svc, db := newTestServices(t)
	ctx := context.Background()
	scope := entity.Scope{WorkspaceID: "W1", FormID: "F1", InspectionType: entity.InspectionTypePrePour}
	testutil.SeedScope(t, db, scope, testutil.Piece("P1"), testutil.Piece("P2"))

	slow := &slowFillCache{ArrangementCache: cache.NewLocal(time.Minute)}
	svc.Arrangement.cache = slow
	req := &SaveArrangementRequest{WorkspaceID: "W1", FormID: "F1", InspectionType: "PRE_POUR", Arrangement: []string{"P2", "P1"}}
	slow.beforeFill = func() {
		require.NoError(t, svc.Arrangement.Save(ctx, req, "u2"))
	}

	ids, err := svc.Arrangement.Get(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, ids, "the reader saw the rows before the save")

	ids, err = svc.Arrangement.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"P2", "P1"}, ids)
}

func TestImportCSVUTF8WithBOM(t *testing.T) {
	svc, _ := newTestServices(t)
	data := "\xef\xbb\xbfmark,description,drawing_ref,length\nA-1,外墙板,D1,1200.5\n\n,missing mark,,\n"

	res, err := svc.Piece.ImportCSV(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], "第4行")

	piece, err := svc.Piece.Get(context.Background(), res.PieceIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "外墙板", piece.Description)
	assert.Equal(t, 1200.5, piece.Length)
	assert.Equal(t, entity.PieceStatusInProduction, piece.Status)
}

func TestEligibleUnknownStage(t *testing.T) {
	svc, _ := newTestServices(t)
	_, err := svc.Piece.Eligible(context.Background(), "curing")
	assert.ErrorIs(t, err, ErrInvalidInput)

	pieces, err := svc.Piece.Eligible(context.Background(), entity.PieceStatusShipped)
	require.NoError(t, err)
	assert.NotNil(t, pieces)
}

func TestDrawingUploadWithoutStorage(t *testing.T) {
	svc, db := newTestServices(t)
	testutil.SeedPiece(t, db, &entity.Piece{ID: "P1"})

	_, err := svc.Drawing.AddPage(context.Background(), "P1", &AddPageRequest{Title: "x"},
		&PageUpload{Reader: strings.NewReader("img"), FileName: "a.png", Size: 3})
	assert.True(t, errors.Is(err, ErrStorageUnavailable))

	_, err = svc.Drawing.AddPage(context.Background(), "P1", &AddPageRequest{Title: "x"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Drawing.AddPage(context.Background(), "nope", &AddPageRequest{ImageURL: "u"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuleRecommender(t *testing.T) {
	ctx := context.Background()
	piece := &entity.Piece{ID: "P1", DrawingPages: []entity.DrawingPage{{ID: "pg"}}}
	r := RuleRecommender{}

	tests := []struct {
		open int
		want string
	}{
		{0, SuggestApprove},
		{2, SuggestReview},
		{5, SuggestReject},
	}
	for _, tt := range tests {
		rec, err := r.Recommend(ctx, RecommendationInput{Piece: piece, InspectionType: entity.InspectionTypePrePour, OpenPoints: tt.open})
		require.NoError(t, err)
		assert.Equal(t, tt.want, rec.Suggestion, "open points %d", tt.open)
	}

	done := &entity.Piece{ID: "P2", QCStatus: map[string]string{entity.InspectionTypePrePour: entity.InspectionStatusRejected}}
	rec, err := r.Recommend(ctx, RecommendationInput{Piece: done, InspectionType: entity.InspectionTypePrePour})
	require.NoError(t, err)
	assert.Equal(t, SuggestBlocked, rec.Suggestion)
}
