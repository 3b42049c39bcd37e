package qcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitfantasy/precast/internal/config"
	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/handler"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/bitfantasy/precast/internal/qc/service"
	"github.com/bitfantasy/precast/internal/qc/sse"
	"github.com/bitfantasy/precast/internal/qc/testutil"
	"github.com/bitfantasy/precast/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var scope = entity.Scope{WorkspaceID: "W1", FormID: "F1", InspectionType: entity.InspectionTypePrePour}

func stubServer(t *testing.T, fn http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(fn)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithToken("tok"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestListPiecesSendsScopeAndToken(t *testing.T) {
	c := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/qc/pieces", r.URL.Path)
		assert.Equal(t, "W1", r.URL.Query().Get("workspaceId"))
		assert.Equal(t, "F1", r.URL.Query().Get("formId"))
		assert.Equal(t, "PRE_POUR", r.URL.Query().Get("type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, 200, map[string]interface{}{
			"code": 0, "message": "success",
			"data": map[string]interface{}{
				"items": []map[string]interface{}{
					{"id": "P1", "mark": "KB-1", "qc_status": map[string]string{"PRE_POUR": "APPROVED"}},
					{"id": "P2", "mark": "KB-2"},
				},
			},
		})
	})

	pieces, err := c.ListPieces(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	assert.Equal(t, "KB-1", pieces[0].Mark)
	assert.Equal(t, entity.InspectionStatusApproved, pieces[0].InspectionStatus(entity.InspectionTypePrePour))
	assert.Equal(t, entity.InspectionStatusPending, pieces[1].InspectionStatus(entity.InspectionTypePrePour))
}

func TestNotFoundMapsToWorkflowError(t *testing.T) {
	c := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]interface{}{"code": 40400, "message": "workspace W9: record not found"})
	})

	_, err := c.GetArrangement(context.Background(), scope)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40400, apiErr.Code)
	assert.Contains(t, apiErr.Error(), "W9")
}

func TestFailureEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   interface{}
		msg    string
	}{
		{"non-zero code", 200, map[string]interface{}{"code": 40901, "message": "already completed"}, "already completed"},
		{"success false", 200, map[string]interface{}{"success": false, "error": "gateway down"}, "gateway down"},
		{"plain 500", 500, map[string]interface{}{}, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			err := c.SaveArrangement(context.Background(), scope, []string{"P1"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.NotErrorIs(t, err, workflow.ErrNotFound)
		})
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	c := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})
	_, err := c.ListPoints(context.Background(), "P1", "pg1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestSaveArrangementBody(t *testing.T) {
	var got map[string]interface{}
	c := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, 200, map[string]interface{}{"code": 0, "message": "success"})
	})

	require.NoError(t, c.SaveArrangement(context.Background(), scope, nil))
	assert.Equal(t, "W1", got["workspaceId"])
	assert.Equal(t, "F1", got["formId"])
	assert.Equal(t, "PRE_POUR", got["type"])
	assert.Equal(t, []interface{}{}, got["arrangement"], "nil order is sent as an empty list")
}

func TestCompleteInspectionBody(t *testing.T) {
	c := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/qc/complete", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"pieceId": "P1", "type": "POST_POUR", "status": "REJECTED"}, body)
		writeJSON(w, 200, map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{"id": "P1", "status": "READY_FOR_POUR", "qc_status": map[string]string{"POST_POUR": "REJECTED"}},
		})
	})

	piece, err := c.CompleteInspection(context.Background(), "P1", entity.InspectionTypePostPour, entity.InspectionStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, entity.InspectionStatusRejected, piece.InspectionStatus(entity.InspectionTypePostPour))
}

// newServer 启动完整的质检服务（内存 SQLite）
func newServer(t *testing.T) (*gorm.DB, *Client) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	hub := sse.NewHub(zap.NewNop())
	cfg := &config.Config{QC: config.QCConfig{ArrangementCacheTTL: time.Minute}}
	svc := service.NewServices(repos, nil, cfg, hub, zap.NewNop())

	r := testutil.SetupRouter()
	handler.NewHandlers(svc, hub, 1<<20).RegisterRoutes(testutil.AuthGroup(r, "/api/v1"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return db, New(srv.URL, WithToken(testutil.DefaultTestToken()))
}

func TestSessionAgainstServer(t *testing.T) {
	ctx := context.Background()
	db, client := newServer(t)
	testutil.SeedScope(t, db, scope,
		testutil.Piece("P1", "P1-a", "P1-b"), testutil.Piece("P2", "P2-a"), testutil.Piece("P3", "P3-a"))

	s := workflow.NewSession(client, scope)
	require.NoError(t, s.Load(ctx))
	require.Equal(t, []string{"P1", "P2", "P3"}, workflow.PieceIDs(s.Pieces()))

	require.NoError(t, s.Reorder(ctx, 2, 0))
	saved, err := client.GetArrangement(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"P3", "P1", "P2"}, saved)

	// cursor follows P1 to index 1
	cur, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, "P1", cur.ID)

	pt, err := s.AddPointAt(ctx, 12.5, 80, "honeycombing")
	require.NoError(t, err)
	assert.Equal(t, "P1-a", pt.PageID)
	assert.Len(t, s.Points(), 1)

	require.NoError(t, s.Complete(ctx, entity.InspectionStatusApproved))
	done, total := s.Progress()
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, total)
	next, _ := s.Current()
	assert.Equal(t, "P2", next.ID)

	p1, err := client.Complete(ctx, "P1", entity.InspectionTypePrePour, entity.InspectionStatusApproved, "")
	require.Error(t, err, "second completion is rejected")
	assert.Nil(t, p1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40901, apiErr.Code)

	reloaded := workflow.NewSession(client, scope)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"P3", "P1", "P2"}, workflow.PieceIDs(reloaded.Pieces()))
	assert.Equal(t, entity.PieceStatusReadyForPour, reloaded.Pieces()[1].Status)

	queue, err := client.Queue(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"P3", "P1", "P2"}, workflow.PieceIDs(queue))
}

func TestSessionUnknownScope(t *testing.T) {
	_, client := newServer(t)
	s := workflow.NewSession(client, entity.Scope{WorkspaceID: "nope", FormID: "F1", InspectionType: entity.InspectionTypePrePour})
	assert.ErrorIs(t, s.Load(context.Background()), workflow.ErrNotFound)
}

func TestRecommendAndReport(t *testing.T) {
	ctx := context.Background()
	db, client := newServer(t)
	testutil.SeedScope(t, db, scope, testutil.Piece("P1", "P1-a"))

	rec, err := client.Recommend(ctx, "P1", entity.InspectionTypePrePour)
	require.NoError(t, err)
	assert.Equal(t, service.SuggestApprove, rec.Suggestion)

	var buf bytes.Buffer
	n, err := client.DownloadReport(ctx, scope, &buf)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Equal(t, "PK", buf.String()[:2], "xlsx is a zip archive")

	_, err = client.DownloadReport(ctx, entity.Scope{WorkspaceID: "W1", FormID: "F1", InspectionType: "BAD"}, &buf)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
