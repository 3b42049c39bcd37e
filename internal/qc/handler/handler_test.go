package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/precast/internal/config"
	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/bitfantasy/precast/internal/qc/service"
	"github.com/bitfantasy/precast/internal/qc/sse"
	"github.com/bitfantasy/precast/internal/qc/testutil"
	"github.com/bitfantasy/precast/internal/shared/feishu"
	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	svc    *service.Services
	hub    *sse.Hub
	store  *memStore
	cards  chan feishu.InteractiveCard
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, service.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type chanNotifier chan feishu.InteractiveCard

func (n chanNotifier) SendCard(_ context.Context, _ string, card feishu.InteractiveCard) error {
	n <- card
	return nil
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	hub := sse.NewHub(zap.NewNop())
	cfg := &config.Config{QC: config.QCConfig{ArrangementCacheTTL: time.Minute}}
	svc := service.NewServices(repos, nil, cfg, hub, zap.NewNop())

	store := &memStore{objects: map[string][]byte{}}
	svc.Drawing = service.NewDrawingService(repos.Piece, store, zap.NewNop())
	cards := make(chan feishu.InteractiveCard, 4)
	svc.Inspection.SetNotifier(chanNotifier(cards), "oc_qc", false)

	r := testutil.SetupRouter()
	NewHandlers(svc, hub, 1<<20).RegisterRoutes(testutil.AuthGroup(r, "/api/v1"))
	return &testEnv{db: db, router: r, svc: svc, hub: hub, store: store, cards: cards}
}

var w1 = entity.Scope{WorkspaceID: "W1", FormID: "F1", InspectionType: entity.InspectionTypePrePour}

const scopeQuery = "workspaceId=W1&formId=F1&type=PRE_POUR"

func pieceIDs(pieces []entity.Piece) []string {
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.ID
	}
	return out
}

func listPieces(t *testing.T, env *testEnv, path string) []entity.Piece {
	t.Helper()
	w := testutil.DoRequest(env.router, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Items []entity.Piece `json:"items"`
	}
	testutil.DecodeData(t, w, &data)
	return data.Items
}

func TestArrangementRoundTrip(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1", "P1-a", "P1-b"), testutil.Piece("P2", "P2-a"), testutil.Piece("P3"))

	pieces := listPieces(t, env, "/api/v1/qc/pieces?"+scopeQuery)
	require.Equal(t, []string{"P1", "P2", "P3"}, pieceIDs(pieces))
	require.Len(t, pieces[0].DrawingPages, 2)
	assert.Equal(t, "P1-a", pieces[0].DrawingPages[0].ID)
	assert.Equal(t, entity.InspectionStatusPending, pieces[0].QCStatus[entity.InspectionTypePrePour])

	w := testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/arrangement?"+scopeQuery, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Arrangement []string `json:"arrangement"`
	}
	testutil.DecodeData(t, w, &got)
	assert.Empty(t, got.Arrangement)
	assert.NotNil(t, got.Arrangement, "unsaved arrangement is an empty list, not null")

	w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/arrangement", map[string]interface{}{
		"workspaceId": "W1", "formId": "F1", "type": "PRE_POUR",
		"arrangement": []string{"P2", "P1", "P3"},
	}, testutil.DefaultTestToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/arrangement?workspace_id=W1&form_id=F1&type=PRE_POUR", nil, "")
	testutil.DecodeData(t, w, &got)
	if diff := cmp.Diff([]string{"P2", "P1", "P3"}, got.Arrangement); diff != "" {
		t.Fatalf("arrangement mismatch (-want +got):\n%s", diff)
	}

	queue := listPieces(t, env, "/api/v1/qc/queue?"+scopeQuery)
	assert.Equal(t, []string{"P2", "P1", "P3"}, pieceIDs(queue))

	var saved []entity.ArrangementItem
	require.NoError(t, env.db.Order("position").Find(&saved).Error)
	require.Len(t, saved, 3)
	assert.Equal(t, "inspector-001", saved[0].SavedBy)
}

func TestQueueAppendsNewlyScheduledPieces(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1"), testutil.Piece("P2"), testutil.Piece("P3"))
	ctx := context.Background()
	require.NoError(t, env.svc.Arrangement.Save(ctx, &service.SaveArrangementRequest{
		WorkspaceID: "W1", FormID: "F1", InspectionType: "PRE_POUR", Arrangement: []string{"P3", "P1"},
	}, ""))

	testutil.SeedPiece(t, env.db, &entity.Piece{ID: "P4"})
	_, err := env.svc.Schedule.Schedule(ctx, &service.ScheduleRequest{
		WorkspaceID: "W1", FormID: "F1", InspectionType: "PRE_POUR", PieceIDs: []string{"P4", "P1"},
	})
	require.NoError(t, err)

	queue := listPieces(t, env, "/api/v1/qc/queue?"+scopeQuery)
	assert.Equal(t, []string{"P3", "P1", "P2", "P4"}, pieceIDs(queue))
}

func TestPiecesScopeErrors(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1"))
	empty := entity.Scope{WorkspaceID: "W2", FormID: "F2", InspectionType: entity.InspectionTypePostPour}
	testutil.SeedScope(t, env.db, empty)

	w := testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/pieces?workspaceId=nope&formId=F1&type=PRE_POUR", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.EqualValues(t, 40400, testutil.ParseResponse(w)["code"])

	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/pieces?workspaceId=W1&formId=F9&type=PRE_POUR", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/pieces?workspaceId=W1&formId=F1&type=CURING", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	pieces := listPieces(t, env, "/api/v1/qc/pieces?workspaceId=W2&formId=F2&type=POST_POUR")
	assert.Empty(t, pieces)
}

func TestSaveArrangementValidation(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1"), testutil.Piece("P2"))
	testutil.SeedPiece(t, env.db, &entity.Piece{ID: "OTHER"})

	cases := map[string][]string{
		"unscheduled": {"P1", "OTHER"},
		"duplicate":   {"P1", "P1"},
	}
	for name, arrangement := range cases {
		t.Run(name, func(t *testing.T) {
			w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/arrangement", map[string]interface{}{
				"workspaceId": "W1", "formId": "F1", "type": "PRE_POUR", "arrangement": arrangement,
			}, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/arrangement", map[string]interface{}{
		"workspaceId": "W1", "formId": "F1", "type": "PRE_POUR", "arrangement": []string{"P2"},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, "a partial arrangement is allowed")
	assert.Equal(t, []string{"P2", "P1"}, pieceIDs(listPieces(t, env, "/api/v1/qc/queue?"+scopeQuery)))
}

func TestInspectionPoints(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1", "pg1", "pg2"), testutil.Piece("P2", "pg3"))

	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/points", map[string]interface{}{
		"pieceId": "P1", "page": "pg1", "x": 25.5, "y": 50, "type": "PRE_POUR", "note": "蜂窝麻面",
	}, testutil.DefaultTestToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var point entity.InspectionPoint
	testutil.DecodeData(t, w, &point)
	assert.Equal(t, 25.5, point.X)
	assert.Equal(t, entity.PointStatusOpen, point.Status)
	assert.Equal(t, "inspector-001", point.CreatedBy)

	bad := []map[string]interface{}{
		{"pieceId": "P1", "page": "pg1", "x": 120, "y": 10, "type": "PRE_POUR"},
		{"pieceId": "P1", "page": "pg1", "x": 10, "y": -1, "type": "PRE_POUR"},
		{"pieceId": "P1", "page": "pg3", "x": 10, "y": 10, "type": "PRE_POUR"},
		{"pieceId": "P1", "x": 10, "y": 10},
	}
	for _, body := range bad {
		w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/points", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", body)
	}

	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/points?pieceId=P1&page=pg1", nil, "")
	var list struct {
		Items []entity.InspectionPoint `json:"items"`
	}
	testutil.DecodeData(t, w, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "蜂窝麻面", list.Items[0].Note)

	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/points?pieceId=P1&page=pg2", nil, "")
	testutil.DecodeData(t, w, &list)
	assert.Empty(t, list.Items)
}

func complete(t *testing.T, env *testEnv, path string, body map[string]interface{}) (*entity.Piece, int) {
	t.Helper()
	w := testutil.DoRequest(env.router, http.MethodPost, path, body, testutil.DefaultTestToken())
	if w.Code != http.StatusOK {
		return nil, w.Code
	}
	var piece entity.Piece
	testutil.DecodeData(t, w, &piece)
	return &piece, w.Code
}

func TestCompleteCascadesThroughLifecycle(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1", "pg1"), testutil.Piece("P2"))

	piece, code := complete(t, env, "/api/v1/qc/complete", map[string]interface{}{"pieceId": "P1", "type": "PRE_POUR", "approved": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, entity.PieceStatusReadyForPour, piece.Status)
	assert.Equal(t, entity.InspectionStatusApproved, piece.QCStatus[entity.InspectionTypePrePour])
	assert.Equal(t, entity.InspectionStatusPending, piece.QCStatus[entity.InspectionTypePostPour])
	assert.Len(t, piece.DrawingPages, 1)

	_, code = complete(t, env, "/api/v1/qc/complete", map[string]interface{}{"pieceId": "P1", "type": "PRE_POUR", "approved": false})
	assert.Equal(t, http.StatusConflict, code, "a decided inspection cannot be redecided")

	_, code = complete(t, env, "/api/v1/qc/inspections/P2/complete", map[string]interface{}{"type": "POST_POUR", "status": "APPROVED"})
	assert.Equal(t, http.StatusConflict, code, "post-pour requires an approved pre-pour")

	_, code = complete(t, env, "/api/v1/qc/complete", map[string]interface{}{"pieceId": "P1", "type": "PRE_POUR"})
	assert.Equal(t, http.StatusBadRequest, code)

	_, code = complete(t, env, "/api/v1/qc/complete", map[string]interface{}{"pieceId": "missing", "type": "PRE_POUR", "approved": true})
	assert.Equal(t, http.StatusNotFound, code)

	piece, code = complete(t, env, "/api/v1/qc/inspections/P1/complete", map[string]interface{}{"type": "POST_POUR", "status": "approved"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, entity.PieceStatusReadyForYard, piece.Status)

	yard := listPieces(t, env, "/api/v1/qc/pieces/eligible?stage=yard")
	assert.Equal(t, []string{"P1"}, pieceIDs(yard))

	w := testutil.DoRequest(env.router, http.MethodPut, "/api/v1/qc/pieces/P1/status", map[string]string{"status": "SHIPPED"}, "")
	assert.Equal(t, http.StatusConflict, w.Code, "statuses cannot be skipped")
	w = testutil.DoRequest(env.router, http.MethodPut, "/api/v1/qc/pieces/P1/status", map[string]string{"status": "READY_FOR_SHIPPING"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = testutil.DoRequest(env.router, http.MethodPut, "/api/v1/qc/pieces/P1/status", map[string]string{"status": "READY_FOR_YARD"}, "")
	assert.Equal(t, http.StatusConflict, w.Code, "statuses only move forward")
	w = testutil.DoRequest(env.router, http.MethodPut, "/api/v1/qc/pieces/P2/status", map[string]string{"status": "READY_FOR_POUR"}, "")
	assert.Equal(t, http.StatusConflict, w.Code, "pour readiness is granted by inspection only")

	select {
	case card := <-env.cards:
		t.Fatalf("approvals are not announced by default, got %q", card.Header.Title.Content)
	default:
	}
}

func TestRejectionKeepsStatusAndNotifies(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1", "pg1"))

	piece, code := complete(t, env, "/api/v1/qc/complete", map[string]interface{}{"pieceId": "P1", "type": "PRE_POUR", "approved": false, "notes": "预埋件偏位"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, entity.PieceStatusInProduction, piece.Status)
	assert.Equal(t, entity.InspectionStatusRejected, piece.QCStatus[entity.InspectionTypePrePour])

	select {
	case card := <-env.cards:
		assert.Equal(t, "red", card.Header.Template)
	case <-time.After(5 * time.Second):
		t.Fatal("rejection card was not sent")
	}

	pour := listPieces(t, env, "/api/v1/qc/pieces/eligible?stage=pour")
	assert.Empty(t, pour)
}

func TestCompletePublishesEvent(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1"))
	client := &sse.Client{ID: "watcher", Events: make(chan sse.Event, 8)}
	env.hub.Register(client)

	_, code := complete(t, env, "/api/v1/qc/complete", map[string]interface{}{"pieceId": "P1", "type": "PRE_POUR", "approved": true})
	require.Equal(t, http.StatusOK, code)

	require.Len(t, client.Events, 1)
	ev := <-client.Events
	assert.Equal(t, "inspection_completed", ev.EventType)
	assert.Contains(t, ev.Data, `"piece_status":"READY_FOR_POUR"`)
}

func multipartFile(t *testing.T, fields map[string]string, name string, content []byte) *testutil.Multipart {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &testutil.Multipart{Body: &buf, ContentType: mw.FormDataContentType()}
}

func TestImportPiecesCSV(t *testing.T) {
	env := setup(t)

	csv := "构件编号,描述,图号,长度,宽度,高度,重量\nYWQ-01,预制外墙板,S-101,3000,200,2800,4200\nDHB-02,叠合板,S-102,abc,,,\nLT-03,预制楼梯,S-103,,,,\n"
	gbk, err := simplifiedchinese.GBK.NewEncoder().String(csv)
	require.NoError(t, err)

	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/pieces/import",
		multipartFile(t, nil, "pieces.csv", []byte(gbk)), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result service.ImportResult
	testutil.DecodeData(t, w, &result)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.PieceIDs, 2)

	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/pieces/"+result.PieceIDs[0], nil, "")
	var piece entity.Piece
	testutil.DecodeData(t, w, &piece)
	assert.Equal(t, "YWQ-01", piece.Mark)
	assert.Equal(t, "预制外墙板", piece.Description)
	assert.Equal(t, 4200.0, piece.Weight)
}

func TestAdminSetupFlow(t *testing.T) {
	env := setup(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/workspaces", map[string]string{"id": "W9", "code": "YARD-9", "name": "9号堆场"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/workspaces/W9/forms", map[string]string{"id": "F9", "name": "模台9"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/workspaces/nope/forms", map[string]string{"name": "x"}, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, id := range []string{"A", "B"} {
		w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/pieces", map[string]string{"id": id, "mark": "M-" + id}, token)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	schedule := map[string]interface{}{"workspaceId": "W9", "formId": "F9", "type": "POST_POUR", "pieceIds": []string{"B", "A", "B"}}
	w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/schedule", schedule, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	schedule["pieceIds"] = []string{"A", "ghost"}
	w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/schedule", schedule, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	pieces := listPieces(t, env, "/api/v1/qc/pieces?workspaceId=W9&formId=F9&type=POST_POUR")
	assert.Equal(t, []string{"B", "A"}, pieceIDs(pieces))
}

func TestDrawingUploadAndImage(t *testing.T) {
	env := setup(t)
	testutil.SeedPiece(t, env.db, &entity.Piece{ID: "P1"})

	png := []byte("\x89PNG\r\n\x1a\nfake")
	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/pieces/P1/pages",
		multipartFile(t, map[string]string{"title": "立面图", "width": "1200"}, "elevation.PNG", png), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var page entity.DrawingPage
	testutil.DecodeData(t, w, &page)
	assert.Equal(t, 1, page.PageNumber)
	assert.Equal(t, 1200, page.Width)
	assert.True(t, strings.HasSuffix(page.ObjectKey, ".png"))

	w = testutil.DoRequest(env.router, http.MethodPost, "/api/v1/qc/pieces/P1/pages", map[string]string{"title": "剖面", "image_url": "https://cdn/x.png"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var second entity.DrawingPage
	testutil.DecodeData(t, w, &second)
	assert.Equal(t, 2, second.PageNumber)

	w = testutil.DoRequest(env.router, http.MethodGet, page.ImageURL, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, png, w.Body.Bytes())

	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/pages/"+second.ID+"/image", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "externally hosted pages have no stored image")
}

func TestInspectionReport(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1"), testutil.Piece("P2"))
	_, code := complete(t, env, "/api/v1/qc/complete", map[string]interface{}{"pieceId": "P2", "type": "PRE_POUR", "approved": true})
	require.Equal(t, http.StatusOK, code)

	w := testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/reports/inspections?"+scopeQuery, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "QC_W1_F1_PRE_POUR.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	mark, _ := f.GetCellValue("质检", "B3")
	status, _ := f.GetCellValue("质检", "F3")
	assert.Equal(t, "P2", mark)
	assert.Equal(t, entity.InspectionStatusApproved, status)
	inspector, _ := f.GetCellValue("质检", "H3")
	assert.Equal(t, "inspector-001", inspector)
}

func TestRecommendation(t *testing.T) {
	env := setup(t)
	testutil.SeedScope(t, env.db, w1, testutil.Piece("P1", "pg1"))

	w := testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/pieces/P1/recommendation?type=PRE_POUR", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec service.Recommendation
	testutil.DecodeData(t, w, &rec)
	assert.Equal(t, service.SuggestApprove, rec.Suggestion)

	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/qc/pieces/P1/recommendation?type=POST_POUR", nil, "")
	testutil.DecodeData(t, w, &rec)
	assert.Equal(t, service.SuggestBlocked, rec.Suggestion)
}
