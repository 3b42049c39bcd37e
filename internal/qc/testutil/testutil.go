package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitfantasy/precast/internal/middleware"
	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "precast-qc-test-secret"

var dbSeq atomic.Int64

// Models QC 数据表
func Models() []interface{} {
	return entity.AllModels()
}

// SetupTestDB creates an isolated in-memory SQLite database per test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:qc_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// 内存库在最后一个连接关闭时销毁
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with optional JWT auth for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret, false))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"roles": roles,
		"iss":   "precast-qc",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a default inspector
func DefaultTestToken() string {
	return GenerateTestToken("inspector-001", "Test Inspector", []string{"qc_admin"})
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody io.Reader = bytes.NewBuffer(nil)
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case *Multipart:
		reqBody = b.Body
		contentType = b.ContentType
	default:
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// Multipart is a prepared multipart body for DoRequest
type Multipart struct {
	Body        *bytes.Buffer
	ContentType string
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// DecodeData decodes the "data" field of the response envelope into out
func DecodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, w.Body.String())
	}
	if env.Code != 0 {
		t.Fatalf("unexpected code %d: %s", env.Code, w.Body.String())
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v (data=%s)", err, env.Data)
	}
}

// SeedScope creates a workspace, a form and schedules the given pieces under
// the scope in order. Pieces get one drawing page per entry in pages.
func SeedScope(t *testing.T, db *gorm.DB, scope entity.Scope, pieces ...entity.Piece) {
	t.Helper()
	if err := db.Where("id = ?", scope.WorkspaceID).
		FirstOrCreate(&entity.Workspace{ID: scope.WorkspaceID, Code: scope.WorkspaceID, Name: scope.WorkspaceID}).Error; err != nil {
		t.Fatalf("Failed to seed workspace: %v", err)
	}
	if err := db.Where("id = ?", scope.FormID).
		FirstOrCreate(&entity.Form{ID: scope.FormID, WorkspaceID: scope.WorkspaceID, Name: scope.FormID}).Error; err != nil {
		t.Fatalf("Failed to seed form: %v", err)
	}
	for i := range pieces {
		SeedPiece(t, db, &pieces[i])
		entry := entity.ScheduleEntry{
			ID:             fmt.Sprintf("%s-%s-%d", scope.Key(), pieces[i].ID, i),
			WorkspaceID:    scope.WorkspaceID,
			FormID:         scope.FormID,
			InspectionType: scope.InspectionType,
			PieceID:        pieces[i].ID,
			Sequence:       i + 1,
		}
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("Failed to seed schedule: %v", err)
		}
	}
}

// SeedPiece creates the piece and its drawing pages if it does not exist yet
func SeedPiece(t *testing.T, db *gorm.DB, piece *entity.Piece) {
	t.Helper()
	if piece.Mark == "" {
		piece.Mark = piece.ID
	}
	if piece.Status == "" {
		piece.Status = entity.PieceStatusInProduction
	}
	var count int64
	db.Model(&entity.Piece{}).Where("id = ?", piece.ID).Count(&count)
	if count > 0 {
		return
	}
	pages := piece.DrawingPages
	if err := db.Omit("DrawingPages", "Inspections").Create(piece).Error; err != nil {
		t.Fatalf("Failed to seed piece: %v", err)
	}
	for i := range pages {
		pages[i].PieceID = piece.ID
		if pages[i].PageNumber == 0 {
			pages[i].PageNumber = i + 1
		}
		if err := db.Create(&pages[i]).Error; err != nil {
			t.Fatalf("Failed to seed page: %v", err)
		}
	}
}

// Piece builds a piece with one page per page id
func Piece(id string, pageIDs ...string) entity.Piece {
	p := entity.Piece{ID: id, Mark: id}
	for _, pid := range pageIDs {
		p.DrawingPages = append(p.DrawingPages, entity.DrawingPage{ID: pid, Title: pid})
	}
	return p
}
