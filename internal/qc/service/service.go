package service

import (
	"context"
	"errors"

	"github.com/bitfantasy/precast/internal/config"
	"github.com/bitfantasy/precast/internal/qc/cache"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/bitfantasy/precast/internal/qc/sse"
	"github.com/bitfantasy/precast/internal/shared/feishu"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound           = repository.ErrNotFound
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyCompleted   = errors.New("inspection already completed")
	ErrGateNotPassed      = errors.New("pre-pour inspection not approved")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStorageUnavailable = errors.New("object storage not configured")
)

// Notifier 发送质检通知卡片
type Notifier interface {
	SendCard(ctx context.Context, chatID string, card feishu.InteractiveCard) error
}

// Services 服务集合
type Services struct {
	Schedule       *ScheduleService
	Piece          *PieceService
	Arrangement    *ArrangementService
	Point          *PointService
	Inspection     *InspectionService
	Drawing        *DrawingService
	Report         *ReportService
	Recommendation *RecommendationService
}

// NewServices 创建服务集合
// rdb 为 nil 时排序缓存退化为进程内缓存
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, hub *sse.Hub, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}

	var arrangementCache cache.ArrangementCache
	if rdb != nil {
		arrangementCache = cache.NewRedis(rdb, cfg.QC.ArrangementCacheTTL)
	} else {
		arrangementCache = cache.NewLocal(cfg.QC.ArrangementCacheTTL)
	}

	// 初始化MinIO客户端
	var store ObjectStore
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("minio init failed, drawing upload disabled", zap.Error(err))
		} else {
			store = NewMinIOStore(minioClient, cfg.MinIO.Bucket)
		}
	}

	schedule := NewScheduleService(repos.Schedule, repos.Piece, hub, logger)
	piece := NewPieceService(repos.Piece, schedule, logger)
	arrangement := NewArrangementService(repos.Arrangement, repos.Schedule, schedule, piece, arrangementCache, hub, logger)
	inspection := NewInspectionService(repos.Inspection, repos.Piece, repos.Point, hub, logger)

	// 初始化飞书通知
	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" && cfg.Feishu.QCChatID != "" {
		inspection.SetNotifier(feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret), cfg.Feishu.QCChatID, cfg.QC.NotifyApproved)
	}

	recommendation := NewRecommendationService(repos.Piece, repos.Point, RuleRecommender{})

	return &Services{
		Schedule:       schedule,
		Piece:          piece,
		Arrangement:    arrangement,
		Point:          NewPointService(repos.Point, repos.Piece, hub, logger),
		Inspection:     inspection,
		Drawing:        NewDrawingService(repos.Piece, store, logger),
		Report:         NewReportService(arrangement, repos.Point),
		Recommendation: recommendation,
	}
}

func newID() string {
	return uuid.New().String()[:32]
}
