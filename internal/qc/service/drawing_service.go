package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qc/repository"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ObjectStore 图纸图片对象存储
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// MinIOStore 基于 MinIO 的对象存储
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore 创建 MinIO 存储
func NewMinIOStore(client *minio.Client, bucket string) *MinIOStore {
	return &MinIOStore{client: client, bucket: bucket}
}

// EnsureBucket 确保桶存在
func (m *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

func (m *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return object, nil
}

// DrawingService 构件图纸页服务
type DrawingService struct {
	pieceRepo *repository.PieceRepository
	store     ObjectStore
	logger    *zap.Logger
}

// NewDrawingService 创建图纸服务，store 可为 nil（仅登记外部图片地址）
func NewDrawingService(pieceRepo *repository.PieceRepository, store ObjectStore, logger *zap.Logger) *DrawingService {
	return &DrawingService{pieceRepo: pieceRepo, store: store, logger: logger}
}

// Store 返回对象存储，未配置时为 nil
func (s *DrawingService) Store() ObjectStore {
	return s.store
}

// AddPageRequest 登记图纸页请求
type AddPageRequest struct {
	Title    string `json:"title" form:"title"`
	ImageURL string `json:"image_url" form:"image_url"`
	Width    int    `json:"width" form:"width"`
	Height   int    `json:"height" form:"height"`
}

// PageUpload 上传的图纸图片
type PageUpload struct {
	Reader      io.Reader
	FileName    string
	Size        int64
	ContentType string
}

// AddPage 为构件追加一页图纸；upload 为 nil 时只登记 image_url
func (s *DrawingService) AddPage(ctx context.Context, pieceID string, req *AddPageRequest, upload *PageUpload) (*entity.DrawingPage, error) {
	if _, err := s.pieceRepo.FindByID(ctx, pieceID); err != nil {
		return nil, fmt.Errorf("piece %s: %w", pieceID, err)
	}
	if upload == nil && req.ImageURL == "" {
		return nil, fmt.Errorf("%w: file or image_url is required", ErrInvalidInput)
	}

	pageNumber, err := s.pieceRepo.NextPageNumber(ctx, pieceID)
	if err != nil {
		return nil, fmt.Errorf("next page number: %w", err)
	}

	page := &entity.DrawingPage{
		ID:         newID(),
		PieceID:    pieceID,
		PageNumber: pageNumber,
		Title:      req.Title,
		ImageURL:   req.ImageURL,
		Width:      req.Width,
		Height:     req.Height,
	}

	if upload != nil {
		if s.store == nil {
			return nil, ErrStorageUnavailable
		}
		// 生成存储路径
		page.ObjectKey = fmt.Sprintf("drawings/%s/%s%s", pieceID, page.ID[:8], strings.ToLower(filepath.Ext(upload.FileName)))
		if err := s.store.Put(ctx, page.ObjectKey, upload.Reader, upload.Size, upload.ContentType); err != nil {
			return nil, fmt.Errorf("upload drawing: %w", err)
		}
		page.ImageURL = "/api/v1/qc/pages/" + page.ID + "/image"
	}

	if err := s.pieceRepo.CreatePage(ctx, page); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	s.logger.Info("drawing page added",
		zap.String("piece_id", pieceID), zap.Int("page_number", pageNumber), zap.String("object_key", page.ObjectKey))
	return page, nil
}

// OpenImage 打开图纸页图片
func (s *DrawingService) OpenImage(ctx context.Context, pageID string) (io.ReadCloser, *entity.DrawingPage, error) {
	page, err := s.pieceRepo.FindPage(ctx, pageID)
	if err != nil {
		return nil, nil, fmt.Errorf("page %s: %w", pageID, err)
	}
	if page.ObjectKey == "" {
		return nil, page, fmt.Errorf("page %s has no stored image: %w", pageID, ErrNotFound)
	}
	if s.store == nil {
		return nil, page, ErrStorageUnavailable
	}
	rc, err := s.store.Get(ctx, page.ObjectKey)
	if err != nil {
		return nil, page, fmt.Errorf("get object: %w", err)
	}
	return rc, page, nil
}
