package service

import (
	"context"
	"educube_backend/internal/config"
	"educube_backend/internal/util"
	"educube_backend/pkg/logger"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider 定义通用存储接口
type StorageProvider interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	GetURL(key string) string
	Name() string
}

// LocalStorageProvider 本地磁盘存储，文件通过 /uploads 静态路由访问
type LocalStorageProvider struct {
	Root string
}

func NewLocalStorageProvider(root string) *LocalStorageProvider {
	return &LocalStorageProvider{Root: root}
}

// Path 返回 key 在磁盘上的位置，key 中的 .. 不会越出根目录
func (p *LocalStorageProvider) Path(key string) string {
	return filepath.Join(p.Root, filepath.Clean("/"+key))
}

func (p *LocalStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := p.Path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(out, reader)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// 写入失败时不留下残缺文件
		if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Log.Warn("remove partial upload failed", zap.String("path", dst), zap.Error(rmErr))
		}
		return "", err
	}

	return p.GetURL(key), nil
}

func (p *LocalStorageProvider) Delete(ctx context.Context, key string) error {
	err := os.Remove(p.Path(key))
	if os.IsNotExist(err) {
		return util.ErrResourceNotFound
	}
	return err
}

func (p *LocalStorageProvider) GetURL(key string) string {
	return "/uploads/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+key)), "/")
}

func (p *LocalStorageProvider) Name() string {
	return util.StorageLocal
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, key string) error {
	return p.Client.RemoveObject(ctx, p.Config.MinioBucket, key, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) GetURL(key string) string {
	base := strings.TrimRight(p.Config.MinioPublic, "/")
	return base + "/" + p.Config.MinioBucket + "/" + key
}

func (p *MinioStorageProvider) Name() string {
	return util.StorageMinio
}

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}

	err = bucket.PutObject(key, reader,
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.CacheControl("public, max-age=31536000, immutable"),
	)
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *OSSStorageProvider) Delete(ctx context.Context, key string) error {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	err = bucket.DeleteObject(key, oss.WithContext(ctx))
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) && svcErr.StatusCode == 404 {
		return util.ErrResourceNotFound
	}
	return err
}

func (p *OSSStorageProvider) GetURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Config.OSSBucket, p.Config.OSSEndpoint, key)
}

func (p *OSSStorageProvider) Name() string {
	return util.StorageOSS
}

// StorageService 存储服务：本地磁盘存放文档和视频，
// Media 托管资源图片（MinIO），Images 托管课程封面（OSS）
type StorageService struct {
	Local  *LocalStorageProvider
	Media  StorageProvider
	Images StorageProvider
}

func NewStorageService(cfg *config.Config) *StorageService {
	local := NewLocalStorageProvider(cfg.Storage.LocalPath)
	s := &StorageService{Local: local, Media: local, Images: local}

	if cfg.Storage.MinioEndpoint != "" {
		p, err := NewMinioStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Warn("minio init failed, falling back to local storage", zap.Error(err))
		} else {
			s.Media = p
		}
	}

	if cfg.Storage.OSSEndpoint != "" && cfg.Storage.OSSAccessKey != "" {
		p, err := NewOSSStorageProvider(&cfg.Storage)
		if err != nil {
			logger.Log.Warn("oss init failed, falling back to local storage", zap.Error(err))
		} else {
			s.Images = p
		}
	}

	logger.Log.Info("storage providers ready",
		zap.String("media", s.Media.Name()),
		zap.String("images", s.Images.Name()))
	return s
}
