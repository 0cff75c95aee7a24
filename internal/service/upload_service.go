package service

import (
	"bytes"
	"context"
	"educube_backend/internal/util"
	"educube_backend/pkg/logger"
	"educube_backend/pkg/monitoring"
	"educube_backend/pkg/tracing"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StorageTarget 上传文件的落地位置
type StorageTarget int

const (
	StorageLocalDisk StorageTarget = iota + 1
	StorageHostedMedia
)

func (t StorageTarget) String() string {
	switch t {
	case StorageLocalDisk:
		return "local"
	case StorageHostedMedia:
		return "hosted"
	default:
		return "unknown"
	}
}

// ClassifyUpload 图片交给托管媒体服务，文档和视频落本地磁盘，其余类型拒绝
func ClassifyUpload(mimeType string) (StorageTarget, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}

	if util.IsImage(mt) {
		return StorageHostedMedia, nil
	}
	for _, allowed := range util.LocalDocumentMimeTypes {
		if mt == allowed {
			return StorageLocalDisk, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", util.ErrInvalidFileType, mimeType)
}

// UploadResult 上传网关的返回值，Locator 用于之后的删除
type UploadResult struct {
	URL             string  `json:"url"`
	Locator         string  `json:"locator"`
	Storage         string  `json:"storage"`
	Provider        string  `json:"provider"`
	MimeType        string  `json:"mimeType"`
	Size            int64   `json:"size"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

type UploadService struct {
	Storage *StorageService
}

func NewUploadService(storage *StorageService) *UploadService {
	return &UploadService{Storage: storage}
}

func upstreamError(err error) error {
	if errors.Is(err, util.ErrUpstreamStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", util.ErrUpstreamStorage, err)
}

// UploadResource 按 MIME 类型路由上传的课程资源文件
func (s *UploadService) UploadResource(ctx context.Context, filename, declaredMime string, size int64, reader io.Reader) (*UploadResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "upload.resource")
	defer span.End()

	mimeType, reader, err := util.DetectMimeType(declaredMime, reader)
	if err != nil {
		return nil, err
	}
	target, err := ClassifyUpload(mimeType)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("upload.mime", mimeType),
		attribute.String("upload.target", target.String()),
	)

	result := &UploadResult{
		Storage:  target.String(),
		MimeType: mimeType,
		Size:     size,
	}

	switch target {
	case StorageHostedMedia:
		key := util.ResourceMediaFolder + "/" + util.GenerateFilename(filename)
		url, err := s.Storage.Media.Upload(ctx, key, reader, size, mimeType)
		if err != nil {
			logger.Log.Error("hosted media upload failed", zap.String("key", key), zap.Error(err))
			return nil, upstreamError(err)
		}
		result.URL = url
		result.Locator = key
		result.Provider = s.Storage.Media.Name()

	case StorageLocalDisk:
		name := util.GenerateFilename(filename)
		url, err := s.Storage.Local.Upload(ctx, name, reader, size, mimeType)
		if err != nil {
			logger.Log.Error("local upload failed", zap.String("file", name), zap.Error(err))
			return nil, upstreamError(err)
		}
		result.URL = url
		result.Locator = name
		result.Provider = s.Storage.Local.Name()

		if util.IsVideo(mimeType) {
			// 时长探测失败不影响上传
			if info, err := util.GetVideoInfo(s.Storage.Local.Path(name)); err == nil {
				result.DurationSeconds = info.Duration
			} else {
				logger.Log.Debug("probe video failed", zap.String("file", name), zap.Error(err))
			}
		}
	}

	monitoring.UploadsTotal.WithLabelValues(result.Provider).Inc()
	logger.Log.Info("resource uploaded",
		zap.String("provider", result.Provider),
		zap.String("locator", result.Locator),
		zap.String("mime", mimeType))
	return result, nil
}

// UploadThumbnail 课程封面转为 WebP 后上传到图片托管服务，无法解码的图片按原格式上传
func (s *UploadService) UploadThumbnail(ctx context.Context, filename, declaredMime string, reader io.Reader) (*UploadResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "upload.thumbnail")
	defer span.End()

	mimeType, reader, err := util.DetectMimeType(declaredMime, reader)
	if err != nil {
		return nil, err
	}
	if !util.IsImage(mimeType) {
		return nil, fmt.Errorf("%w: thumbnail must be an image, got %s", util.ErrInvalidFileType, mimeType)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	name := util.GenerateFilename(filename)
	if encoded, err := encodeThumbnail(data, mimeType); err == nil {
		data = encoded
		mimeType = "image/webp"
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".webp"
	} else {
		logger.Log.Debug("thumbnail not re-encoded", zap.String("mime", mimeType), zap.Error(err))
	}

	key := util.ThumbnailMediaFolder + "/" + name
	url, err := s.Storage.Images.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType)
	if err != nil {
		logger.Log.Error("thumbnail upload failed", zap.String("key", key), zap.Error(err))
		return nil, upstreamError(err)
	}

	monitoring.UploadsTotal.WithLabelValues(s.Storage.Images.Name()).Inc()
	return &UploadResult{
		URL:      url,
		Locator:  key,
		Storage:  StorageHostedMedia.String(),
		Provider: s.Storage.Images.Name(),
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

// hostedKey 从定位符（或完整 URL）中截取托管目录之后的对象键
func hostedKey(locator, folder string) (string, bool) {
	idx := strings.Index(locator, folder+"/")
	if idx < 0 {
		return "", false
	}
	key := locator[idx:]
	if q := strings.IndexAny(key, "?#"); q >= 0 {
		key = key[:q]
	}
	return key, true
}

// Delete 按定位符删除文件：带托管目录标记的交给对应托管服务，否则视为本地文件名
func (s *UploadService) Delete(ctx context.Context, locator string) error {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return util.InvalidArgument("locator is required")
	}

	if key, ok := hostedKey(locator, util.ResourceMediaFolder); ok {
		return s.deleteHosted(ctx, s.Storage.Media, key)
	}
	if key, ok := hostedKey(locator, util.ThumbnailMediaFolder); ok {
		return s.deleteHosted(ctx, s.Storage.Images, key)
	}

	name := filepath.Base(filepath.FromSlash(locator))
	if name == "." || name == string(filepath.Separator) {
		return util.InvalidArgument("invalid locator %q", locator)
	}
	if err := s.Storage.Local.Delete(ctx, name); err != nil {
		return err
	}
	logger.Log.Info("local file deleted", zap.String("file", name))
	return nil
}

func (s *UploadService) deleteHosted(ctx context.Context, provider StorageProvider, key string) error {
	if err := provider.Delete(ctx, key); err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return err
		}
		logger.Log.Error("hosted media delete failed",
			zap.String("provider", provider.Name()),
			zap.String("key", key),
			zap.Error(err))
		return upstreamError(err)
	}
	logger.Log.Info("hosted media deleted", zap.String("provider", provider.Name()), zap.String("key", key))
	return nil
}
