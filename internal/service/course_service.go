package service

import (
	"context"
	"educube_backend/internal/model"
	"educube_backend/internal/repository"
	"educube_backend/internal/util"
	"educube_backend/pkg/logger"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// CourseRequest 创建/更新课程的请求体，更新时整体替换模块树，已提供的 ID 保持不变
type CourseRequest struct {
	Title       string            `json:"title" binding:"required,max=255"`
	Description string            `json:"description"`
	Category    string            `json:"category" binding:"max=100"`
	Level       model.CourseLevel `json:"level" binding:"omitempty,oneof=beginner intermediate advanced"`
	PublishAt   *time.Time        `json:"publishAt"`
	Modules     []model.Module    `json:"modules" binding:"dive"`
	Resources   []model.Resource  `json:"resources" binding:"dive"`
}

type CourseService struct {
	Courses CourseStore
	Uploads *UploadService
	Now     func() time.Time
}

func NewCourseService(courses CourseStore, uploads *UploadService) *CourseService {
	return &CourseService{Courses: courses, Uploads: uploads, Now: time.Now}
}

// validateCourseTree 模块、课时、资源 ID 在整门课程内必须唯一
func validateCourseTree(c *model.Course) error {
	seen := make(map[string]struct{})
	check := func(kind, id string) error {
		if _, dup := seen[id]; dup {
			return util.InvalidArgument("duplicate %s id %s", kind, id)
		}
		seen[id] = struct{}{}
		return nil
	}

	for _, m := range c.Modules {
		if err := check("module", m.ID); err != nil {
			return err
		}
		for _, l := range m.Lessons {
			if err := check("lesson", l.ID); err != nil {
				return err
			}
			for _, r := range l.Resources {
				if err := check("resource", r.ID); err != nil {
					return err
				}
			}
		}
	}
	for _, r := range c.Resources {
		if err := check("resource", r.ID); err != nil {
			return err
		}
	}
	return nil
}

func (req *CourseRequest) applyTo(c *model.Course) {
	c.Title = req.Title
	c.Description = req.Description
	c.Category = req.Category
	c.Level = req.Level
	c.PublishAt = req.PublishAt
	c.Modules = datatypes.JSONSlice[model.Module](req.Modules)
	c.Resources = datatypes.JSONSlice[model.Resource](req.Resources)
	if c.Modules == nil {
		c.Modules = datatypes.JSONSlice[model.Module]{}
	}
	if c.Resources == nil {
		c.Resources = datatypes.JSONSlice[model.Resource]{}
	}
	c.AssignIDs()
}

func (s *CourseService) Create(ctx context.Context, userID string, role model.UserRole, req *CourseRequest) (*model.Course, error) {
	if !role.CanAuthor() {
		return nil, util.ErrPermissionDenied
	}

	course := &model.Course{InstructorID: userID}
	req.applyTo(course)
	if err := validateCourseTree(course); err != nil {
		return nil, err
	}

	if err := s.Courses.Create(ctx, course); err != nil {
		return nil, err
	}
	logger.Log.Info("course created",
		zap.String("courseId", course.ID),
		zap.String("instructorId", userID),
		zap.Int("lessons", course.LessonCount()))
	return course, nil
}

// Get 未发布课程只对作者和管理员可见
func (s *CourseService) Get(ctx context.Context, userID string, role model.UserRole, id string) (*model.Course, error) {
	course, err := s.Courses.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !course.Published && (userID == "" || !canManageCourse(course, userID, role)) {
		return nil, util.ErrCourseNotFound
	}
	return course, nil
}

func (s *CourseService) List(ctx context.Context, f repository.CourseFilter) ([]model.Course, int64, error) {
	f.OnlyPublished = true
	return s.Courses.List(ctx, f)
}

func (s *CourseService) ListMine(ctx context.Context, userID string, role model.UserRole, page, limit int) ([]model.Course, int64, error) {
	if !role.CanAuthor() {
		return nil, 0, util.ErrPermissionDenied
	}
	return s.Courses.List(ctx, repository.CourseFilter{InstructorID: userID, Page: page, Limit: limit})
}

func (s *CourseService) loadManaged(ctx context.Context, userID string, role model.UserRole, id string) (*model.Course, error) {
	course, err := s.Courses.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageCourse(course, userID, role) {
		return nil, util.ErrPermissionDenied
	}
	return course, nil
}

func (s *CourseService) Update(ctx context.Context, userID string, role model.UserRole, id string, req *CourseRequest) (*model.Course, error) {
	course, err := s.loadManaged(ctx, userID, role, id)
	if err != nil {
		return nil, err
	}

	req.applyTo(course)
	if err := validateCourseTree(course); err != nil {
		return nil, err
	}
	if err := s.Courses.Update(ctx, course); err != nil {
		return nil, err
	}
	logger.Log.Info("course updated", zap.String("courseId", id), zap.String("by", userID))
	return course, nil
}

func (s *CourseService) Delete(ctx context.Context, userID string, role model.UserRole, id string) error {
	course, err := s.loadManaged(ctx, userID, role, id)
	if err != nil {
		return err
	}
	if err := s.Courses.Delete(ctx, id); err != nil {
		return err
	}
	s.removeThumbnail(ctx, course.ThumbnailID)
	logger.Log.Info("course deleted", zap.String("courseId", id), zap.String("by", userID))
	return nil
}

func (s *CourseService) Publish(ctx context.Context, userID string, role model.UserRole, id string) (*model.Course, error) {
	course, err := s.loadManaged(ctx, userID, role, id)
	if err != nil {
		return nil, err
	}
	if course.Published {
		return course, nil
	}

	course.Published = true
	if err := s.Courses.Update(ctx, course); err != nil {
		return nil, err
	}
	logger.Log.Info("course published", zap.String("courseId", id))
	return course, nil
}

// PublishDue 定时任务入口，发布所有 publishAt 已到期的课程
func (s *CourseService) PublishDue(ctx context.Context) (int, error) {
	ids, err := s.Courses.PublishDue(ctx, s.Now())
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		logger.Log.Info("scheduled courses published", zap.Strings("courseIds", ids))
	}
	return len(ids), nil
}

// UploadThumbnail 上传封面并替换旧封面
func (s *CourseService) UploadThumbnail(ctx context.Context, userID string, role model.UserRole, id, filename, mimeType string, reader io.Reader) (*model.Course, error) {
	course, err := s.loadManaged(ctx, userID, role, id)
	if err != nil {
		return nil, err
	}

	result, err := s.Uploads.UploadThumbnail(ctx, filename, mimeType, reader)
	if err != nil {
		return nil, err
	}

	previous := course.ThumbnailID
	course.Thumbnail = result.URL
	course.ThumbnailID = result.Locator
	if err := s.Courses.Update(ctx, course); err != nil {
		s.removeThumbnail(ctx, result.Locator)
		return nil, err
	}
	s.removeThumbnail(ctx, previous)
	return course, nil
}

func (s *CourseService) removeThumbnail(ctx context.Context, locator string) {
	if locator == "" || s.Uploads == nil {
		return
	}
	if err := s.Uploads.Delete(ctx, locator); err != nil && !errors.Is(err, util.ErrNotFound) {
		logger.Log.Warn("remove thumbnail failed", zap.String("locator", locator), zap.Error(err))
	}
}
