package repository

import (
	"context"
	"educube_backend/internal/model"
	"educube_backend/internal/util"
	"educube_backend/pkg/logger"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const courseCacheTTL = 10 * time.Minute

type CourseRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewCourseRepository(db *gorm.DB, rdb *redis.Client) *CourseRepository {
	return &CourseRepository{DB: db, Redis: rdb}
}

// CourseFilter 课程列表查询条件
type CourseFilter struct {
	Category      string
	Level         string
	Search        string
	InstructorID  string
	OnlyPublished bool
	Page          int
	Limit         int
}

func courseCacheKey(id string) string {
	return fmt.Sprintf("course:%s", id)
}

func (r *CourseRepository) Create(ctx context.Context, course *model.Course) error {
	return r.DB.WithContext(ctx).Create(course).Error
}

func (r *CourseRepository) FindByID(ctx context.Context, id string) (*model.Course, error) {
	if r.Redis != nil {
		if cached, err := r.Redis.Get(ctx, courseCacheKey(id)).Bytes(); err == nil {
			var course model.Course
			if err := json.Unmarshal(cached, &course); err == nil {
				return &course, nil
			}
		}
	}

	var course model.Course
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.Redis != nil {
		if data, err := json.Marshal(&course); err == nil {
			if err := r.Redis.Set(ctx, courseCacheKey(id), data, courseCacheTTL).Err(); err != nil {
				logger.Log.Warn("cache course failed", zap.String("courseId", id), zap.Error(err))
			}
		}
	}
	return &course, nil
}

func (r *CourseRepository) List(ctx context.Context, f CourseFilter) ([]model.Course, int64, error) {
	db := r.DB.WithContext(ctx).Model(&model.Course{})
	if f.OnlyPublished {
		db = db.Where("published = ?", true)
	}
	if f.InstructorID != "" {
		db = db.Where("instructor_id = ?", f.InstructorID)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	if f.Level != "" {
		db = db.Where("level = ?", f.Level)
	}
	if f.Search != "" {
		term := "%" + f.Search + "%"
		db = db.Where("(title LIKE ? OR description LIKE ?)", term, term)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit > 0 {
		db = db.Limit(f.Limit).Offset((f.Page - 1) * f.Limit)
	}

	var courses []model.Course
	err := db.Order("created_at DESC").Find(&courses).Error
	return courses, total, err
}

func (r *CourseRepository) Update(ctx context.Context, course *model.Course) error {
	if err := r.DB.WithContext(ctx).Save(course).Error; err != nil {
		return err
	}
	r.invalidate(ctx, course.ID)
	return nil
}

func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&model.Course{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrCourseNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

// PublishDue 发布所有到达预定时间的课程
func (r *CourseRepository) PublishDue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.Course{}).
		Where("published = ? AND publish_at IS NOT NULL AND publish_at <= ?", false, now).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	err = r.DB.WithContext(ctx).Model(&model.Course{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"published": true}).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		r.invalidate(ctx, id)
	}
	return ids, nil
}

func (r *CourseRepository) invalidate(ctx context.Context, id string) {
	if r.Redis == nil {
		return
	}
	if err := r.Redis.Del(ctx, courseCacheKey(id)).Err(); err != nil {
		logger.Log.Warn("invalidate course cache failed", zap.String("courseId", id), zap.Error(err))
	}
}
