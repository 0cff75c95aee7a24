package repository

import (
	"context"
	"educube_backend/internal/model"
	"educube_backend/internal/util"
	"errors"
	"strings"

	"gorm.io/gorm"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

func (r *EnrollmentRepository) Create(ctx context.Context, e *model.Enrollment) error {
	err := r.DB.WithContext(ctx).Create(e).Error
	if err != nil && isDuplicateKey(err) {
		return util.ErrDuplicateEnrollment
	}
	return err
}

func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Find(&list).Error
	return list, err
}

// SaveVersioned 以 version 做比较并交换，版本不匹配时返回 ErrConcurrentUpdate
func (r *EnrollmentRepository) SaveVersioned(ctx context.Context, e *model.Enrollment) error {
	expected := e.Version
	e.Version = expected + 1

	res := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ? AND version = ?", e.ID, expected).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(e)
	if res.Error != nil {
		e.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		e.Version = expected
		return util.ErrConcurrentUpdate
	}
	return nil
}

func (r *EnrollmentRepository) Stats(ctx context.Context, courseID string) (*model.CourseStats, error) {
	var row struct {
		Enrolled        int64
		Completed       int64
		AverageProgress float64
	}
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Select("COUNT(*) AS enrolled, "+
			"COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0) AS completed, "+
			"COALESCE(AVG(progress_percent), 0) AS average_progress").
		Where("course_id = ?", courseID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &model.CourseStats{
		CourseID:        courseID,
		Enrolled:        row.Enrolled,
		Completed:       row.Completed,
		AverageProgress: row.AverageProgress,
	}, nil
}
