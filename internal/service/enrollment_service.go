package service

import (
	"context"
	"educube_backend/internal/model"
	"educube_backend/internal/repository"
	"educube_backend/internal/util"
	"educube_backend/pkg/logger"
	"educube_backend/pkg/monitoring"
	"educube_backend/pkg/tracing"
	"errors"
	"fmt"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	maxUpdateAttempts = 3
	lockWaitTimeout   = 5 * time.Second
)

// CourseStore 课程持久化，由 repository.CourseRepository 实现
type CourseStore interface {
	Create(ctx context.Context, course *model.Course) error
	FindByID(ctx context.Context, id string) (*model.Course, error)
	List(ctx context.Context, f repository.CourseFilter) ([]model.Course, int64, error)
	Update(ctx context.Context, course *model.Course) error
	Delete(ctx context.Context, id string) error
	PublishDue(ctx context.Context, now time.Time) ([]string, error)
}

// EnrollmentStore 选课记录持久化，由 repository.EnrollmentRepository 实现
type EnrollmentStore interface {
	Create(ctx context.Context, e *model.Enrollment) error
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]model.Enrollment, error)
	SaveVersioned(ctx context.Context, e *model.Enrollment) error
	Stats(ctx context.Context, courseID string) (*model.CourseStats, error)
}

type EnrollmentService struct {
	Enrollments EnrollmentStore
	Courses     CourseStore
	Locker      KeyLocker
	Now         func() time.Time
}

func NewEnrollmentService(enrollments EnrollmentStore, courses CourseStore, locker KeyLocker) *EnrollmentService {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &EnrollmentService{
		Enrollments: enrollments,
		Courses:     courses,
		Locker:      locker,
		Now:         time.Now,
	}
}

func canManageCourse(course *model.Course, userID string, role model.UserRole) bool {
	return role == model.Admin || course.InstructorID == userID
}

// Enroll 为用户创建选课记录，未发布课程只对作者和管理员可见
func (s *EnrollmentService) Enroll(ctx context.Context, userID string, role model.UserRole, courseID string) (*model.Enrollment, error) {
	ctx, span := tracing.Tracer.Start(ctx, "enrollment.enroll")
	defer span.End()
	span.SetAttributes(attribute.String("course.id", courseID))

	course, err := s.Courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.Published && !canManageCourse(course, userID, role) {
		return nil, util.ErrCourseNotFound
	}

	_, err = s.Enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err == nil {
		return nil, util.ErrDuplicateEnrollment
	}
	if !errors.Is(err, util.ErrEnrollmentNotFound) {
		return nil, err
	}

	e := newEnrollment(userID, course, s.Now())
	if err := s.Enrollments.Create(ctx, e); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	monitoring.EnrollmentsTotal.Inc()
	logger.Log.Info("user enrolled",
		zap.String("userId", userID),
		zap.String("courseId", courseID),
		zap.String("enrollmentId", e.ID))
	return e, nil
}

// GetStatus 返回与课程当前结构对齐后的进度视图
// 对齐只影响百分比和时长时不落库；课程结构变化导致完成状态改变时保存一次，
// 使完成时间固定下来并对统计可见
func (s *EnrollmentService) GetStatus(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	e, err := s.Enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	course, err := s.Courses.FindByID(ctx, courseID)
	switch {
	case err == nil:
	case errors.Is(err, util.ErrCourseNotFound):
		// 课程已删除，返回历史快照
		return e, nil
	default:
		return nil, err
	}

	before := completionState(e)
	lastAccessed := e.LastAccessedAt
	reconcileEnrollment(e, course)
	recalculate(e, s.Now())
	e.LastAccessedAt = lastAccessed
	if maps.Equal(before, completionState(e)) {
		return e, nil
	}

	wasCompleted := false
	synced, err := s.mutate(ctx, "reconcile", userID, courseID, func(e *model.Enrollment, course *model.Course, now time.Time) error {
		wasCompleted = e.Completed
		reconcileEnrollment(e, course)
		recalculate(e, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !wasCompleted && synced.Completed {
		monitoring.CoursesCompleted.Inc()
		logger.Log.Info("course completed after structure change",
			zap.String("userId", userID),
			zap.String("courseId", courseID))
	}
	return synced, nil
}

// completionState 已完成的模块集合，键 "" 表示整条记录
func completionState(e *model.Enrollment) map[string]bool {
	state := make(map[string]bool, len(e.Modules)+1)
	if e.Completed {
		state[""] = true
	}
	for _, m := range e.Modules {
		if m.Completed {
			state[m.ModuleID] = true
		}
	}
	return state
}

func (s *EnrollmentService) ListMine(ctx context.Context, userID string) ([]model.Enrollment, error) {
	list, err := s.Enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Enrollment{}
	}
	return list, nil
}

// UpdateLessonProgress 记录课时学习时长与完成状态
func (s *EnrollmentService) UpdateLessonProgress(ctx context.Context, userID, courseID string, in LessonProgressInput) (*model.Enrollment, error) {
	e, err := s.mutate(ctx, "lesson_progress", userID, courseID, func(e *model.Enrollment, course *model.Course, now time.Time) error {
		return applyLessonProgress(e, course, in, now)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Debug("lesson progress updated",
		zap.String("userId", userID),
		zap.String("courseId", courseID),
		zap.String("lessonId", in.LessonID),
		zap.Float64("progress", e.ProgressPercent))
	return e, nil
}

// CompleteResource 标记资源完成，重复完成只累加学习时长
func (s *EnrollmentService) CompleteResource(ctx context.Context, userID, courseID string, in ResourceCompletionInput) (*model.Enrollment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	newly := false
	e, err := s.mutate(ctx, "resource_complete", userID, courseID, func(e *model.Enrollment, course *model.Course, now time.Time) error {
		var err error
		newly, err = applyResourceCompletion(e, course, in, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Debug("resource completed",
		zap.String("userId", userID),
		zap.String("courseId", courseID),
		zap.String("resourceId", in.ResourceID),
		zap.Bool("firstCompletion", newly))
	return e, nil
}

// CompleteCourse 全部课时与资源完成后将课程标记为已完成
func (s *EnrollmentService) CompleteCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	alreadyCompleted := false
	e, err := s.mutate(ctx, "course_complete", userID, courseID, func(e *model.Enrollment, course *model.Course, now time.Time) error {
		alreadyCompleted = e.Completed
		return applyCourseCompletion(e, course, now)
	})
	if err != nil {
		return nil, err
	}

	if !alreadyCompleted {
		monitoring.CoursesCompleted.Inc()
		logger.Log.Info("course completed",
			zap.String("userId", userID),
			zap.String("courseId", courseID))
	}
	return e, nil
}

// CourseStats 课程选课统计，仅课程作者和管理员可查看
func (s *EnrollmentService) CourseStats(ctx context.Context, userID string, role model.UserRole, courseID string) (*model.CourseStats, error) {
	course, err := s.Courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !canManageCourse(course, userID, role) {
		return nil, util.ErrPermissionDenied
	}
	return s.Enrollments.Stats(ctx, courseID)
}

type mutation func(e *model.Enrollment, course *model.Course, now time.Time) error

// mutate 在 (用户, 课程) 锁内执行读-改-写，版本冲突时重新读取并重放
func (s *EnrollmentService) mutate(ctx context.Context, op, userID, courseID string, fn mutation) (*model.Enrollment, error) {
	ctx, span := tracing.Tracer.Start(ctx, "enrollment."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("course.id", courseID),
	)

	e, err := s.mutateLocked(ctx, op, userID, courseID, fn)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	monitoring.ProgressUpdates.WithLabelValues(op, outcome).Inc()
	return e, err
}

func (s *EnrollmentService) mutateLocked(ctx context.Context, op, userID, courseID string, fn mutation) (*model.Enrollment, error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockWaitTimeout)
	defer cancel()
	unlock, err := s.Locker.Lock(lockCtx, userID+":"+courseID)
	if err != nil {
		return nil, fmt.Errorf("acquire enrollment lock: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		e, err := s.Enrollments.FindByUserAndCourse(ctx, userID, courseID)
		if err != nil {
			return nil, err
		}
		course, err := s.Courses.FindByID(ctx, courseID)
		if err != nil {
			return nil, err
		}

		if err := fn(e, course, s.Now()); err != nil {
			return nil, err
		}

		err = s.Enrollments.SaveVersioned(ctx, e)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, util.ErrConcurrentUpdate) {
			return nil, err
		}

		monitoring.VersionConflicts.Inc()
		if attempt >= maxUpdateAttempts {
			return nil, err
		}
		logger.Log.Warn("enrollment version conflict, retrying",
			zap.String("op", op),
			zap.String("enrollmentId", e.ID),
			zap.Int("attempt", attempt))
	}
}
