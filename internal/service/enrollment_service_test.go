package service

import (
	"context"
	"educube_backend/internal/model"
	"educube_backend/internal/util"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnrollmentService(courses ...*model.Course) (*EnrollmentService, *memEnrollments) {
	store := newMemEnrollments()
	svc := NewEnrollmentService(store, newMemCourses(courses...), NewLocalLocker())
	svc.Now = func() time.Time { return t1 }
	return svc, store
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestEnrollmentService(twoLessonCourse())

	e, err := svc.Enroll(ctx, "u1", model.Student, "course-1")
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, 0.0, e.ProgressPercent)
	assert.Equal(t, t1, e.EnrolledAt)
	require.Len(t, e.Modules, 1)
	assert.Len(t, e.Modules[0].Lessons, 2)

	_, err = svc.Enroll(ctx, "u1", model.Student, "course-1")
	assert.ErrorIs(t, err, util.ErrDuplicateEnrollment)

	_, err = svc.Enroll(ctx, "u2", model.Student, "course-1")
	assert.NoError(t, err, "other users can still enroll")
}

func TestEnrollUnknownOrUnpublishedCourse(t *testing.T) {
	ctx := context.Background()
	draft := twoLessonCourse()
	draft.ID = "draft"
	draft.Published = false
	draft.InstructorID = "inst-1"
	svc, _ := newTestEnrollmentService(draft)

	_, err := svc.Enroll(ctx, "u1", model.Student, "missing")
	assert.ErrorIs(t, err, util.ErrCourseNotFound)

	_, err = svc.Enroll(ctx, "u1", model.Student, "draft")
	assert.ErrorIs(t, err, util.ErrCourseNotFound)

	_, err = svc.Enroll(ctx, "inst-1", model.Instructor, "draft")
	assert.NoError(t, err, "owner can preview a draft")

	_, err = svc.Enroll(ctx, "root", model.Admin, "draft")
	assert.NoError(t, err)
}

func TestProgressRequiresEnrollment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestEnrollmentService(twoLessonCourse())

	_, err := svc.UpdateLessonProgress(ctx, "u1", "course-1", LessonProgressInput{ModuleID: "m1", LessonID: "l1"})
	assert.ErrorIs(t, err, util.ErrEnrollmentNotFound)

	_, err = svc.GetStatus(ctx, "u1", "course-1")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestServiceScenarioPersistsState(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEnrollmentService(richCourse())

	_, err := svc.Enroll(ctx, "u1", model.Student, "course-2")
	require.NoError(t, err)

	_, err = svc.UpdateLessonProgress(ctx, "u1", "course-2", LessonProgressInput{ModuleID: "m1", LessonID: "l1", TimeSpent: 10, Completed: true})
	require.NoError(t, err)
	_, err = svc.CompleteResource(ctx, "u1", "course-2", ResourceCompletionInput{ResourceID: "c1", TimeSpent: 5})
	require.NoError(t, err)

	status, err := svc.GetStatus(ctx, "u1", "course-2")
	require.NoError(t, err)
	assert.Equal(t, 33.0, status.ProgressPercent)
	assert.Equal(t, 15, status.TotalTimeSpentMinutes)
	assert.Equal(t, 5, status.ResourceTimeSpentMinutes)
	assert.Equal(t, 1, status.ResourcesCompletedCount)
	assert.Equal(t, 2, status.Version)
	assert.Equal(t, 2, store.saves)

	_, err = svc.CompleteCourse(ctx, "u1", "course-2")
	assert.ErrorIs(t, err, util.ErrCourseIncomplete)

	after, err := svc.GetStatus(ctx, "u1", "course-2")
	require.NoError(t, err)
	assert.False(t, after.Completed, "rejected completion leaves no trace")
	assert.Equal(t, 2, after.Version)

	list, err := svc.ListMine(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty, err := svc.ListMine(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCompleteResourceValidatesBeforeLoading(t *testing.T) {
	svc, store := newTestEnrollmentService(richCourse())

	_, err := svc.CompleteResource(context.Background(), "u1", "course-2", ResourceCompletionInput{ModuleID: "m1", ResourceID: "r1"})
	assert.ErrorIs(t, err, util.ErrInvalidArgument)
	assert.Equal(t, 0, store.saves)
}

func TestVersionConflictIsReapplied(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEnrollmentService(twoLessonCourse())
	_, err := svc.Enroll(ctx, "u1", model.Student, "course-1")
	require.NoError(t, err)

	// 第一次保存前，另一个写入者给 l1 加了 7 分钟
	conflicts := 0
	store.beforeSave = func(stored *model.Enrollment) {
		if conflicts > 0 {
			return
		}
		conflicts++
		stored.Modules[0].Lessons[0].TimeSpentMinutes += 7
		stored.TotalTimeSpentMinutes += 7
		stored.Version++
	}

	e, err := svc.UpdateLessonProgress(ctx, "u1", "course-1", LessonProgressInput{ModuleID: "m1", LessonID: "l1", TimeSpent: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, 10, e.TotalTimeSpentMinutes, "neither increment is lost")
	assert.Equal(t, 2, e.Version)
}

func TestVersionConflictGivesUp(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEnrollmentService(twoLessonCourse())
	_, err := svc.Enroll(ctx, "u1", model.Student, "course-1")
	require.NoError(t, err)

	store.beforeSave = func(stored *model.Enrollment) { stored.Version++ }

	_, err = svc.UpdateLessonProgress(ctx, "u1", "course-1", LessonProgressInput{ModuleID: "m1", LessonID: "l1", TimeSpent: 3})
	assert.ErrorIs(t, err, util.ErrConcurrentUpdate)
	assert.Equal(t, maxUpdateAttempts, store.saves)
}

func TestConcurrentProgressUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestEnrollmentService(twoLessonCourse())
	_, err := svc.Enroll(ctx, "u1", model.Student, "course-1")
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateLessonProgress(ctx, "u1", "course-1", LessonProgressInput{ModuleID: "m1", LessonID: "l2", TimeSpent: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e, err := svc.GetStatus(ctx, "u1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, writers, e.TotalTimeSpentMinutes)
	assert.Equal(t, writers, e.Version)
}

func TestGetStatusReconcilesWithoutSaving(t *testing.T) {
	ctx := context.Background()
	courses := newMemCourses(twoLessonCourse())
	store := newMemEnrollments()
	svc := NewEnrollmentService(store, courses, nil)

	_, err := svc.Enroll(ctx, "u1", model.Student, "course-1")
	require.NoError(t, err)

	edited := twoLessonCourse()
	edited.Modules[0].Lessons = append(edited.Modules[0].Lessons, model.Lesson{ID: "l3"})
	require.NoError(t, courses.Update(ctx, edited))

	e, err := svc.GetStatus(ctx, "u1", "course-1")
	require.NoError(t, err)
	assert.Len(t, e.Modules[0].Lessons, 3)
	assert.Equal(t, 0, store.saves)

	require.NoError(t, courses.Delete(ctx, "course-1"))
	e, err = svc.GetStatus(ctx, "u1", "course-1")
	require.NoError(t, err, "history survives course deletion")
	assert.Len(t, e.Modules[0].Lessons, 2)
}

func TestCourseStatsPermissions(t *testing.T) {
	ctx := context.Background()
	course := twoLessonCourse()
	course.InstructorID = "inst-1"
	svc, _ := newTestEnrollmentService(course)

	_, err := svc.Enroll(ctx, "u1", model.Student, "course-1")
	require.NoError(t, err)
	_, err = svc.UpdateLessonProgress(ctx, "u1", "course-1", LessonProgressInput{ModuleID: "m1", LessonID: "l1", Completed: true})
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, "u2", model.Student, "course-1")
	require.NoError(t, err)

	_, err = svc.CourseStats(ctx, "inst-2", model.Instructor, "course-1")
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	stats, err := svc.CourseStats(ctx, "inst-1", model.Instructor, "course-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Enrolled)
	assert.Equal(t, int64(0), stats.Completed)
	assert.InDelta(t, 25.0, stats.AverageProgress, 0.001)

	_, err = svc.CourseStats(ctx, "root", model.Admin, "course-1")
	assert.NoError(t, err)
}

func TestGetStatusPersistsCompletionFromStructureChange(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestEnrollmentService(twoLessonCourse())
	now := t1
	svc.Now = func() time.Time { return now }

	_, err := svc.Enroll(ctx, "u1", model.Student, "course-1")
	require.NoError(t, err)
	_, err = svc.UpdateLessonProgress(ctx, "u1", "course-1", LessonProgressInput{ModuleID: "m1", LessonID: "l1", TimeSpent: 10, Completed: true})
	require.NoError(t, err)
	saves := store.saves

	// 删除唯一未完成的课时后，剩余课时全部完成
	edited := twoLessonCourse()
	edited.Modules[0].Lessons = edited.Modules[0].Lessons[:1]
	require.NoError(t, svc.Courses.Update(ctx, edited))

	now = t2
	first, err := svc.GetStatus(ctx, "u1", "course-1")
	require.NoError(t, err)
	require.True(t, first.Completed)
	require.NotNil(t, first.CompletedAt)
	assert.True(t, first.CompletedAt.Equal(t2))
	assert.True(t, first.Modules[0].Completed)
	assert.Equal(t, 100.0, first.ProgressPercent)
	assert.Equal(t, saves+1, store.saves)

	now = t2.Add(time.Hour)
	second, err := svc.GetStatus(ctx, "u1", "course-1")
	require.NoError(t, err)
	require.NotNil(t, second.CompletedAt)
	assert.True(t, second.CompletedAt.Equal(*first.CompletedAt), "completion time is fixed once stored")
	assert.True(t, second.Modules[0].CompletedAt.Equal(*first.Modules[0].CompletedAt))
	assert.Equal(t, saves+1, store.saves, "record already matches the course")

	stored, err := store.FindByUserAndCourse(ctx, "u1", "course-1")
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.True(t, stored.CompletedAt.Equal(t2))
	assert.Equal(t, second.Version, stored.Version)

	stats, err := svc.Enrollments.Stats(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
}
