package service

import (
	"context"
	"educube_backend/internal/model"
	"educube_backend/internal/repository"
	"educube_backend/internal/util"
	"encoding/json"
	"sync"
	"time"
)

// memCourses 内存版 CourseStore
type memCourses struct {
	mu      sync.Mutex
	courses map[string]*model.Course
}

func newMemCourses(courses ...*model.Course) *memCourses {
	m := &memCourses{courses: make(map[string]*model.Course)}
	for _, c := range courses {
		m.courses[c.ID] = c
	}
	return m
}

// clone 经过 JSON 往返，模拟每次从存储读出独立副本
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

func (m *memCourses) Create(ctx context.Context, c *model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = model.GenerateUUID()
	}
	stored := clone(c)
	stored.ID = c.ID
	m.courses[c.ID] = stored
	return nil
}

func (m *memCourses) FindByID(ctx context.Context, id string) (*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, util.ErrCourseNotFound
	}
	out := clone(c)
	out.ID = c.ID
	return out, nil
}

func (m *memCourses) List(ctx context.Context, f repository.CourseFilter) ([]model.Course, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []model.Course
	for _, c := range m.courses {
		if f.OnlyPublished && !c.Published {
			continue
		}
		if f.InstructorID != "" && c.InstructorID != f.InstructorID {
			continue
		}
		list = append(list, *c)
	}
	return list, int64(len(list)), nil
}

func (m *memCourses) Update(ctx context.Context, c *model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[c.ID]; !ok {
		return util.ErrCourseNotFound
	}
	stored := clone(c)
	stored.ID = c.ID
	m.courses[c.ID] = stored
	return nil
}

func (m *memCourses) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return util.ErrCourseNotFound
	}
	delete(m.courses, id)
	return nil
}

func (m *memCourses) PublishDue(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, c := range m.courses {
		if !c.Published && c.PublishAt != nil && !c.PublishAt.After(now) {
			c.Published = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// memEnrollments 内存版 EnrollmentStore，SaveVersioned 按 version 做比较并交换
type memEnrollments struct {
	mu      sync.Mutex
	records map[string]*model.Enrollment
	// beforeSave 在比较版本之前调用，用于模拟并发写入
	beforeSave func(stored *model.Enrollment)
	saves      int
}

func newMemEnrollments() *memEnrollments {
	return &memEnrollments{records: make(map[string]*model.Enrollment)}
}

func enrollmentKey(userID, courseID string) string {
	return userID + "|" + courseID
}

func (m *memEnrollments) copyOf(e *model.Enrollment) *model.Enrollment {
	out := clone(e)
	out.ID = e.ID
	out.Version = e.Version
	return out
}

func (m *memEnrollments) Create(ctx context.Context, e *model.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := enrollmentKey(e.UserID, e.CourseID)
	if _, ok := m.records[key]; ok {
		return util.ErrDuplicateEnrollment
	}
	e.ID = model.GenerateUUID()
	m.records[key] = m.copyOf(e)
	return nil
}

func (m *memEnrollments) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[enrollmentKey(userID, courseID)]
	if !ok {
		return nil, util.ErrEnrollmentNotFound
	}
	return m.copyOf(e), nil
}

func (m *memEnrollments) ListByUser(ctx context.Context, userID string) ([]model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []model.Enrollment
	for _, e := range m.records {
		if e.UserID == userID {
			list = append(list, *m.copyOf(e))
		}
	}
	return list, nil
}

func (m *memEnrollments) SaveVersioned(ctx context.Context, e *model.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	key := enrollmentKey(e.UserID, e.CourseID)
	stored, ok := m.records[key]
	if !ok {
		return util.ErrEnrollmentNotFound
	}
	if m.beforeSave != nil {
		m.beforeSave(stored)
	}
	if stored.Version != e.Version {
		return util.ErrConcurrentUpdate
	}
	e.Version++
	m.records[key] = m.copyOf(e)
	return nil
}

func (m *memEnrollments) Stats(ctx context.Context, courseID string) (*model.CourseStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &model.CourseStats{CourseID: courseID}
	var sum float64
	for _, e := range m.records {
		if e.CourseID != courseID {
			continue
		}
		stats.Enrolled++
		if e.Completed {
			stats.Completed++
		}
		sum += e.ProgressPercent
	}
	if stats.Enrolled > 0 {
		stats.AverageProgress = sum / float64(stats.Enrolled)
	}
	return stats, nil
}
