package service

import (
	"educube_backend/internal/model"
	"educube_backend/internal/util"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// LessonProgressInput 课时进度上报
type LessonProgressInput struct {
	ModuleID  string `json:"moduleId" binding:"required"`
	LessonID  string `json:"lessonId" binding:"required"`
	TimeSpent int    `json:"timeSpent"`
	Completed bool   `json:"completed"`
}

// ResourceCompletionInput 资源完成上报，moduleId/lessonId 缺省时表示课程级资源
type ResourceCompletionInput struct {
	ModuleID   string `json:"moduleId"`
	LessonID   string `json:"lessonId"`
	ResourceID string `json:"resourceId"`
	TimeSpent  int    `json:"timeSpent"`
}

func (in ResourceCompletionInput) Validate() error {
	if strings.TrimSpace(in.ResourceID) == "" {
		return util.InvalidArgument("resourceId is required")
	}
	if (in.ModuleID == "") != (in.LessonID == "") {
		return util.InvalidArgument("moduleId and lessonId must be provided together")
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func newModuleProgress(m model.Module) model.ModuleProgress {
	mp := model.ModuleProgress{
		ModuleID: m.ID,
		Lessons:  make([]model.LessonProgress, 0, len(m.Lessons)),
	}
	for _, l := range m.Lessons {
		mp.Lessons = append(mp.Lessons, newLessonProgress(l.ID))
	}
	return mp
}

func newLessonProgress(lessonID string) model.LessonProgress {
	return model.LessonProgress{
		LessonID:  lessonID,
		Resources: []model.ResourceProgress{},
	}
}

// newEnrollment 按课程当前的模块/课时结构生成进度快照
func newEnrollment(userID string, course *model.Course, now time.Time) *model.Enrollment {
	e := &model.Enrollment{
		UserID:             userID,
		CourseID:           course.ID,
		Modules:            make(datatypes.JSONSlice[model.ModuleProgress], 0, len(course.Modules)),
		CompletedResources: datatypes.JSONSlice[model.CompletedResource]{},
		EnrolledAt:         now,
		LastAccessedAt:     now,
	}
	for _, m := range course.Modules {
		e.Modules = append(e.Modules, newModuleProgress(m))
	}
	recalculate(e, now)
	return e
}

type lessonRef struct {
	moduleID string
	progress model.LessonProgress
}

// reconcileEnrollment 将快照与课程最新结构对齐：
// 课程中新增的模块/课时追加为未完成；已删除的条目保留并标记 orphaned，不参与进度计算。
// 课时按 ID 匹配，跨模块移动的课时保留原有进度。
func reconcileEnrollment(e *model.Enrollment, course *model.Course) {
	if course == nil {
		return
	}

	lessons := make(map[string]lessonRef)
	var lessonOrder []string
	modules := make(map[string]model.ModuleProgress, len(e.Modules))
	var moduleOrder []string
	for _, m := range e.Modules {
		if _, dup := modules[m.ModuleID]; !dup {
			modules[m.ModuleID] = m
			moduleOrder = append(moduleOrder, m.ModuleID)
		}
		for _, l := range m.Lessons {
			if _, dup := lessons[l.LessonID]; dup {
				continue
			}
			lessons[l.LessonID] = lessonRef{moduleID: m.ModuleID, progress: l}
			lessonOrder = append(lessonOrder, l.LessonID)
		}
	}

	result := make([]model.ModuleProgress, 0, len(course.Modules))
	index := make(map[string]int, len(moduleOrder))

	for _, cm := range course.Modules {
		mp := model.ModuleProgress{
			ModuleID: cm.ID,
			Lessons:  make([]model.LessonProgress, 0, len(cm.Lessons)),
		}
		if prev, ok := modules[cm.ID]; ok {
			mp.Completed = prev.Completed
			mp.CompletedAt = prev.CompletedAt
		}
		for _, cl := range cm.Lessons {
			ref, ok := lessons[cl.ID]
			if !ok {
				mp.Lessons = append(mp.Lessons, newLessonProgress(cl.ID))
				continue
			}
			lp := ref.progress
			lp.Orphaned = false
			if lp.Resources == nil {
				lp.Resources = []model.ResourceProgress{}
			}
			mp.Lessons = append(mp.Lessons, lp)
			delete(lessons, cl.ID)
		}
		index[cm.ID] = len(result)
		result = append(result, mp)
	}

	for _, id := range moduleOrder {
		if _, live := index[id]; live {
			continue
		}
		mp := modules[id]
		mp.Orphaned = true
		mp.Lessons = []model.LessonProgress{}
		index[id] = len(result)
		result = append(result, mp)
	}

	for _, id := range lessonOrder {
		ref, ok := lessons[id]
		if !ok {
			continue
		}
		lp := ref.progress
		lp.Orphaned = true
		i := index[ref.moduleID]
		result[i].Lessons = append(result[i].Lessons, lp)
	}

	e.Modules = result
}

// recalculate 重新计算所有聚合字段
func recalculate(e *model.Enrollment, now time.Time) {
	var (
		lessonTime, resourceTime      int
		resourcesCompleted            int
		liveModules, completedModules int
		liveLessons, completedLessons int
	)

	for i := range e.Modules {
		m := &e.Modules[i]
		moduleLive, moduleDone := 0, 0
		for j := range m.Lessons {
			l := &m.Lessons[j]
			lessonTime += l.TimeSpentMinutes
			for _, r := range l.Resources {
				resourceTime += r.TimeSpentMinutes
				if r.Completed {
					resourcesCompleted++
				}
			}
			if m.Orphaned || l.Orphaned {
				continue
			}
			moduleLive++
			if l.Completed {
				moduleDone++
			}
		}
		if m.Orphaned {
			continue
		}

		liveModules++
		liveLessons += moduleLive
		completedLessons += moduleDone

		if moduleDone == moduleLive {
			m.Completed = true
			if m.CompletedAt == nil {
				m.CompletedAt = timePtr(now)
			}
			completedModules++
		} else {
			m.Completed = false
			m.CompletedAt = nil
		}
	}

	for _, r := range e.CompletedResources {
		resourceTime += r.TimeSpentMinutes
		resourcesCompleted++
	}

	e.ProgressPercent = 0
	if liveLessons > 0 {
		e.ProgressPercent = math.Round(100 * float64(completedLessons) / float64(liveLessons))
	}
	e.ResourceTimeSpentMinutes = resourceTime
	e.TotalTimeSpentMinutes = lessonTime + resourceTime
	e.ResourcesCompletedCount = resourcesCompleted

	// 完成状态一旦达成不回退
	if !e.Completed && liveLessons > 0 && completedModules == liveModules {
		e.Completed = true
	}
	if e.Completed && e.CompletedAt == nil {
		e.CompletedAt = timePtr(now)
	}
	e.LastAccessedAt = now
}

func applyLessonProgress(e *model.Enrollment, course *model.Course, in LessonProgressInput, now time.Time) error {
	reconcileEnrollment(e, course)

	m, l := e.FindLesson(in.ModuleID, in.LessonID)
	if m == nil {
		return util.ErrModuleNotFound
	}
	if l == nil {
		return util.ErrLessonNotFound
	}

	if in.TimeSpent > 0 {
		l.TimeSpentMinutes += in.TimeSpent
	}
	if in.Completed {
		l.Completed = true
		if l.CompletedAt == nil {
			l.CompletedAt = timePtr(now)
		}
	}

	recalculate(e, now)
	return nil
}

// applyResourceCompletion 返回该资源是否为首次完成
func applyResourceCompletion(e *model.Enrollment, course *model.Course, in ResourceCompletionInput, now time.Time) (bool, error) {
	if err := in.Validate(); err != nil {
		return false, err
	}
	delta := in.TimeSpent
	if delta < 0 {
		delta = 0
	}

	reconcileEnrollment(e, course)

	newly := false
	if in.ModuleID != "" {
		m, l := e.FindLesson(in.ModuleID, in.LessonID)
		if m == nil {
			return false, util.ErrModuleNotFound
		}
		if l == nil {
			return false, util.ErrLessonNotFound
		}
		if _, cl := course.FindLesson(in.ModuleID, in.LessonID); cl == nil || !lessonHasResource(cl, in.ResourceID) {
			return false, util.ErrResourceNotFound
		}

		found := false
		for i := range l.Resources {
			r := &l.Resources[i]
			if r.ResourceID != in.ResourceID {
				continue
			}
			found = true
			r.TimeSpentMinutes += delta
			if !r.Completed {
				r.Completed = true
				newly = true
			}
			if r.CompletedAt == nil {
				r.CompletedAt = timePtr(now)
			}
			break
		}
		if !found {
			l.Resources = append(l.Resources, model.ResourceProgress{
				ResourceID:       in.ResourceID,
				TimeSpentMinutes: delta,
				Completed:        true,
				CompletedAt:      timePtr(now),
			})
			newly = true
		}
	} else {
		if course.FindResource(in.ResourceID) == nil {
			return false, util.ErrResourceNotFound
		}

		found := false
		for i := range e.CompletedResources {
			if e.CompletedResources[i].ResourceID == in.ResourceID {
				e.CompletedResources[i].TimeSpentMinutes += delta
				found = true
				break
			}
		}
		if !found {
			e.CompletedResources = append(e.CompletedResources, model.CompletedResource{
				ResourceID:       in.ResourceID,
				CompletedAt:      now,
				TimeSpentMinutes: delta,
			})
			newly = true
		}
	}

	recalculate(e, now)
	return newly, nil
}

func lessonHasResource(l *model.Lesson, resourceID string) bool {
	for _, r := range l.Resources {
		if r.ID == resourceID {
			return true
		}
	}
	return false
}

func lessonResourceDone(l *model.LessonProgress, resourceID string) bool {
	for _, r := range l.Resources {
		if r.ResourceID == resourceID && r.Completed {
			return true
		}
	}
	return false
}

func courseResourceDone(e *model.Enrollment, resourceID string) bool {
	for _, r := range e.CompletedResources {
		if r.ResourceID == resourceID {
			return true
		}
	}
	return false
}

// applyCourseCompletion 所有课时与资源均已完成时，将整门课程标记为完成
func applyCourseCompletion(e *model.Enrollment, course *model.Course, now time.Time) error {
	reconcileEnrollment(e, course)

	for _, cm := range course.Modules {
		for i := range cm.Lessons {
			cl := &cm.Lessons[i]
			_, lp := e.FindLesson(cm.ID, cl.ID)
			if lp == nil || !lp.Completed {
				return fmt.Errorf("%w: lesson %s is not completed", util.ErrCourseIncomplete, cl.ID)
			}
			for _, r := range cl.Resources {
				if !lessonResourceDone(lp, r.ID) {
					return fmt.Errorf("%w: resource %s is not completed", util.ErrCourseIncomplete, r.ID)
				}
			}
		}
	}
	for _, r := range course.Resources {
		if !courseResourceDone(e, r.ID) {
			return fmt.Errorf("%w: resource %s is not completed", util.ErrCourseIncomplete, r.ID)
		}
	}

	for i := range e.Modules {
		m := &e.Modules[i]
		for j := range m.Lessons {
			l := &m.Lessons[j]
			l.Completed = true
			if l.CompletedAt == nil {
				l.CompletedAt = timePtr(now)
			}
		}
		m.Completed = true
		if m.CompletedAt == nil {
			m.CompletedAt = timePtr(now)
		}
	}

	recalculate(e, now)
	e.Completed = true
	if e.CompletedAt == nil {
		e.CompletedAt = timePtr(now)
	}
	e.ProgressPercent = 100
	return nil
}
