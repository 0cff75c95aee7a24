package model

import (
	"time"

	"gorm.io/datatypes"
)

type ResourceProgress struct {
	ResourceID       string     `json:"resourceId"`
	TimeSpentMinutes int        `json:"timeSpentMinutes"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

type LessonProgress struct {
	LessonID         string             `json:"lessonId"`
	TimeSpentMinutes int                `json:"timeSpentMinutes"`
	Completed        bool               `json:"completed"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
	Orphaned         bool               `json:"orphaned,omitempty"` // 课程中已删除，仅保留历史
	Resources        []ResourceProgress `json:"resources"`
}

type ModuleProgress struct {
	ModuleID    string           `json:"moduleId"`
	Completed   bool             `json:"completed"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	Orphaned    bool             `json:"orphaned,omitempty"`
	Lessons     []LessonProgress `json:"lessons"`
}

// CompletedResource 课程级资源（不属于任何课时）的完成记录
type CompletedResource struct {
	ResourceID       string    `json:"resourceId"`
	CompletedAt      time.Time `json:"completedAt"`
	TimeSpentMinutes int       `json:"timeSpentMinutes"`
}

// Enrollment 用户在某门课程上的学习记录，(user_id, course_id) 唯一
// swagger:model Enrollment
type Enrollment struct {
	UUIDBase
	UserID                   string                                 `gorm:"size:64;not null;uniqueIndex:idx_enrollment_user_course" json:"userId"`
	CourseID                 string                                 `gorm:"size:36;not null;uniqueIndex:idx_enrollment_user_course;index" json:"courseId"`
	Modules                  datatypes.JSONSlice[ModuleProgress]    `json:"modules"`
	CompletedResources       datatypes.JSONSlice[CompletedResource] `json:"completedResources"`
	ProgressPercent          float64                                `gorm:"default:0" json:"progressPercent"`
	TotalTimeSpentMinutes    int                                    `gorm:"default:0" json:"totalTimeSpentMinutes"`
	ResourceTimeSpentMinutes int                                    `gorm:"default:0" json:"resourceTimeSpentMinutes"`
	ResourcesCompletedCount  int                                    `gorm:"default:0" json:"resourcesCompletedCount"`
	Completed                bool                                   `gorm:"default:false" json:"completed"`
	CompletedAt              *time.Time                             `json:"completedAt,omitempty"`
	EnrolledAt               time.Time                              `json:"enrolledAt"`
	LastAccessedAt           time.Time                              `json:"lastAccessedAt"`
	Version                  int                                    `gorm:"not null;default:0" json:"version"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// FindLesson 在快照中查找模块与课时，已孤立的条目视为不存在
func (e *Enrollment) FindLesson(moduleID, lessonID string) (*ModuleProgress, *LessonProgress) {
	for i := range e.Modules {
		m := &e.Modules[i]
		if m.ModuleID != moduleID || m.Orphaned {
			continue
		}
		for j := range m.Lessons {
			l := &m.Lessons[j]
			if l.LessonID == lessonID && !l.Orphaned {
				return m, l
			}
		}
		return m, nil
	}
	return nil, nil
}

// CourseStats 课程学习统计
type CourseStats struct {
	CourseID        string  `json:"courseId"`
	Enrolled        int64   `json:"enrolled"`
	Completed       int64   `json:"completed"`
	AverageProgress float64 `json:"averageProgress"`
}
