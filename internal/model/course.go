package model

import (
	"time"

	"gorm.io/datatypes"
)

type CourseLevel string

const (
	Beginner     CourseLevel = "beginner"
	Intermediate CourseLevel = "intermediate"
	Advanced     CourseLevel = "advanced"
)

type QuizQuestion struct {
	Question      string   `json:"question" binding:"required"`
	Options       []string `json:"options" binding:"required,min=2"`
	CorrectAnswer int      `json:"correctAnswer"`
}

type Quiz struct {
	Title        string         `json:"title"`
	PassingScore int            `json:"passingScore"`
	Questions    []QuizQuestion `json:"questions" binding:"dive"`
}

type Lesson struct {
	ID              string     `json:"id"`
	Title           string     `json:"title" binding:"required"`
	Content         string     `json:"content"`
	VideoURL        string     `json:"videoUrl,omitempty"`
	DurationMinutes int        `json:"durationMinutes" binding:"gte=0"`
	Order           int        `json:"order"`
	Resources       []Resource `json:"resources" binding:"dive"`
	Quiz            *Quiz      `json:"quiz,omitempty"`
}

type Module struct {
	ID          string   `json:"id"`
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Order       int      `json:"order"`
	Lessons     []Lesson `json:"lessons" binding:"dive"`
}

// Course 课程定义，模块/课时/资源树整体以 JSON 列内嵌存储
// swagger:model Course
type Course struct {
	UUIDBase
	Title        string                        `gorm:"size:255;not null" json:"title"`
	Description  string                        `gorm:"type:text" json:"description"`
	Category     string                        `gorm:"size:100;index" json:"category"`
	Level        CourseLevel                   `gorm:"size:20" json:"level"`
	Thumbnail    string                        `gorm:"size:512" json:"thumbnail"`
	ThumbnailID  string                        `gorm:"size:255" json:"thumbnailId,omitempty"`
	InstructorID string                        `gorm:"size:64;index;not null" json:"instructorId"`
	Published    bool                          `gorm:"default:false;index" json:"published"`
	PublishAt    *time.Time                    `json:"publishAt,omitempty"`
	Modules      datatypes.JSONSlice[Module]   `json:"modules"`
	Resources    datatypes.JSONSlice[Resource] `json:"resources"`
}

func (Course) TableName() string {
	return "courses"
}

// FindLesson 在课程树中查找课时
func (c *Course) FindLesson(moduleID, lessonID string) (*Module, *Lesson) {
	for i := range c.Modules {
		m := &c.Modules[i]
		if m.ID != moduleID {
			continue
		}
		for j := range m.Lessons {
			if m.Lessons[j].ID == lessonID {
				return m, &m.Lessons[j]
			}
		}
		return m, nil
	}
	return nil, nil
}

// FindResource 查找课程级资源
func (c *Course) FindResource(resourceID string) *Resource {
	for i := range c.Resources {
		if c.Resources[i].ID == resourceID {
			return &c.Resources[i]
		}
	}
	return nil
}

func (c *Course) LessonCount() int {
	n := 0
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	return n
}

// AssignIDs 为作者未提供 ID 的模块/课时/资源分配 UUID，已有 ID 保持不变
func (c *Course) AssignIDs() {
	for i := range c.Modules {
		m := &c.Modules[i]
		if m.ID == "" {
			m.ID = GenerateUUID()
		}
		for j := range m.Lessons {
			l := &m.Lessons[j]
			if l.ID == "" {
				l.ID = GenerateUUID()
			}
			for k := range l.Resources {
				if l.Resources[k].ID == "" {
					l.Resources[k].ID = GenerateUUID()
				}
			}
		}
	}
	for i := range c.Resources {
		if c.Resources[i].ID == "" {
			c.Resources[i].ID = GenerateUUID()
		}
	}
}
