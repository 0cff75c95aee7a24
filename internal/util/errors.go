package util

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateEnrollment = errors.New("already enrolled in this course")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamStorage     = errors.New("storage provider failure")
	ErrInvalidFileType     = errors.New("invalid file type")
	ErrCourseIncomplete    = errors.New("course is not fully completed")
	ErrConcurrentUpdate    = errors.New("record was modified concurrently")

	ErrCourseNotFound     = fmt.Errorf("course %w", ErrNotFound)
	ErrEnrollmentNotFound = fmt.Errorf("enrollment %w", ErrNotFound)
	ErrModuleNotFound     = fmt.Errorf("module %w", ErrNotFound)
	ErrLessonNotFound     = fmt.Errorf("lesson %w", ErrNotFound)
	ErrResourceNotFound   = fmt.Errorf("resource %w", ErrNotFound)
)

// InvalidArgument 附带字段说明的参数错误
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
