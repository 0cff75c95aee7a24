package controller

import (
	"educube_backend/internal/service"
	"educube_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	EnrollmentService *service.EnrollmentService
}

func NewEnrollmentController(enrollmentService *service.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{EnrollmentService: enrollmentService}
}

// Enroll godoc
// @Summary 选课
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path string true "课程ID"
// @Success 201 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response "已选过该课程"
// @Failure 404 {object} util.Response
// @Router /api/enrollments/{courseId}/enroll [post]
func (c *EnrollmentController) Enroll(ctx *gin.Context) {
	userID, role := caller(ctx)
	e, err := c.EnrollmentService.Enroll(ctx.Request.Context(), userID, role, ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, e)
}

// GetStatus godoc
// @Summary 查询学习进度
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path string true "课程ID"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 404 {object} util.Response
// @Router /api/enrollments/{courseId}/status [get]
func (c *EnrollmentController) GetStatus(ctx *gin.Context) {
	userID, _ := caller(ctx)
	e, err := c.EnrollmentService.GetStatus(ctx.Request.Context(), userID, ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, e)
}

// ListMyEnrollments godoc
// @Summary 我的选课
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Enrollment}
// @Router /api/enrollments [get]
func (c *EnrollmentController) ListMyEnrollments(ctx *gin.Context) {
	userID, _ := caller(ctx)
	list, err := c.EnrollmentService.ListMine(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// UpdateProgress godoc
// @Summary 上报课时进度
// @Description 累加学习时长，completed=true 时标记课时完成
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path string true "课程ID"
// @Param request body service.LessonProgressInput true "课时进度"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/enrollments/{courseId}/progress [post]
func (c *EnrollmentController) UpdateProgress(ctx *gin.Context) {
	var req service.LessonProgressInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	userID, _ := caller(ctx)
	e, err := c.EnrollmentService.UpdateLessonProgress(ctx.Request.Context(), userID, ctx.Param("courseId"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, e)
}

// CompleteResource godoc
// @Summary 标记资源完成
// @Description 同时提供 moduleId 和 lessonId 时为课时资源，否则为课程级资源
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path string true "课程ID"
// @Param request body service.ResourceCompletionInput true "资源完成"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/enrollments/{courseId}/resource-complete [post]
func (c *EnrollmentController) CompleteResource(ctx *gin.Context) {
	var req service.ResourceCompletionInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	userID, _ := caller(ctx)
	e, err := c.EnrollmentService.CompleteResource(ctx.Request.Context(), userID, ctx.Param("courseId"), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, e)
}

// CompleteCourse godoc
// @Summary 完成课程
// @Description 所有课时与资源完成后才能标记
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Param courseId path string true "课程ID"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Failure 400 {object} util.Response "课程尚未全部完成"
// @Router /api/enrollments/{courseId}/complete [post]
func (c *EnrollmentController) CompleteCourse(ctx *gin.Context) {
	userID, _ := caller(ctx)
	e, err := c.EnrollmentService.CompleteCourse(ctx.Request.Context(), userID, ctx.Param("courseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, e)
}
