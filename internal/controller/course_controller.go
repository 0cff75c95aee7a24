package controller

import (
	"educube_backend/internal/model"
	"educube_backend/internal/repository"
	"educube_backend/internal/service"
	"educube_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService     *service.CourseService
	EnrollmentService *service.EnrollmentService
	MaxUploadBytes    int64
}

func NewCourseController(courseService *service.CourseService, enrollmentService *service.EnrollmentService, maxUploadBytes int64) *CourseController {
	return &CourseController{
		CourseService:     courseService,
		EnrollmentService: enrollmentService,
		MaxUploadBytes:    maxUploadBytes,
	}
}

// caller 返回当前用户，匿名访问时返回空值
func caller(ctx *gin.Context) (string, model.UserRole) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		return "", ""
	}
	return claims.UserID, claims.Role
}

// ListCourses godoc
// @Summary 课程列表
// @Description 分页查询已发布课程，支持按分类、难度和关键字筛选
// @Tags 课程
// @Produce json
// @Param category query string false "分类"
// @Param level query string false "难度" Enums(beginner, intermediate, advanced)
// @Param search query string false "关键字"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	page, limit := util.Pagination(ctx.Query("page"), ctx.Query("limit"))
	courses, total, err := c.CourseService.List(ctx.Request.Context(), repository.CourseFilter{
		Category: ctx.Query("category"),
		Level:    ctx.Query("level"),
		Search:   ctx.Query("search"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: courses, Total: total, Page: page, Limit: limit})
}

// GetCourse godoc
// @Summary 课程详情
// @Tags 课程
// @Produce json
// @Param id path string true "课程ID"
// @Success 200 {object} util.Response{data=model.Course}
// @Failure 404 {object} util.Response
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	userID, role := caller(ctx)
	course, err := c.CourseService.Get(ctx.Request.Context(), userID, role, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// ListMyCourses godoc
// @Summary 我创建的课程
// @Tags 课程
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/courses/mine [get]
func (c *CourseController) ListMyCourses(ctx *gin.Context) {
	userID, role := caller(ctx)
	page, limit := util.Pagination(ctx.Query("page"), ctx.Query("limit"))
	courses, total, err := c.CourseService.ListMine(ctx.Request.Context(), userID, role, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: courses, Total: total, Page: page, Limit: limit})
}

// CreateCourse godoc
// @Summary 创建课程
// @Tags 课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body service.CourseRequest true "课程内容"
// @Success 201 {object} util.Response{data=model.Course}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/courses [post]
func (c *CourseController) CreateCourse(ctx *gin.Context) {
	var req service.CourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	userID, role := caller(ctx)
	course, err := c.CourseService.Create(ctx.Request.Context(), userID, role, &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, course)
}

// UpdateCourse godoc
// @Summary 更新课程
// @Description 整体替换课程内容，保留请求中已有的模块/课时/资源 ID
// @Tags 课程
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "课程ID"
// @Param request body service.CourseRequest true "课程内容"
// @Success 200 {object} util.Response{data=model.Course}
// @Router /api/courses/{id} [put]
func (c *CourseController) UpdateCourse(ctx *gin.Context) {
	var req service.CourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	userID, role := caller(ctx)
	course, err := c.CourseService.Update(ctx.Request.Context(), userID, role, ctx.Param("id"), &req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// DeleteCourse godoc
// @Summary 删除课程
// @Tags 课程
// @Security ApiKeyAuth
// @Param id path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{id} [delete]
func (c *CourseController) DeleteCourse(ctx *gin.Context) {
	userID, role := caller(ctx)
	if err := c.CourseService.Delete(ctx.Request.Context(), userID, role, ctx.Param("id")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// PublishCourse godoc
// @Summary 发布课程
// @Tags 课程
// @Security ApiKeyAuth
// @Param id path string true "课程ID"
// @Success 200 {object} util.Response{data=model.Course}
// @Router /api/courses/{id}/publish [post]
func (c *CourseController) PublishCourse(ctx *gin.Context) {
	userID, role := caller(ctx)
	course, err := c.CourseService.Publish(ctx.Request.Context(), userID, role, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// UploadThumbnail godoc
// @Summary 上传课程封面
// @Tags 课程
// @Accept multipart/form-data
// @Security ApiKeyAuth
// @Param id path string true "课程ID"
// @Param file formData file true "封面图片"
// @Success 200 {object} util.Response{data=model.Course}
// @Failure 400 {object} util.Response
// @Router /api/courses/{id}/thumbnail [post]
func (c *CourseController) UploadThumbnail(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "File is required")
		return
	}
	if c.MaxUploadBytes > 0 && file.Size > c.MaxUploadBytes {
		util.BadRequest(ctx, "File too large")
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	userID, role := caller(ctx)
	course, err := c.CourseService.UploadThumbnail(ctx.Request.Context(), userID, role, ctx.Param("id"),
		file.Filename, file.Header.Get("Content-Type"), src)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// CourseStats godoc
// @Summary 课程选课统计
// @Tags 课程
// @Security ApiKeyAuth
// @Param id path string true "课程ID"
// @Success 200 {object} util.Response{data=model.CourseStats}
// @Router /api/courses/{id}/stats [get]
func (c *CourseController) CourseStats(ctx *gin.Context) {
	userID, role := caller(ctx)
	stats, err := c.EnrollmentService.CourseStats(ctx.Request.Context(), userID, role, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}
