package app

import (
	"educube_backend/internal/config"
	"educube_backend/internal/middleware"
	"educube_backend/internal/model"
	"educube_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/health", c.health.HealthCheck)
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")

	// 1. 公共路由(无需登录)，登录用户可看到自己未发布的课程
	public := api.Group("")
	public.Use(middleware.TryAuthMiddleware(cfg))
	{
		public.GET("/courses", c.course.ListCourses)
		public.GET("/courses/:id", c.course.GetCourse)
	}

	// 2. 需要授权的路由
	authGroup := api.Group("")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerInstructorRoutes(authGroup, c)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	enrollments := group.Group("/enrollments")
	{
		enrollments.GET("", c.enrollment.ListMyEnrollments)
		enrollments.POST("/:courseId/enroll", c.enrollment.Enroll)
		enrollments.GET("/:courseId/status", c.enrollment.GetStatus)
		enrollments.POST("/:courseId/progress", c.enrollment.UpdateProgress)
		enrollments.POST("/:courseId/resource-complete", c.enrollment.CompleteResource)
		enrollments.POST("/:courseId/complete", c.enrollment.CompleteCourse)
	}
}

func (a *App) registerInstructorRoutes(group *gin.RouterGroup, c *controllers) {
	instructor := group.Group("")
	instructor.Use(middleware.RoleMiddleware(model.Instructor))
	{
		instructor.GET("/courses/mine", c.course.ListMyCourses)
		instructor.POST("/courses", c.course.CreateCourse)
		instructor.PUT("/courses/:id", c.course.UpdateCourse)
		instructor.DELETE("/courses/:id", c.course.DeleteCourse)
		instructor.POST("/courses/:id/publish", c.course.PublishCourse)
		instructor.POST("/courses/:id/thumbnail", c.course.UploadThumbnail)
		instructor.GET("/courses/:id/stats", c.course.CourseStats)

		instructor.POST("/uploads/resources", c.upload.UploadResource)
		instructor.DELETE("/uploads/resources", c.upload.DeleteResource)
	}
}
