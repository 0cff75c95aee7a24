package controller

import (
	"educube_backend/internal/service"
	"educube_backend/internal/util"
	"fmt"

	"github.com/gin-gonic/gin"
)

type UploadController struct {
	UploadService  *service.UploadService
	MaxUploadBytes int64
}

func NewUploadController(uploadService *service.UploadService, maxUploadBytes int64) *UploadController {
	return &UploadController{UploadService: uploadService, MaxUploadBytes: maxUploadBytes}
}

type DeleteUploadRequest struct {
	Locator string `json:"locator" binding:"required"`
}

// UploadResource godoc
// @Summary 上传课程资源文件
// @Description 图片上传到托管媒体服务；PDF、Word 文档和 mp4/webm 视频存放在本地磁盘
// @Tags 上传
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "资源文件"
// @Success 201 {object} util.Response{data=service.UploadResult}
// @Failure 400 {object} util.Response "文件类型不支持"
// @Failure 502 {object} util.Response "托管服务失败"
// @Router /api/uploads/resources [post]
func (c *UploadController) UploadResource(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "File is required")
		return
	}
	if c.MaxUploadBytes > 0 && file.Size > c.MaxUploadBytes {
		util.BadRequest(ctx, fmt.Sprintf("File too large, limit is %d bytes", c.MaxUploadBytes))
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	result, err := c.UploadService.UploadResource(ctx.Request.Context(), file.Filename,
		file.Header.Get("Content-Type"), file.Size, src)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// DeleteResource godoc
// @Summary 删除已上传的资源文件
// @Tags 上传
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body DeleteUploadRequest true "上传时返回的 locator"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/uploads/resources [delete]
func (c *UploadController) DeleteResource(ctx *gin.Context) {
	var req DeleteUploadRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.UploadService.Delete(ctx.Request.Context(), req.Locator); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
