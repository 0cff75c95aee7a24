package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 文件上传相关常量
const (
	MimeImage       = "image/"
	MimePDF         = "application/pdf"
	MimeMSWord      = "application/msword"
	MimeDocx        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeMP4         = "video/mp4"
	MimeWebM        = "video/webm"
	MimeOctetStream = "application/octet-stream"
)

// 托管媒体的逻辑目录，删除时依据定位符中的目录标记路由
const (
	ResourceMediaFolder  = "educube-resources"
	ThumbnailMediaFolder = "educube-thumbnails"
)

var LocalDocumentMimeTypes = []string{MimePDF, MimeMSWord, MimeDocx, MimeMP4, MimeWebM}
