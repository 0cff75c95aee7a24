package model

type ResourceType string

const (
	PDF      ResourceType = "pdf"
	Document ResourceType = "document"
	Video    ResourceType = "video"
	Image    ResourceType = "image"
	Link     ResourceType = "link"
)

// Resource 课程或课时下挂载的学习资源（文件或外部链接）
// swagger:model Resource
type Resource struct {
	ID       string       `json:"id"`
	Title    string       `json:"title" binding:"required"`
	Type     ResourceType `json:"type" binding:"omitempty,oneof=pdf document video image link"`
	URL      string       `json:"url"`
	Locator  string       `json:"locator,omitempty"`  // 上传网关返回的定位符，删除时使用
	Provider string       `json:"provider,omitempty"` // local | minio | oss
	MimeType string       `json:"mimeType,omitempty"`
	Size     int64        `json:"size,omitempty"`
}
