package model

// 用户由外部认证服务管理，这里只保留令牌中携带的角色
type UserRole string

const (
	Student    UserRole = "student"
	Instructor UserRole = "instructor"
	Admin      UserRole = "admin"
)

func (r UserRole) CanAuthor() bool {
	return r == Instructor || r == Admin
}
