// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Role 是用户角色的封闭枚举。所有权限判断都必须穷举这些值，
// 不允许在调用点散落字符串比较。
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleUser   Role = "user"
)

// Valid 报告角色是否为已知枚举值。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer, RoleUser:
		return true
	}
	return false
}

// User 对应于数据库中的 'users' 表。
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Password string `gorm:"type:varchar(100);not null" json:"-"`
	Role     Role   `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	// EmployeeCode 在首次持久化时分配一次（格式 EP-ID-NNNN），之后不可变更。
	EmployeeCode string    `gorm:"type:varchar(20);uniqueIndex" json:"employeeCode"`
	FullName     string    `gorm:"type:varchar(100)" json:"fullName"`
	PhoneNumber  string    `gorm:"type:varchar(15)" json:"phoneNumber"`
	ProfilePhoto string    `gorm:"type:varchar(255)" json:"profilePhoto"` // 对象存储中的 key
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// IsAdmin 报告用户是否为管理员。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
