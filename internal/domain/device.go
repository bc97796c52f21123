package domain

import "time"

// Device 表示一个注册的客户端安装，用于共享剪贴板内容。
// UserID 为空时表示设备主人没有账号。
type Device struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	DeviceName      string    `gorm:"size:191;not null" json:"device_name"`
	Username        string    `gorm:"size:191" json:"username"`
	UserID          *string   `gorm:"index;size:36" json:"user_id,omitempty"`
	OperatingSystem string    `gorm:"size:100" json:"operating_system"`
	Browser         string    `gorm:"size:100" json:"browser"`
	DeviceFamily    string    `gorm:"size:100" json:"device_family"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
