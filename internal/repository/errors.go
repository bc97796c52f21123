package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入或更新的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrConcurrentUpdate 表示记录在读取之后已被其他写入修改 (或已删除)
	ErrConcurrentUpdate = errors.New("repository: concurrent update")
)

// 特定资源的错误 (基于通用错误创建)
var (
	ErrUserNotFound    = ErrNotFound
	ErrDeviceNotFound  = ErrNotFound
	ErrRoomNotFound    = ErrNotFound
	ErrSessionNotFound = ErrNotFound
)
