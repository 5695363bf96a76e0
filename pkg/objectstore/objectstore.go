package objectstore

import "context"

// Store 对象存储接口
// 按 key 存取二进制 blob，读访问只通过限时签名 URL 暴露
type Store interface {
	// Upload 上传 blob
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// Fetch 按 key 下载 blob
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Delete 删除 blob
	Delete(ctx context.Context, key string) error

	// PresignedURL 生成限时只读签名 URL
	PresignedURL(ctx context.Context, key string) (string, error)
}
