package models

import (
	"fmt"
	"time"
)

// AudioStatus 音频文件状态
// 状态机: uploaded -> processing -> completed / failed
// failed 可以通过用户重试重新进入 processing
type AudioStatus string

const (
	StatusUploaded   AudioStatus = "uploaded"   // 已上传，等待转录
	StatusProcessing AudioStatus = "processing" // 转录中
	StatusCompleted  AudioStatus = "completed"  // 转录完成
	StatusFailed     AudioStatus = "failed"     // 转录失败
)

// ParseStatus 解析状态字符串（用于查询参数校验）
func ParseStatus(s string) (AudioStatus, error) {
	switch AudioStatus(s) {
	case StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed:
		return AudioStatus(s), nil
	}
	return "", fmt.Errorf("未知状态: %s", s)
}

// AudioFile 音频文件记录
// 每个上传的文件对应唯一一条记录，object_key 全局唯一且不复用
type AudioFile struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	ObjectKey string      `json:"object_key"` // 对象存储 key，格式: {user_id}/{random_id}{ext}
	Filename  string      `json:"filename"`   // 原始文件名
	FileSize  int64       `json:"size"`
	Duration  *int        `json:"duration"` // 时长（秒），无法解析时为 nil
	Status    AudioStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"` // 每次状态变更都会刷新
}

// Word 单词级时间戳
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"` // 开始时间（秒）
	End        float64 `json:"end"`   // 结束时间（秒）
	Annotation *string `json:"annotation,omitempty"`
}

// Transcript 转录结果
// 每个 AudioFile 至多对应一条 Transcript（数据库唯一约束保证）
type Transcript struct {
	ID          string    `json:"id"`
	AudioFileID string    `json:"audio_file_id"`
	Text        string    `json:"text"`
	Words       []Word    `json:"words"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TranscriptionTask 转录任务（队列消息）
// 只携带执行转录所需的最小信息，记录本身以数据库为准
type TranscriptionTask struct {
	AudioID   string `json:"audio_id"`
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`

	// RabbitMQ 相关（不序列化到 JSON）
	DeliveryTag uint64 `json:"-"`
	Delivery    any    `json:"-"` // RabbitMQ delivery 对象（用于 Ack/Nack）
}
