package storage

import (
	"context"
	"errors"

	"github.com/z-wentao/audioflow/pkg/models"
)

// ErrNotFound 记录不存在（或不属于当前用户）
var ErrNotFound = errors.New("记录不存在")

// Store 音频记录存储接口
// 除 GetAudioByID / MarkProcessing / MarkFailed / CompleteTranscription
// （供后台转录流程使用）外，所有读写都按 (id, user_id) 过滤，
// 授权在查询边界强制执行，用户永远看不到他人的记录。
type Store interface {
	// CreateAudio 创建音频记录（初始状态 uploaded）
	CreateAudio(ctx context.Context, audio *models.AudioFile) error

	// GetAudio 按 (id, user_id) 获取单条记录
	GetAudio(ctx context.Context, id, userID string) (*models.AudioFile, error)

	// GetAudioByID 按 id 获取记录（不限用户，仅供转录流程内部使用）
	GetAudioByID(ctx context.Context, id string) (*models.AudioFile, error)

	// ListAudio 按用户分页列出记录（按创建时间倒序），status 为 nil 时不过滤
	ListAudio(ctx context.Context, userID string, status *models.AudioStatus, skip, limit int) ([]*models.AudioFile, error)

	// DeleteAudio 删除记录，级联删除其 Transcript
	DeleteAudio(ctx context.Context, id, userID string) error

	// MarkProcessing 将状态置为 processing 并刷新 updated_at
	// 这是转录开始前的持久化检查点：即使进程随后崩溃，
	// 记录也会停在 processing 而不是停在 uploaded
	MarkProcessing(ctx context.Context, id string) error

	// MarkFailed 将状态置为 failed 并刷新 updated_at
	MarkFailed(ctx context.Context, id string) error

	// TryDispatch 重试的 CAS 状态切换：
	// 仅当当前状态不是 processing 时原子地切换到 processing。
	// 返回 false 表示已有转录在进行中（或记录不存在时返回 ErrNotFound）
	TryDispatch(ctx context.Context, id, userID string) (bool, error)

	// CompleteTranscription 一个逻辑单元内写入 Transcript 并把状态置为 completed，
	// 任一写入失败则整体回滚
	CompleteTranscription(ctx context.Context, transcript *models.Transcript) error

	// GetTranscript 按音频 id 获取转录结果
	GetTranscript(ctx context.Context, audioID string) (*models.Transcript, error)

	// DeleteTranscript 删除转录结果（不存在时幂等返回 nil）
	DeleteTranscript(ctx context.Context, audioID string) error

	// Close 关闭存储连接
	Close() error
}
