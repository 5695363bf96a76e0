package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/z-wentao/audioflow/pkg/models"
	"github.com/z-wentao/audioflow/pkg/objectstore"
	"github.com/z-wentao/audioflow/pkg/storage"
	"github.com/z-wentao/audioflow/pkg/transcriber"
)

// Orchestrator 转录编排器
//
// 驱动单个音频文件走完状态机：
//
//	uploaded -> processing -> completed / failed
//
// 一次运行内步骤严格串行，每个状态变更都立即单独提交，
// 事务不跨越任何外部网络调用。步骤 3/4/6 的任何失败对本次运行
// 都是终态（置为 failed 后停止），不做自动重试——重试是独立的
// 用户触发操作
type Orchestrator struct {
	store    storage.Store
	blobs    objectstore.Store
	provider transcriber.Provider

	// 可选的演示标注钩子，生产环境为 nil
	annotator *transcriber.SimulatedAnnotator

	fetchTimeout      time.Duration // 对象存储下载超时（快速失败）
	transcribeTimeout time.Duration // 转录请求超时（大文件可能需要几十秒）
}

// New 创建编排器
func New(
	store storage.Store,
	blobs objectstore.Store,
	provider transcriber.Provider,
	annotator *transcriber.SimulatedAnnotator,
	fetchTimeout, transcribeTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		store:             store,
		blobs:             blobs,
		provider:          provider,
		annotator:         annotator,
		fetchTimeout:      fetchTimeout,
		transcribeTimeout: transcribeTimeout,
	}
}

// Run 执行一次转录运行
// 运行结束后记录处于 completed（且恰有一条 Transcript）或 failed，
// 二者必居其一；唯一的例外是进程在运行中途崩溃，记录会停在 processing
func (o *Orchestrator) Run(ctx context.Context, task *models.TranscriptionTask) error {
	// 1. 加载记录；不存在说明文件已被用户并发删除，静默放弃
	audio, err := o.store.GetAudioByID(ctx, task.AudioID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("⚠️ 音频记录 %s 不存在，可能已被删除，放弃转录", task.AudioID)
			return nil
		}
		return fmt.Errorf("加载音频记录失败: %w", err)
	}

	// 2. 立即提交 processing 状态（持久化检查点）：
	//    即使进程随后崩溃，记录也会停在 processing 而不是 uploaded
	if err := o.store.MarkProcessing(ctx, audio.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("⚠️ 音频记录 %s 已被并发删除，放弃转录", task.AudioID)
			return nil
		}
		return fmt.Errorf("更新状态失败: %w", err)
	}

	log.Printf("📝 开始转录: %s (%s)", task.Filename, task.AudioID)
	startTime := time.Now()

	// 3. 从对象存储下载音频
	fetchCtx, cancelFetch := context.WithTimeout(ctx, o.fetchTimeout)
	data, err := o.blobs.Fetch(fetchCtx, task.ObjectKey)
	cancelFetch()
	if err != nil {
		return o.fail(ctx, audio.ID, fmt.Errorf("下载音频失败: %w", err))
	}
	log.Printf("✓ 已从对象存储下载 %d 字节: %s", len(data), task.ObjectKey)

	// 4. 调用转录服务（请求单词级时间戳）
	transcribeCtx, cancelTranscribe := context.WithTimeout(ctx, o.transcribeTimeout)
	result, err := o.provider.Transcribe(transcribeCtx, data, task.Filename)
	cancelTranscribe()
	if err != nil {
		return o.fail(ctx, audio.ID, fmt.Errorf("转录失败: %w", err))
	}
	log.Printf("✓ 转录服务返回 %d 字符, %d 个单词", len(result.Text), len(result.Words))

	// 5. 演示标注钩子（默认关闭）
	if o.annotator != nil {
		o.annotator.Annotate(result.Words)
	}

	// 6. 同一个逻辑单元内写入 Transcript 并置为 completed，
	//    任一写入失败则整体回滚、本次运行按失败处理
	now := time.Now()
	transcript := &models.Transcript{
		ID:          uuid.New().String(),
		AudioFileID: audio.ID,
		Text:        result.Text,
		Words:       result.Words,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.CompleteTranscription(ctx, transcript); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("⚠️ 音频记录 %s 已被并发删除，丢弃转录结果", audio.ID)
			return nil
		}
		return o.fail(ctx, audio.ID, fmt.Errorf("保存转录结果失败: %w", err))
	}

	log.Printf("🎉 转录完成: %s, 耗时 %.2f 秒", task.AudioID, time.Since(startTime).Seconds())
	return nil
}

// fail 终态失败：提交 failed 状态后停止
func (o *Orchestrator) fail(ctx context.Context, audioID string, cause error) error {
	log.Printf("❌ 转录失败: %s: %v", audioID, cause)
	if err := o.store.MarkFailed(ctx, audioID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("❌ 更新失败状态失败: %s: %v", audioID, err)
	}
	return cause
}
