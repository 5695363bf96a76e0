package queue

import "github.com/z-wentao/audioflow/pkg/models"

// Queue 转录任务队列接口
// 上传和重试都只向队列投递任务，由固定数量的 Worker 消费，
// 并发的外部服务调用上限由 Worker 数量兜底（背压）
type Queue interface {
	// Enqueue 将任务加入队列
	Enqueue(task *models.TranscriptionTask) error

	// Dequeue 从队列取出任务（阻塞）
	Dequeue() (*models.TranscriptionTask, error)

	// Ack 确认消息（任务已到达终态）
	Ack(task *models.TranscriptionTask) error

	// Nack 拒绝消息
	// requeue: 是否重新入队
	Nack(task *models.TranscriptionTask, requeue bool) error

	// Close 关闭队列
	Close() error
}
