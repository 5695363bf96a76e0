package queue

import (
	"fmt"

	"github.com/z-wentao/audioflow/pkg/models"
)

// MemoryQueue 基于 Channel 的内存队列实现
type MemoryQueue struct {
	queue chan *models.TranscriptionTask
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	return &MemoryQueue{
		queue: make(chan *models.TranscriptionTask, bufferSize),
	}
}

// Enqueue 将任务加入队列
func (mq *MemoryQueue) Enqueue(task *models.TranscriptionTask) error {
	select {
	case mq.queue <- task:
		return nil
	default:
		return fmt.Errorf("队列已满")
	}
}

// Dequeue 从队列取出任务（阻塞等待）
func (mq *MemoryQueue) Dequeue() (*models.TranscriptionTask, error) {
	task, ok := <-mq.queue
	if !ok {
		return nil, fmt.Errorf("队列已关闭")
	}
	return task, nil
}

// Ack 内存队列取出即消费，无需确认
func (mq *MemoryQueue) Ack(task *models.TranscriptionTask) error {
	return nil
}

// Nack 内存队列不支持重新入队
func (mq *MemoryQueue) Nack(task *models.TranscriptionTask, requeue bool) error {
	return nil
}

// Close 关闭队列
func (mq *MemoryQueue) Close() error {
	close(mq.queue)
	return nil
}
