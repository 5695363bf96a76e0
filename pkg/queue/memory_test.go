package queue

import (
	"testing"

	"github.com/z-wentao/audioflow/pkg/models"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(10)

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := q.Enqueue(&models.TranscriptionTask{AudioID: id}); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}

	for _, want := range []string{"a1", "a2", "a3"} {
		task, err := q.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if task.AudioID != want {
			t.Errorf("顺序错误: want %s, got %s", want, task.AudioID)
		}
		if err := q.Ack(task); err != nil {
			t.Errorf("Ack: %v", err)
		}
	}
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)

	if err := q.Enqueue(&models.TranscriptionTask{AudioID: "a1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// 缓冲满时不阻塞而是立即报错
	if err := q.Enqueue(&models.TranscriptionTask{AudioID: "a2"}); err == nil {
		t.Error("队列满时 Enqueue 应该报错")
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// 关闭后 Dequeue 返回错误，阻塞中的 Worker 由此退出
	if _, err := q.Dequeue(); err == nil {
		t.Error("关闭后 Dequeue 应该返回错误")
	}
}
