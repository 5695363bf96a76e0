package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/z-wentao/audioflow/pkg/models"
	"github.com/z-wentao/audioflow/pkg/objectstore"
	"github.com/z-wentao/audioflow/pkg/pipeline"
	"github.com/z-wentao/audioflow/pkg/queue"
	"github.com/z-wentao/audioflow/pkg/storage"
	"github.com/z-wentao/audioflow/pkg/transcriber"
)

type stubProvider struct {
	err error
}

func (p *stubProvider) Transcribe(_ context.Context, _ []byte, _ string) (*transcriber.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &transcriber.Result{Text: "ok"}, nil
}

func seedTask(t *testing.T, store *storage.MemoryStore, blobs *objectstore.MemoryStore, id string) *models.TranscriptionTask {
	t.Helper()
	ctx := context.Background()

	key := "alice/" + id + ".mp3"
	if err := blobs.Upload(ctx, key, []byte("audio"), "audio/mpeg"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	now := time.Now()
	audio := &models.AudioFile{
		ID: id, UserID: "alice", ObjectKey: key, Filename: id + ".mp3",
		FileSize: 5, Status: models.StatusUploaded, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateAudio(ctx, audio); err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}
	return &models.TranscriptionTask{AudioID: id, ObjectKey: key, Filename: audio.Filename}
}

// waitTerminal 轮询等待所有记录进入终态
func waitTerminal(t *testing.T, store *storage.MemoryStore, ids []string) map[string]models.AudioStatus {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		statuses := make(map[string]models.AudioStatus, len(ids))
		done := true
		for _, id := range ids {
			audio, err := store.GetAudioByID(ctx, id)
			if err != nil {
				t.Fatalf("GetAudioByID: %v", err)
			}
			statuses[id] = audio.Status
			if audio.Status != models.StatusCompleted && audio.Status != models.StatusFailed {
				done = false
			}
		}
		if done {
			return statuses
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("等待终态超时")
	return nil
}

func TestPoolProcessesTasks(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := objectstore.NewMemoryStore()
	q := queue.NewMemoryQueue(100)

	orch := pipeline.New(store, blobs, &stubProvider{}, nil, time.Second, time.Second)
	pool := NewPool(q, orch, 2)
	pool.Start()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("a%d", i)
		ids = append(ids, id)
		if err := q.Enqueue(seedTask(t, store, blobs, id)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	statuses := waitTerminal(t, store, ids)
	for id, status := range statuses {
		if status != models.StatusCompleted {
			t.Errorf("%s 应该是 completed, got %s", id, status)
		}
	}

	q.Close()
	pool.Stop()
}

func TestPoolMarksFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := objectstore.NewMemoryStore()
	q := queue.NewMemoryQueue(100)

	// 转录后端持续报错：任务进入 failed 而不是卡住或重投
	orch := pipeline.New(store, blobs, &stubProvider{err: errors.New("服务不可用")}, nil, time.Second, time.Second)
	pool := NewPool(q, orch, 2)
	pool.Start()

	task := seedTask(t, store, blobs, "a1")
	if err := q.Enqueue(task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	statuses := waitTerminal(t, store, []string{"a1"})
	if statuses["a1"] != models.StatusFailed {
		t.Errorf("a1 应该是 failed, got %s", statuses["a1"])
	}

	q.Close()
	pool.Stop()
}

// slowProvider 模拟耗时的转录请求，context 取消时立即中断
type slowProvider struct {
	delay time.Duration
}

func (p *slowProvider) Transcribe(ctx context.Context, _ []byte, _ string) (*transcriber.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.delay):
		return &transcriber.Result{Text: "ok"}, nil
	}
}

func TestPoolStopWaitsForInFlightRun(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := objectstore.NewMemoryStore()
	q := queue.NewMemoryQueue(10)

	orch := pipeline.New(store, blobs, &slowProvider{delay: 150 * time.Millisecond}, nil, time.Second, time.Second)
	pool := NewPool(q, orch, 1)
	pool.Start()

	if err := q.Enqueue(seedTask(t, store, blobs, "a1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// 等任务被 Worker 取走进入 processing
	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for {
		audio, err := store.GetAudioByID(ctx, "a1")
		if err != nil {
			t.Fatalf("GetAudioByID: %v", err)
		}
		if audio.Status == models.StatusProcessing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("等待任务开始超时")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// 运行进行中发起关停：在途的运行要提交完终态 Stop 才返回，
	// 而不是被取消后把记录留在 processing
	q.Close()
	pool.Stop()

	audio, err := store.GetAudioByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAudioByID: %v", err)
	}
	if audio.Status != models.StatusCompleted {
		t.Errorf("关停后在途任务应该以 completed 结束, got %s", audio.Status)
	}
}

func TestPoolStopsCleanly(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := objectstore.NewMemoryStore()
	q := queue.NewMemoryQueue(10)

	orch := pipeline.New(store, blobs, &stubProvider{}, nil, time.Second, time.Second)
	pool := NewPool(q, orch, 3)
	pool.Start()

	// 队列关闭解除 Dequeue 阻塞，Stop 应该很快返回
	q.Close()
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop 超时，Worker 没有退出")
	}
}
