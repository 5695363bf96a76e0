package storage

import (
	"context"
	"testing"
	"time"

	"github.com/z-wentao/audioflow/pkg/models"
)

func newAudio(id, userID string, status models.AudioStatus) *models.AudioFile {
	now := time.Now()
	return &models.AudioFile{
		ID:        id,
		UserID:    userID,
		ObjectKey: userID + "/" + id + ".mp3",
		Filename:  id + ".mp3",
		FileSize:  1024,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStoreUserScoping(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.CreateAudio(ctx, newAudio("a1", "alice", models.StatusUploaded)); err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}

	if _, err := store.GetAudio(ctx, "a1", "alice"); err != nil {
		t.Errorf("本人查询应该成功: %v", err)
	}

	// 其他用户看不到这条记录，表现为不存在而不是无权限
	if _, err := store.GetAudio(ctx, "a1", "bob"); err != ErrNotFound {
		t.Errorf("跨用户查询应该返回 ErrNotFound, got %v", err)
	}
	if err := store.DeleteAudio(ctx, "a1", "bob"); err != ErrNotFound {
		t.Errorf("跨用户删除应该返回 ErrNotFound, got %v", err)
	}
	if _, err := store.TryDispatch(ctx, "a1", "bob"); err != ErrNotFound {
		t.Errorf("跨用户重试应该返回 ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreListFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a1 := newAudio("a1", "alice", models.StatusCompleted)
	a1.CreatedAt = time.Now().Add(-2 * time.Hour)
	a2 := newAudio("a2", "alice", models.StatusFailed)
	a2.CreatedAt = time.Now().Add(-1 * time.Hour)
	a3 := newAudio("a3", "bob", models.StatusCompleted)

	for _, a := range []*models.AudioFile{a1, a2, a3} {
		if err := store.CreateAudio(ctx, a); err != nil {
			t.Fatalf("CreateAudio: %v", err)
		}
	}

	items, err := store.ListAudio(ctx, "alice", nil, 0, 100)
	if err != nil {
		t.Fatalf("ListAudio: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("alice 应该有 2 条记录, got %d", len(items))
	}
	// 按创建时间倒序
	if items[0].ID != "a2" || items[1].ID != "a1" {
		t.Errorf("排序错误: %s, %s", items[0].ID, items[1].ID)
	}

	failed := models.StatusFailed
	items, err = store.ListAudio(ctx, "alice", &failed, 0, 100)
	if err != nil {
		t.Fatalf("ListAudio: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a2" {
		t.Errorf("状态过滤错误: %+v", items)
	}

	// 分页
	items, _ = store.ListAudio(ctx, "alice", nil, 1, 100)
	if len(items) != 1 {
		t.Errorf("skip=1 应该返回 1 条, got %d", len(items))
	}
	items, _ = store.ListAudio(ctx, "alice", nil, 10, 100)
	if len(items) != 0 {
		t.Errorf("skip 超出范围应该返回空列表, got %d", len(items))
	}
}

func TestMemoryStoreTryDispatchCAS(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.CreateAudio(ctx, newAudio("a1", "alice", models.StatusFailed)); err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}

	// failed -> processing 成功
	ok, err := store.TryDispatch(ctx, "a1", "alice")
	if err != nil || !ok {
		t.Fatalf("第一次 TryDispatch 应该成功: ok=%v err=%v", ok, err)
	}

	audio, _ := store.GetAudio(ctx, "a1", "alice")
	if audio.Status != models.StatusProcessing {
		t.Errorf("状态应该是 processing, got %s", audio.Status)
	}

	// processing 期间再次触发被拒绝
	ok, err = store.TryDispatch(ctx, "a1", "alice")
	if err != nil {
		t.Fatalf("TryDispatch: %v", err)
	}
	if ok {
		t.Error("processing 期间的 TryDispatch 应该返回 false")
	}

	// 失败后可以再次触发
	if err := store.MarkFailed(ctx, "a1"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	ok, err = store.TryDispatch(ctx, "a1", "alice")
	if err != nil || !ok {
		t.Errorf("failed 状态下 TryDispatch 应该成功: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreCompleteTranscription(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.CreateAudio(ctx, newAudio("a1", "alice", models.StatusProcessing)); err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}

	transcript := &models.Transcript{
		ID:          "t1",
		AudioFileID: "a1",
		Text:        "hello world",
		Words: []models.Word{
			{Word: "hello", Start: 0, End: 0.5},
			{Word: "world", Start: 0.5, End: 1.0},
		},
	}
	if err := store.CompleteTranscription(ctx, transcript); err != nil {
		t.Fatalf("CompleteTranscription: %v", err)
	}

	audio, _ := store.GetAudio(ctx, "a1", "alice")
	if audio.Status != models.StatusCompleted {
		t.Errorf("状态应该是 completed, got %s", audio.Status)
	}

	got, err := store.GetTranscript(ctx, "a1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.Text != "hello world" || len(got.Words) != 2 {
		t.Errorf("转录结果不符: %+v", got)
	}

	// 重试后重新写入会覆盖旧结果，一个文件始终至多一条
	redo := &models.Transcript{ID: "t2", AudioFileID: "a1", Text: "redo"}
	if err := store.CompleteTranscription(ctx, redo); err != nil {
		t.Fatalf("第二次 CompleteTranscription: %v", err)
	}
	got, _ = store.GetTranscript(ctx, "a1")
	if got.ID != "t2" || got.Text != "redo" {
		t.Errorf("重试后应该看到新结果: %+v", got)
	}

	// 音频记录不存在时整体放弃
	orphan := &models.Transcript{ID: "t3", AudioFileID: "missing"}
	if err := store.CompleteTranscription(ctx, orphan); err != ErrNotFound {
		t.Errorf("孤儿转录应该返回 ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.CreateAudio(ctx, newAudio("a1", "alice", models.StatusCompleted)); err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}
	if err := store.CompleteTranscription(ctx, &models.Transcript{ID: "t1", AudioFileID: "a1", Text: "x"}); err != nil {
		t.Fatalf("CompleteTranscription: %v", err)
	}

	if err := store.DeleteAudio(ctx, "a1", "alice"); err != nil {
		t.Fatalf("DeleteAudio: %v", err)
	}

	if _, err := store.GetAudio(ctx, "a1", "alice"); err != ErrNotFound {
		t.Errorf("记录应该已删除, got %v", err)
	}
	if _, err := store.GetTranscript(ctx, "a1"); err != ErrNotFound {
		t.Errorf("转录结果应该被级联删除, got %v", err)
	}

	// 删除转录结果幂等
	if err := store.DeleteTranscript(ctx, "a1"); err != nil {
		t.Errorf("DeleteTranscript 应该幂等: %v", err)
	}
}
