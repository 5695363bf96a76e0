package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/z-wentao/audioflow/pkg/models"
)

// MemoryStore 内存存储实现（本地开发和测试用）
// 使用 RWMutex 保证并发安全，语义与 PostgresStore 保持一致
type MemoryStore struct {
	mu          sync.RWMutex
	audios      map[string]*models.AudioFile
	transcripts map[string]*models.Transcript // key 为 audio_file_id
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		audios:      make(map[string]*models.AudioFile),
		transcripts: make(map[string]*models.Transcript),
	}
}

func cloneAudio(a *models.AudioFile) *models.AudioFile {
	c := *a
	if a.Duration != nil {
		d := *a.Duration
		c.Duration = &d
	}
	return &c
}

func cloneTranscript(t *models.Transcript) *models.Transcript {
	c := *t
	c.Words = append([]models.Word(nil), t.Words...)
	return &c
}

func (s *MemoryStore) CreateAudio(_ context.Context, audio *models.AudioFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audios[audio.ID] = cloneAudio(audio)
	return nil
}

func (s *MemoryStore) GetAudio(_ context.Context, id, userID string) (*models.AudioFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	audio, ok := s.audios[id]
	if !ok || audio.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneAudio(audio), nil
}

func (s *MemoryStore) GetAudioByID(_ context.Context, id string) (*models.AudioFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	audio, ok := s.audios[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAudio(audio), nil
}

func (s *MemoryStore) ListAudio(_ context.Context, userID string, status *models.AudioStatus, skip, limit int) ([]*models.AudioFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.AudioFile, 0)
	for _, audio := range s.audios {
		if audio.UserID != userID {
			continue
		}
		if status != nil && audio.Status != *status {
			continue
		}
		matched = append(matched, audio)
	}

	// 按创建时间倒序
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if skip >= len(matched) {
		return []*models.AudioFile{}, nil
	}
	matched = matched[skip:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	result := make([]*models.AudioFile, 0, len(matched))
	for _, audio := range matched {
		result = append(result, cloneAudio(audio))
	}
	return result, nil
}

func (s *MemoryStore) DeleteAudio(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio, ok := s.audios[id]
	if !ok || audio.UserID != userID {
		return ErrNotFound
	}
	delete(s.audios, id)
	delete(s.transcripts, id) // 级联删除
	return nil
}

func (s *MemoryStore) MarkProcessing(ctx context.Context, id string) error {
	return s.setStatus(id, models.StatusProcessing)
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string) error {
	return s.setStatus(id, models.StatusFailed)
}

func (s *MemoryStore) setStatus(id string, status models.AudioStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio, ok := s.audios[id]
	if !ok {
		return ErrNotFound
	}
	audio.Status = status
	audio.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) TryDispatch(_ context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio, ok := s.audios[id]
	if !ok || audio.UserID != userID {
		return false, ErrNotFound
	}
	if audio.Status == models.StatusProcessing {
		return false, nil
	}
	audio.Status = models.StatusProcessing
	audio.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) CompleteTranscription(_ context.Context, transcript *models.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio, ok := s.audios[transcript.AudioFileID]
	if !ok {
		// 音频记录已被并发删除，整体放弃
		return ErrNotFound
	}
	s.transcripts[transcript.AudioFileID] = cloneTranscript(transcript)
	audio.Status = models.StatusCompleted
	audio.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetTranscript(_ context.Context, audioID string) (*models.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transcripts[audioID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTranscript(t), nil
}

func (s *MemoryStore) DeleteTranscript(_ context.Context, audioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, audioID)
	return nil
}

// Close 关闭存储（内存存储无需关闭）
func (s *MemoryStore) Close() error {
	return nil
}
