package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/z-wentao/audioflow/pkg/models"
)

// CachedStore Redis 读缓存 + 持久化存储的两层结构。
// 客户端会高频轮询转录状态，音频记录按 id 缓存在 Redis 里，
// 所有写入直达底层存储并使缓存失效，保证每次状态变更立即持久化。
type CachedStore struct {
	db     Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore 创建带 Redis 缓存的存储
func NewCachedStore(db Store, addr, password string, redisDB int, ttl time.Duration) (*CachedStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       redisDB,
	})

	// 测试连接
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &CachedStore{db: db, client: client, ttl: ttl}, nil
}

// getKey 生成 Redis key
// 格式: "audioflow:audio:{id}"
func (s *CachedStore) getKey(id string) string {
	return fmt.Sprintf("audioflow:audio:%s", id)
}

func (s *CachedStore) cacheSet(ctx context.Context, audio *models.AudioFile) {
	data, err := json.Marshal(audio)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, s.getKey(audio.ID), data, s.ttl).Err(); err != nil {
		log.Printf("⚠️ Redis 写入失败: %v", err)
	}
}

func (s *CachedStore) cacheGet(ctx context.Context, id string) (*models.AudioFile, bool) {
	data, err := s.client.Get(ctx, s.getKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var audio models.AudioFile
	if err := json.Unmarshal(data, &audio); err != nil {
		return nil, false
	}
	return &audio, true
}

func (s *CachedStore) cacheDel(ctx context.Context, id string) {
	if err := s.client.Del(ctx, s.getKey(id)).Err(); err != nil {
		log.Printf("⚠️ Redis 删除失败: %v", err)
	}
}

func (s *CachedStore) CreateAudio(ctx context.Context, audio *models.AudioFile) error {
	if err := s.db.CreateAudio(ctx, audio); err != nil {
		return err
	}
	s.cacheSet(ctx, audio)
	return nil
}

// GetAudio 优先读缓存；缓存里是完整记录，归属检查在这里补上，
// 保证跨用户访问和数据库路径一样返回 ErrNotFound
func (s *CachedStore) GetAudio(ctx context.Context, id, userID string) (*models.AudioFile, error) {
	if audio, ok := s.cacheGet(ctx, id); ok {
		if audio.UserID != userID {
			return nil, ErrNotFound
		}
		return audio, nil
	}

	audio, err := s.db.GetAudio(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, audio)
	return audio, nil
}

func (s *CachedStore) GetAudioByID(ctx context.Context, id string) (*models.AudioFile, error) {
	if audio, ok := s.cacheGet(ctx, id); ok {
		return audio, nil
	}
	audio, err := s.db.GetAudioByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, audio)
	return audio, nil
}

// ListAudio 列表查询直接走数据库（分页 + 条件过滤不适合按 id 的缓存）
func (s *CachedStore) ListAudio(ctx context.Context, userID string, status *models.AudioStatus, skip, limit int) ([]*models.AudioFile, error) {
	return s.db.ListAudio(ctx, userID, status, skip, limit)
}

func (s *CachedStore) DeleteAudio(ctx context.Context, id, userID string) error {
	if err := s.db.DeleteAudio(ctx, id, userID); err != nil {
		return err
	}
	s.cacheDel(ctx, id)
	return nil
}

func (s *CachedStore) MarkProcessing(ctx context.Context, id string) error {
	if err := s.db.MarkProcessing(ctx, id); err != nil {
		return err
	}
	s.cacheDel(ctx, id)
	return nil
}

func (s *CachedStore) MarkFailed(ctx context.Context, id string) error {
	if err := s.db.MarkFailed(ctx, id); err != nil {
		return err
	}
	s.cacheDel(ctx, id)
	return nil
}

func (s *CachedStore) TryDispatch(ctx context.Context, id, userID string) (bool, error) {
	ok, err := s.db.TryDispatch(ctx, id, userID)
	if err != nil {
		return false, err
	}
	s.cacheDel(ctx, id)
	return ok, nil
}

func (s *CachedStore) CompleteTranscription(ctx context.Context, transcript *models.Transcript) error {
	if err := s.db.CompleteTranscription(ctx, transcript); err != nil {
		return err
	}
	s.cacheDel(ctx, transcript.AudioFileID)
	return nil
}

func (s *CachedStore) GetTranscript(ctx context.Context, audioID string) (*models.Transcript, error) {
	return s.db.GetTranscript(ctx, audioID)
}

func (s *CachedStore) DeleteTranscript(ctx context.Context, audioID string) error {
	return s.db.DeleteTranscript(ctx, audioID)
}

// Close 关闭缓存和底层存储
func (s *CachedStore) Close() error {
	if err := s.client.Close(); err != nil {
		log.Printf("⚠️ 关闭 Redis 失败: %v", err)
	}
	return s.db.Close()
}
