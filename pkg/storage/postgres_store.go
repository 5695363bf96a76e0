package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/z-wentao/audioflow/pkg/models"
)

// PostgresStore PostgreSQL 存储实现
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 创建 PostgreSQL 存储
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return &PostgresStore{db: db}, nil
}

// EnsureSchema 初始化表结构（幂等）
// transcripts.audio_file_id 的唯一约束保证一个音频至多一条转录记录
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audio_files (
	    id         VARCHAR(36) PRIMARY KEY,
	    user_id    VARCHAR(36)  NOT NULL,
	    object_key VARCHAR(1024) NOT NULL UNIQUE,
	    filename   VARCHAR(255) NOT NULL,
	    file_size  BIGINT       NOT NULL,
	    duration   INTEGER,
	    status     VARCHAR(16)  NOT NULL DEFAULT 'uploaded',
	    created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	    updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_audio_files_user ON audio_files (user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS transcripts (
	    id            VARCHAR(36) PRIMARY KEY,
	    audio_file_id VARCHAR(36) NOT NULL UNIQUE
	        REFERENCES audio_files (id) ON DELETE CASCADE,
	    text          TEXT  NOT NULL,
	    words         JSONB,
	    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化表结构失败: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAudio(ctx context.Context, audio *models.AudioFile) error {
	query := `
	INSERT INTO audio_files (id, user_id, object_key, filename, file_size, duration, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		audio.ID,
		audio.UserID,
		audio.ObjectKey,
		audio.Filename,
		audio.FileSize,
		audio.Duration,
		audio.Status,
		audio.CreatedAt,
		audio.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存音频记录失败: %w", err)
	}
	return nil
}

const audioColumns = `id, user_id, object_key, filename, file_size, duration, status, created_at, updated_at`

func scanAudio(row interface{ Scan(...any) error }) (*models.AudioFile, error) {
	var audio models.AudioFile
	var duration sql.NullInt64
	err := row.Scan(
		&audio.ID,
		&audio.UserID,
		&audio.ObjectKey,
		&audio.Filename,
		&audio.FileSize,
		&duration,
		&audio.Status,
		&audio.CreatedAt,
		&audio.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		audio.Duration = &d
	}
	return &audio, nil
}

func (s *PostgresStore) GetAudio(ctx context.Context, id, userID string) (*models.AudioFile, error) {
	query := `SELECT ` + audioColumns + ` FROM audio_files WHERE id = $1 AND user_id = $2`
	audio, err := scanAudio(s.db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询音频记录失败: %w", err)
	}
	return audio, nil
}

func (s *PostgresStore) GetAudioByID(ctx context.Context, id string) (*models.AudioFile, error) {
	query := `SELECT ` + audioColumns + ` FROM audio_files WHERE id = $1`
	audio, err := scanAudio(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询音频记录失败: %w", err)
	}
	return audio, nil
}

func (s *PostgresStore) ListAudio(ctx context.Context, userID string, status *models.AudioStatus, skip, limit int) ([]*models.AudioFile, error) {
	query := `SELECT ` + audioColumns + ` FROM audio_files WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC OFFSET %d LIMIT %d`, skip, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询音频列表失败: %w", err)
	}
	defer rows.Close()

	audios := make([]*models.AudioFile, 0)
	for rows.Next() {
		audio, err := scanAudio(rows)
		if err != nil {
			return nil, fmt.Errorf("读取音频记录失败: %w", err)
		}
		audios = append(audios, audio)
	}
	return audios, rows.Err()
}

func (s *PostgresStore) DeleteAudio(ctx context.Context, id, userID string) error {
	// transcripts 上的外键 ON DELETE CASCADE 负责级联删除转录记录
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM audio_files WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("删除音频记录失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取删除结果失败: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, models.StatusProcessing)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, models.StatusFailed)
}

func (s *PostgresStore) setStatus(ctx context.Context, id string, status models.AudioStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE audio_files SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("更新状态失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取更新结果失败: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TryDispatch 把状态检查和切换合并为一条带条件的 UPDATE，
// 并发重试只会有一个成功，消除了先检查后派发的竞态
func (s *PostgresStore) TryDispatch(ctx context.Context, id, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
	UPDATE audio_files SET status = $3, updated_at = NOW()
	WHERE id = $1 AND user_id = $2 AND status <> $3
	`, id, userID, models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("更新状态失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("获取更新结果失败: %w", err)
	}
	if affected == 0 {
		// 要么记录不存在，要么正在转录中
		if _, err := s.GetAudio(ctx, id, userID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// CompleteTranscription 在同一个事务里写入转录结果并把状态置为 completed。
// 转录记录使用 UPSERT：配合 audio_file_id 的唯一约束，
// 即使出现并发运行也不会产生第二条记录
func (s *PostgresStore) CompleteTranscription(ctx context.Context, transcript *models.Transcript) error {
	wordsJSON, err := json.Marshal(transcript.Words)
	if err != nil {
		return fmt.Errorf("序列化 words 失败: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO transcripts (id, audio_file_id, text, words, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (audio_file_id)
	DO UPDATE SET text = EXCLUDED.text, words = EXCLUDED.words, updated_at = EXCLUDED.updated_at
	`,
		transcript.ID,
		transcript.AudioFileID,
		transcript.Text,
		wordsJSON,
		transcript.CreatedAt,
		transcript.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存转录结果失败: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE audio_files SET status = $2, updated_at = NOW() WHERE id = $1`,
		transcript.AudioFileID, models.StatusCompleted)
	if err != nil {
		return fmt.Errorf("更新状态失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取更新结果失败: %w", err)
	}
	if affected == 0 {
		// 音频记录已被并发删除，整体回滚
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTranscript(ctx context.Context, audioID string) (*models.Transcript, error) {
	var t models.Transcript
	var wordsJSON []byte
	err := s.db.QueryRowContext(ctx, `
	SELECT id, audio_file_id, text, words, created_at, updated_at
	FROM transcripts WHERE audio_file_id = $1
	`, audioID).Scan(&t.ID, &t.AudioFileID, &t.Text, &wordsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询转录结果失败: %w", err)
	}
	if len(wordsJSON) > 0 {
		if err := json.Unmarshal(wordsJSON, &t.Words); err != nil {
			return nil, fmt.Errorf("反序列化 words 失败: %w", err)
		}
	}
	return &t, nil
}

func (s *PostgresStore) DeleteTranscript(ctx context.Context, audioID string) error {
	// 不存在时幂等成功
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE audio_file_id = $1`, audioID); err != nil {
		return fmt.Errorf("删除转录结果失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
