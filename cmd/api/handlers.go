package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/z-wentao/audioflow/pkg/auth"
	"github.com/z-wentao/audioflow/pkg/media"
	"github.com/z-wentao/audioflow/pkg/models"
	"github.com/z-wentao/audioflow/pkg/storage"
	"github.com/z-wentao/audioflow/pkg/transcriber"
)

// handlePing 健康检查
func (app *App) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// uploadResult 单个文件的上传结果
type uploadResult struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason,omitempty"`
}

// handleUpload 批量上传音频文件
// 每个文件独立校验、独立成败，一个文件失败不影响同批其他文件；
// 全部失败时返回 400 并汇总各文件的失败原因
func (app *App) handleUpload(c *gin.Context) {
	userID := auth.UserID(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}
	files := form.File["audio"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	if len(files) > app.config.Server.MaxBatchFiles {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Maximum %d files per upload", app.config.Server.MaxBatchFiles),
		})
		return
	}

	var uploaded []gin.H
	var failures []uploadResult

	for _, fh := range files {
		audio, reason := app.uploadOne(c, userID, fh)
		if reason != "" {
			failures = append(failures, uploadResult{Filename: fh.Filename, Reason: reason})
			continue
		}
		uploaded = append(uploaded, app.audioResponse(c, audio))
	}

	// 全部失败：按文件汇总原因返回 400
	if len(uploaded) == 0 {
		parts := make([]string, 0, len(failures))
		for _, f := range failures {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Filename, f.Reason))
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "All uploads failed - " + strings.Join(parts, "; "),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uploaded": uploaded,
		"failures": failures,
	})
}

// uploadOne 处理单个文件：校验 -> 写对象存储 -> 写记录 -> 入队
// 返回的 reason 非空表示该文件被拒绝（原因直接展示给用户）
func (app *App) uploadOne(c *gin.Context, userID string, fh *multipart.FileHeader) (*models.AudioFile, string) {
	// 1. 校验：必须是音频类型
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") {
		return nil, "Not an audio file"
	}

	// 2. 校验：大小上限
	if fh.Size > app.config.Server.MaxUploadSize {
		return nil, fmt.Sprintf("File too large (max %dMB)", app.config.Server.MaxUploadSize/(1024*1024))
	}

	f, err := fh.Open()
	if err != nil {
		log.Printf("❌ 打开上传文件失败: %s: %v", fh.Filename, err)
		return nil, "Failed to read file"
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		log.Printf("❌ 读取上传文件失败: %s: %v", fh.Filename, err)
		return nil, "Failed to read file"
	}

	// 3. 校验：不接受空文件
	if len(data) == 0 {
		return nil, "Empty file"
	}

	// 4. 写入对象存储，key 全局唯一且永不复用
	ext := filepath.Ext(fh.Filename)
	objectKey := fmt.Sprintf("%s/%s%s", userID, uuid.New().String(), ext)

	if err := app.blobs.Upload(c.Request.Context(), objectKey, data, contentType); err != nil {
		log.Printf("❌ 上传到对象存储失败: %s: %v", fh.Filename, err)
		return nil, "Upload to storage failed"
	}

	// 5. 创建记录（初始状态 uploaded）
	now := time.Now()
	audio := &models.AudioFile{
		ID:        uuid.New().String(),
		UserID:    userID,
		ObjectKey: objectKey,
		Filename:  fh.Filename,
		FileSize:  int64(len(data)),
		Duration:  media.ExtractDuration(data, fh.Filename),
		Status:    models.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := app.store.CreateAudio(c.Request.Context(), audio); err != nil {
		log.Printf("❌ 创建音频记录失败: %s: %v", fh.Filename, err)
		// 记录没写成，回收已写入的 blob（尽力而为）
		if derr := app.blobs.Delete(c.Request.Context(), objectKey); derr != nil {
			log.Printf("⚠️ 回收对象失败: %s: %v", objectKey, derr)
		}
		return nil, "Failed to save record"
	}

	// 6. 投递转录任务
	task := &models.TranscriptionTask{
		AudioID:   audio.ID,
		ObjectKey: audio.ObjectKey,
		Filename:  audio.Filename,
	}
	if err := app.queue.Enqueue(task); err != nil {
		// 入队失败不算上传失败：记录停在 uploaded，用户可以手动重试
		log.Printf("⚠️ 投递转录任务失败: %s: %v", audio.ID, err)
	}

	log.Printf("✓ 上传成功: %s -> %s (%d 字节)", fh.Filename, objectKey, len(data))
	return audio, ""
}

// handleListAudio 按用户分页列出音频文件
func (app *App) handleListAudio(c *gin.Context) {
	userID := auth.UserID(c)

	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if skip < 0 {
		skip = 0
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var status *models.AudioStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid status: %s", raw)})
			return
		}
		status = &parsed
	}

	items, err := app.store.ListAudio(c.Request.Context(), userID, status, skip, limit)
	if err != nil {
		log.Printf("❌ 查询音频列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	resp := make([]gin.H, 0, len(items))
	for _, audio := range items {
		resp = append(resp, app.audioResponse(c, audio))
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetAudio 获取单个音频文件
func (app *App) handleGetAudio(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	audio, err := app.store.GetAudio(c.Request.Context(), id, userID)
	if err != nil {
		app.notFoundOrError(c, err, "Audio file not found")
		return
	}
	c.JSON(http.StatusOK, app.audioResponse(c, audio))
}

// handleDeleteAudio 删除音频文件
// 级联删除转录结果，并尽力删除对象存储里的 blob
func (app *App) handleDeleteAudio(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	audio, err := app.store.GetAudio(c.Request.Context(), id, userID)
	if err != nil {
		app.notFoundOrError(c, err, "Audio file not found")
		return
	}

	// 先删 blob（尽力而为，失败不阻塞记录删除）
	if err := app.blobs.Delete(c.Request.Context(), audio.ObjectKey); err != nil {
		log.Printf("⚠️ 删除对象失败: %s: %v", audio.ObjectKey, err)
	}

	if err := app.store.DeleteAudio(c.Request.Context(), id, userID); err != nil {
		app.notFoundOrError(c, err, "Audio file not found")
		return
	}

	log.Printf("✓ 已删除音频: %s (%s)", audio.Filename, id)
	c.JSON(http.StatusOK, gin.H{"message": "Audio file deleted successfully"})
}

// handleGetTranscript 获取转录结果
// 任何状态下都返回 200，transcript 字段在没有结果时为 null，
// 前端轮询 status 字段判断是否完成
func (app *App) handleGetTranscript(c *gin.Context) {
	userID := auth.UserID(c)
	audioID := c.Param("audio_id")

	audio, err := app.store.GetAudio(c.Request.Context(), audioID, userID)
	if err != nil {
		app.notFoundOrError(c, err, "Audio file not found")
		return
	}

	resp := gin.H{
		"audio_id":   audio.ID,
		"status":     audio.Status,
		"transcript": nil,
	}

	transcript, err := app.store.GetTranscript(c.Request.Context(), audioID)
	if err == nil {
		resp["transcript"] = gin.H{
			"id":        transcript.ID,
			"text":      transcript.Text,
			"words":     transcript.Words,
			"createdAt": transcript.CreatedAt,
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Printf("❌ 查询转录结果失败: %s: %v", audioID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleRetryTranscription 重试转录
// 用 CAS 状态切换保证同一文件同时只有一次转录在进行；
// 旧的转录结果在重新入队前删除，避免新旧结果短暂并存
func (app *App) handleRetryTranscription(c *gin.Context) {
	userID := auth.UserID(c)
	audioID := c.Param("audio_id")

	audio, err := app.store.GetAudio(c.Request.Context(), audioID, userID)
	if err != nil {
		app.notFoundOrError(c, err, "Audio file not found")
		return
	}

	ok, err := app.store.TryDispatch(c.Request.Context(), audioID, userID)
	if err != nil {
		app.notFoundOrError(c, err, "Audio file not found")
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Transcription already in progress"})
		return
	}

	// 清掉旧结果，新一次运行会写入新的 Transcript
	if err := app.store.DeleteTranscript(c.Request.Context(), audioID); err != nil {
		log.Printf("⚠️ 删除旧转录结果失败: %s: %v", audioID, err)
	}

	task := &models.TranscriptionTask{
		AudioID:   audio.ID,
		ObjectKey: audio.ObjectKey,
		Filename:  audio.Filename,
	}
	if err := app.queue.Enqueue(task); err != nil {
		log.Printf("❌ 重试入队失败: %s: %v", audioID, err)
		// 状态已经切到 processing 但任务没有派发出去，
		// 回滚到 failed，否则这条记录会永远卡在 processing 无法重试
		if rbErr := app.store.MarkFailed(c.Request.Context(), audioID); rbErr != nil {
			log.Printf("❌ 回滚重试状态失败: %s: %v", audioID, rbErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transcription"})
		return
	}

	log.Printf("🔄 重新转录: %s (%s)", audio.Filename, audioID)
	c.JSON(http.StatusOK, gin.H{"message": "Transcription started", "status": "processing"})
}

// handleSubtitle 导出字幕（SRT 或 VTT）
func (app *App) handleSubtitle(c *gin.Context) {
	userID := auth.UserID(c)
	audioID := c.Param("audio_id")

	audio, err := app.store.GetAudio(c.Request.Context(), audioID, userID)
	if err != nil {
		app.notFoundOrError(c, err, "Audio file not found")
		return
	}

	transcript, err := app.store.GetTranscript(c.Request.Context(), audioID)
	if err != nil {
		app.notFoundOrError(c, err, "Transcript not found")
		return
	}

	format := c.DefaultQuery("format", "srt")
	base := strings.TrimSuffix(audio.Filename, filepath.Ext(audio.Filename))

	switch format {
	case "srt":
		c.Header("Content-Type", "application/x-subrip; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.srt"`, base))
		c.Status(http.StatusOK)
		if err := transcriber.GenerateSRT(c.Writer, transcript.Words); err != nil {
			log.Printf("❌ 生成 SRT 失败: %s: %v", audioID, err)
		}
	case "vtt":
		c.Header("Content-Type", "text/vtt; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.vtt"`, base))
		c.Status(http.StatusOK)
		if err := transcriber.GenerateVTT(c.Writer, transcript.Words); err != nil {
			log.Printf("❌ 生成 VTT 失败: %s: %v", audioID, err)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid format: %s", format)})
	}
}

// audioResponse 序列化音频记录，附带限时签名下载 URL
func (app *App) audioResponse(c *gin.Context, audio *models.AudioFile) gin.H {
	url, err := app.blobs.PresignedURL(c.Request.Context(), audio.ObjectKey)
	if err != nil {
		log.Printf("⚠️ 生成签名 URL 失败: %s: %v", audio.ObjectKey, err)
		url = ""
	}
	return gin.H{
		"id":         audio.ID,
		"filename":   audio.Filename,
		"url":        url,
		"size":       audio.FileSize,
		"duration":   audio.Duration,
		"status":     audio.Status,
		"uploadedAt": audio.CreatedAt,
	}
}

// notFoundOrError 把 ErrNotFound 映射成 404，其余映射成 500
func (app *App) notFoundOrError(c *gin.Context, err error, msg string) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return
	}
	log.Printf("❌ 存储错误: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
