package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	whisperAPIURL = "https://api.openai.com/v1/audio/transcriptions"
)

// WhisperClient OpenAI Whisper API 客户端（直连 HTTP）
// 使用 verbose_json + 单词级时间戳粒度；words 字段按原始 JSON 接收，
// 由 NormalizeWords 统一成标准形状
type WhisperClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewWhisperClient 创建 Whisper 客户端
func NewWhisperClient(apiKey string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// whisperResponse API 响应（verbose_json 格式）
type whisperResponse struct {
	Text     string            `json:"text"`
	Language string            `json:"language"`
	Words    []json.RawMessage `json:"words"` // 形状不固定，延迟解析
}

// Transcribe 转换音频为文字（包含单词级时间戳）
func (wc *WhisperClient) Transcribe(ctx context.Context, data []byte, filename string) (*Result, error) {
	// 1. 构造 multipart 表单
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("创建表单失败: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("写入音频数据失败: %v", err)
	}

	writer.WriteField("model", "whisper-1")

	// 使用 verbose_json 并请求单词级时间戳
	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("timestamp_granularities[]", "word")

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("关闭表单失败: %v", err)
	}

	// 2. 创建 HTTP 请求
	req, err := http.NewRequestWithContext(ctx, "POST", whisperAPIURL, body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+wc.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	// 3. 发送请求
	resp, err := wc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	// 4. 检查响应状态
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API 返回错误 (状态码 %d): %s", resp.StatusCode, string(bodyBytes))
	}

	// 5. 解析响应
	var whisperResp whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&whisperResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %v", err)
	}

	// 6. 归一化单词列表
	words, err := NormalizeWords(whisperResp.Words)
	if err != nil {
		return nil, fmt.Errorf("归一化单词列表失败: %v", err)
	}

	return &Result{
		Text:     whisperResp.Text,
		Language: whisperResp.Language,
		Words:    words,
	}, nil
}
