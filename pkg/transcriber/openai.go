package transcriber

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/z-wentao/audioflow/pkg/models"
)

// SDKClient 基于 go-openai SDK 的转录后端
// 和 WhisperClient 实现同一个 Provider 接口，由配置选择；
// SDK 返回的是强类型结构，归一化由类型系统完成
type SDKClient struct {
	client *openai.Client
}

// NewSDKClient 创建 SDK 转录客户端
func NewSDKClient(apiKey string) *SDKClient {
	return &SDKClient{
		client: openai.NewClient(apiKey),
	}
}

// Transcribe 转换音频为文字（包含单词级时间戳）
func (c *SDKClient) Transcribe(ctx context.Context, data []byte, filename string) (*Result, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename, // Reader 模式下仅作为文件名提示
		Reader:   bytes.NewReader(data),
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("转录请求失败: %v", err)
	}

	words := make([]models.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		words = append(words, models.Word{
			Word:  w.Word,
			Start: w.Start,
			End:   w.End,
		})
	}

	return &Result{
		Text:     resp.Text,
		Language: resp.Language,
		Words:    words,
	}, nil
}
