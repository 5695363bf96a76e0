package transcriber

import (
	"context"

	"github.com/z-wentao/audioflow/pkg/models"
)

// Result 转录结果
// Words 已经归一化为统一的 {word, start, end} 形状
type Result struct {
	Text     string
	Language string
	Words    []models.Word
}

// Provider 转录服务接口
// 输入音频字节和文件名提示，输出文本和单词级时间戳
type Provider interface {
	Transcribe(ctx context.Context, data []byte, filename string) (*Result, error)
}
