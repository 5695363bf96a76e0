package transcriber

import (
	"fmt"
	"io"
	"strings"

	"github.com/z-wentao/audioflow/pkg/models"
)

// GenerateVTT 根据单词时间线生成 WebVTT 字幕（用于 HTML5 audio/video 播放）
func GenerateVTT(w io.Writer, words []models.Word) error {
	var builder strings.Builder

	// VTT 文件必须以 "WEBVTT" 开头
	builder.WriteString("WEBVTT\n\n")

	for i, c := range groupWords(words) {
		text := strings.TrimSpace(c.text)
		if text == "" {
			continue
		}

		builder.WriteString(fmt.Sprintf("%d\n", i+1))
		builder.WriteString(fmt.Sprintf("%s --> %s\n", formatVTTTime(c.start), formatVTTTime(c.end)))
		builder.WriteString(fmt.Sprintf("%s\n\n", text))
	}

	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("写入 VTT 失败: %w", err)
	}
	return nil
}

// formatVTTTime 将秒数格式化为 VTT 时间格式
// 例如: 65.5 -> 00:01:05.500
// VTT 使用点号(.)而不是逗号(,)
func formatVTTTime(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	millis := int((seconds - float64(int(seconds))) * 1000)

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}
