package transcriber

import (
	"fmt"
	"io"
	"strings"

	"github.com/z-wentao/audioflow/pkg/models"
)

// 字幕分组参数：每条字幕最多 10 个单词，单词间隔超过 1 秒另起一条
const (
	maxWordsPerCue = 10
	cueGapSeconds  = 1.0
)

// cue 一条字幕
type cue struct {
	start float64
	end   float64
	text  string
}

// groupWords 把单词时间线切分成字幕条
func groupWords(words []models.Word) []cue {
	cues := make([]cue, 0)
	var current []models.Word

	flush := func() {
		if len(current) == 0 {
			return
		}
		parts := make([]string, 0, len(current))
		for _, w := range current {
			parts = append(parts, strings.TrimSpace(w.Word))
		}
		cues = append(cues, cue{
			start: current[0].Start,
			end:   current[len(current)-1].End,
			text:  strings.Join(parts, " "),
		})
		current = current[:0]
	}

	for _, w := range words {
		if len(current) > 0 {
			gap := w.Start - current[len(current)-1].End
			if len(current) >= maxWordsPerCue || gap > cueGapSeconds {
				flush()
			}
		}
		current = append(current, w)
	}
	flush()

	return cues
}

// GenerateSRT 根据单词时间线生成 SRT 字幕
func GenerateSRT(w io.Writer, words []models.Word) error {
	var builder strings.Builder

	for i, c := range groupWords(words) {
		text := strings.TrimSpace(c.text)
		if text == "" {
			continue
		}

		// SRT 格式:
		// 1
		// 00:00:00,000 --> 00:00:05,200
		// 字幕文本
		//
		builder.WriteString(fmt.Sprintf("%d\n", i+1))
		builder.WriteString(fmt.Sprintf("%s --> %s\n", formatSRTTime(c.start), formatSRTTime(c.end)))
		builder.WriteString(fmt.Sprintf("%s\n\n", text))
	}

	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("写入 SRT 失败: %w", err)
	}
	return nil
}

// formatSRTTime 将秒数格式化为 SRT 时间格式
// 例如: 65.5 -> 00:01:05,500
func formatSRTTime(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	millis := int((seconds - float64(int(seconds))) * 1000)

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
