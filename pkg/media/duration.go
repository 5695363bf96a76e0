package media

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// ExtractDuration 尽力从音频内容解析时长（秒）。
// 目前只解析 WAV 头；其他格式以及损坏的文件返回 nil，
// 时长字段本身可空，解析失败不影响上传
func ExtractDuration(data []byte, filename string) *int {
	if strings.ToLower(filepath.Ext(filename)) != ".wav" {
		return nil
	}

	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil
	}

	duration, err := decoder.Duration()
	if err != nil {
		return nil
	}

	seconds := int(duration.Seconds())
	return &seconds
}
