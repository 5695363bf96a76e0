package transcriber

import (
	"strings"
	"testing"

	"github.com/z-wentao/audioflow/pkg/models"
)

func TestGroupWordsSplitsOnGap(t *testing.T) {
	words := []models.Word{
		{Word: "hello", Start: 0.0, End: 0.5},
		{Word: "world", Start: 0.6, End: 1.0},
		// 超过 1 秒的间隔另起一条
		{Word: "again", Start: 3.0, End: 3.5},
	}

	cues := groupWords(words)
	if len(cues) != 2 {
		t.Fatalf("应该切分出 2 条字幕, got %d", len(cues))
	}
	if cues[0].text != "hello world" {
		t.Errorf("第一条字幕文本错误: %q", cues[0].text)
	}
	if cues[1].text != "again" || cues[1].start != 3.0 {
		t.Errorf("第二条字幕错误: %+v", cues[1])
	}
}

func TestGroupWordsSplitsOnLength(t *testing.T) {
	words := make([]models.Word, 25)
	for i := range words {
		words[i] = models.Word{Word: "w", Start: float64(i) * 0.2, End: float64(i)*0.2 + 0.1}
	}

	cues := groupWords(words)
	// 每条最多 10 个单词: 10 + 10 + 5
	if len(cues) != 3 {
		t.Fatalf("应该切分出 3 条字幕, got %d", len(cues))
	}
}

func TestGenerateSRT(t *testing.T) {
	words := []models.Word{
		{Word: "hello", Start: 0.0, End: 0.5},
		{Word: "world", Start: 0.6, End: 1.25},
	}

	var buf strings.Builder
	if err := GenerateSRT(&buf, words); err != nil {
		t.Fatalf("GenerateSRT: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "1\n") {
		t.Errorf("SRT 应该以序号开头:\n%s", out)
	}
	if !strings.Contains(out, "00:00:00,000 --> 00:00:01,250") {
		t.Errorf("SRT 时间轴错误:\n%s", out)
	}
	if !strings.Contains(out, "hello world") {
		t.Errorf("SRT 缺少字幕文本:\n%s", out)
	}
}

func TestGenerateVTT(t *testing.T) {
	words := []models.Word{
		{Word: "hello", Start: 65.5, End: 66.0},
	}

	var buf strings.Builder
	if err := GenerateVTT(&buf, words); err != nil {
		t.Fatalf("GenerateVTT: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "WEBVTT\n") {
		t.Errorf("VTT 必须以 WEBVTT 开头:\n%s", out)
	}
	// VTT 用点号分隔毫秒
	if !strings.Contains(out, "00:01:05.500 --> 00:01:06.000") {
		t.Errorf("VTT 时间轴错误:\n%s", out)
	}
}

func TestGenerateSRTEmpty(t *testing.T) {
	var buf strings.Builder
	if err := GenerateSRT(&buf, nil); err != nil {
		t.Fatalf("GenerateSRT: %v", err)
	}
	if buf.String() != "" {
		t.Errorf("空单词列表应该输出空字符串, got %q", buf.String())
	}
}
