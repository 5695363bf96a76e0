package transcriber

import (
	"testing"

	"github.com/z-wentao/audioflow/pkg/models"
)

func makeWords(n int) []models.Word {
	words := make([]models.Word, n)
	for i := range words {
		words[i] = models.Word{Word: "w", Start: float64(i), End: float64(i) + 0.5}
	}
	return words
}

func TestSimulatedAnnotatorRateOne(t *testing.T) {
	a := NewSimulatedAnnotator(1.0, 42)
	words := makeWords(10)
	a.Annotate(words)

	// 第一个单词永远不标注
	if words[0].Annotation != nil {
		t.Error("第一个单词不应该被标注")
	}
	for i := 1; i < len(words); i++ {
		if words[i].Annotation == nil {
			t.Errorf("rate=1.0 时第 %d 个单词应该被标注", i)
			continue
		}
		tag := *words[i].Annotation
		if tag != "medium" && tag != "high" {
			t.Errorf("未知标签: %s", tag)
		}
	}
}

func TestSimulatedAnnotatorRateZero(t *testing.T) {
	a := NewSimulatedAnnotator(0, 42)
	words := makeWords(10)
	a.Annotate(words)

	for i, w := range words {
		if w.Annotation != nil {
			t.Errorf("rate=0 时第 %d 个单词不应该被标注", i)
		}
	}
}

func TestSimulatedAnnotatorDeterministic(t *testing.T) {
	// 种子固定时两次运行输出一致
	w1 := makeWords(50)
	w2 := makeWords(50)
	NewSimulatedAnnotator(0.5, 7).Annotate(w1)
	NewSimulatedAnnotator(0.5, 7).Annotate(w2)

	for i := range w1 {
		a1, a2 := w1[i].Annotation, w2[i].Annotation
		if (a1 == nil) != (a2 == nil) {
			t.Fatalf("第 %d 个单词标注不一致", i)
		}
		if a1 != nil && *a1 != *a2 {
			t.Fatalf("第 %d 个单词标签不一致: %s vs %s", i, *a1, *a2)
		}
	}
}
