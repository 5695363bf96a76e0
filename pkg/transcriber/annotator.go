package transcriber

import (
	"math/rand"
	"sync"

	"github.com/z-wentao/audioflow/pkg/models"
)

// SimulatedAnnotator 演示用的单词标注模拟器。
//
// 按固定比例给单词随机打上置信度标签，没有任何业务规则支撑，
// 只用于演示前端的标注展示。作为显式的模拟钩子存在：
//   - 必须通过配置 transcriber.annotation_simulation 显式开启，默认关闭
//   - 支持固定种子，测试可以得到确定性输出
//
// 生产环境不应开启
type SimulatedAnnotator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	rate float64
	tags []string
}

// NewSimulatedAnnotator 创建标注模拟器
// rate 为被标注单词的比例（0~1），seed 固定时输出可复现
func NewSimulatedAnnotator(rate float64, seed int64) *SimulatedAnnotator {
	return &SimulatedAnnotator{
		rng:  rand.New(rand.NewSource(seed)),
		rate: rate,
		tags: []string{"medium", "high"},
	}
}

// Annotate 就地给单词列表打标签
// 第一个单词永远不标注
func (a *SimulatedAnnotator) Annotate(words []models.Word) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range words {
		if i == 0 {
			continue
		}
		if a.rng.Float64() < a.rate {
			tag := a.tags[a.rng.Intn(len(a.tags))]
			words[i].Annotation = &tag
		}
	}
}
