package transcriber

import (
	"encoding/json"
	"fmt"

	"github.com/z-wentao/audioflow/pkg/models"
)

// NormalizeWords 把服务端返回的单词列表归一化为统一的 {word, start, end} 形状。
// 不同版本的接口返回过两种原生形状：
//   - 对象: {"word": "hello", "start": 0.0, "end": 0.5}
//   - 位置数组: ["hello", 0.0, 0.5]
//
// 两种形状可以在同一个列表里混用，逐条判断
func NormalizeWords(raw []json.RawMessage) ([]models.Word, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	words := make([]models.Word, 0, len(raw))
	for i, entry := range raw {
		word, err := normalizeWord(entry)
		if err != nil {
			return nil, fmt.Errorf("第 %d 个单词形状无法识别: %v", i, err)
		}
		words = append(words, word)
	}
	return words, nil
}

func normalizeWord(entry json.RawMessage) (models.Word, error) {
	// 先按对象形状解析
	var obj struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	}
	if err := json.Unmarshal(entry, &obj); err == nil {
		return models.Word{Word: obj.Word, Start: obj.Start, End: obj.End}, nil
	}

	// 再按位置数组形状解析: [word, start, end]
	var pos []any
	if err := json.Unmarshal(entry, &pos); err != nil {
		return models.Word{}, fmt.Errorf("既不是对象也不是数组: %s", string(entry))
	}
	if len(pos) < 3 {
		return models.Word{}, fmt.Errorf("数组长度不足: %s", string(entry))
	}

	text, ok := pos[0].(string)
	if !ok {
		return models.Word{}, fmt.Errorf("第 1 个元素不是字符串: %s", string(entry))
	}
	start, ok := pos[1].(float64)
	if !ok {
		return models.Word{}, fmt.Errorf("第 2 个元素不是数字: %s", string(entry))
	}
	end, ok := pos[2].(float64)
	if !ok {
		return models.Word{}, fmt.Errorf("第 3 个元素不是数字: %s", string(entry))
	}

	return models.Word{Word: text, Start: start, End: end}, nil
}
