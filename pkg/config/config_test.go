package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
openai:
  api_key: "sk-test"
database:
  url: "postgres://localhost/audioflow"
storage:
  bucket: "audioflow"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("默认端口应该是 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadSize != 100*1024*1024 {
		t.Errorf("默认大小上限应该是 100MB, got %d", cfg.Server.MaxUploadSize)
	}
	if cfg.Server.MaxBatchFiles != 10 {
		t.Errorf("默认批量上限应该是 10, got %d", cfg.Server.MaxBatchFiles)
	}
	if cfg.Transcriber.Provider != "whisper" {
		t.Errorf("默认转录后端应该是 whisper, got %s", cfg.Transcriber.Provider)
	}
	if cfg.Queue.Type != "memory" {
		t.Errorf("默认队列类型应该是 memory, got %s", cfg.Queue.Type)
	}
	if cfg.Worker.Count != 3 {
		t.Errorf("默认 Worker 数应该是 3, got %d", cfg.Worker.Count)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  max_batch_files: 5
openai:
  api_key: "sk-test"
database:
  url: "postgres://localhost/audioflow"
storage:
  bucket: "audioflow"
transcriber:
  provider: "openai-sdk"
queue:
  type: "rabbitmq"
  rabbitmq:
    url: "amqp://localhost"
    queue_name: "tasks"
worker:
  count: 8
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.MaxBatchFiles != 5 {
		t.Errorf("server 配置未生效: %+v", cfg.Server)
	}
	if cfg.Transcriber.Provider != "openai-sdk" {
		t.Errorf("转录后端配置未生效: %s", cfg.Transcriber.Provider)
	}
	if cfg.Queue.Type != "rabbitmq" || cfg.Worker.Count != 8 {
		t.Errorf("队列/Worker 配置未生效")
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	cases := map[string]string{
		"缺少 api_key": `
database:
  url: "postgres://localhost/audioflow"
storage:
  bucket: "audioflow"
`,
		"缺少 database.url": `
openai:
  api_key: "sk-test"
storage:
  bucket: "audioflow"
`,
		"缺少 storage.bucket": `
openai:
  api_key: "sk-test"
database:
  url: "postgres://localhost/audioflow"
`,
		"占位符 api_key": `
openai:
  api_key: "your-openai-api-key-here"
database:
  url: "postgres://localhost/audioflow"
storage:
  bucket: "audioflow"
`,
		"未知转录后端": `
openai:
  api_key: "sk-test"
database:
  url: "postgres://localhost/audioflow"
storage:
  bucket: "audioflow"
transcriber:
  provider: "no-such-backend"
`,
	}

	for name, content := range cases {
		if _, err := LoadConfig(writeConfig(t, content)); err == nil {
			t.Errorf("%s 时应该报错", name)
		}
	}
}

func TestLoadConfigFileNotExist(t *testing.T) {
	if _, err := LoadConfig("/no/such/config.yaml"); err == nil {
		t.Error("配置文件不存在时应该报错")
	}
}
