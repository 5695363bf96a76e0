package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/z-wentao/audioflow/pkg/auth"
	"github.com/z-wentao/audioflow/pkg/config"
	"github.com/z-wentao/audioflow/pkg/objectstore"
	"github.com/z-wentao/audioflow/pkg/pipeline"
	"github.com/z-wentao/audioflow/pkg/queue"
	"github.com/z-wentao/audioflow/pkg/storage"
	"github.com/z-wentao/audioflow/pkg/transcriber"
	"github.com/z-wentao/audioflow/pkg/worker"
)

// App 应用上下文（依赖注入）
type App struct {
	config  *config.Config
	store   storage.Store
	blobs   objectstore.Store
	queue   queue.Queue
	workers *worker.Pool
	authn   auth.Authenticator
}

func main() {
	// 1. 加载配置
	configPath := os.Getenv("AUDIOFLOW_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}
	log.Println("✓ 配置加载成功")

	app := &App{config: cfg}

	// 2. 初始化数据库存储
	pg, err := storage.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("❌ 连接数据库失败: %v", err)
	}
	if err := pg.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("❌ 初始化表结构失败: %v", err)
	}
	app.store = pg
	log.Println("✓ 数据库连接成功")

	// 2.1 可选的 Redis 读缓存（状态轮询走缓存）
	if cfg.Redis.Enabled {
		cached, err := storage.NewCachedStore(pg,
			cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		if err != nil {
			log.Fatalf("❌ 连接 Redis 失败: %v", err)
		}
		app.store = cached
		log.Println("✓ Redis 读缓存已启用")
	}

	// 3. 初始化对象存储
	app.blobs, err = objectstore.NewMinioStore(
		cfg.Storage.Endpoint,
		cfg.Storage.AccessKey,
		cfg.Storage.SecretKey,
		cfg.Storage.Bucket,
		cfg.Storage.UseSSL,
		time.Duration(cfg.Storage.PresignExpirySeconds)*time.Second,
	)
	if err != nil {
		log.Fatalf("❌ 初始化对象存储失败: %v", err)
	}
	log.Println("✓ 对象存储初始化成功")

	// 4. 初始化转录后端（根据配置选择）
	var provider transcriber.Provider
	switch cfg.Transcriber.Provider {
	case "openai-sdk":
		provider = transcriber.NewSDKClient(cfg.OpenAI.APIKey)
		log.Println("✓ 使用 OpenAI SDK 转录后端")
	default:
		provider = transcriber.NewWhisperClient(cfg.OpenAI.APIKey,
			time.Duration(cfg.Transcriber.RequestTimeoutSeconds)*time.Second)
		log.Println("✓ 使用 Whisper HTTP 转录后端")
	}

	// 4.1 演示标注钩子（必须显式开启）
	var annotator *transcriber.SimulatedAnnotator
	if cfg.Transcriber.AnnotationSimulation {
		annotator = transcriber.NewSimulatedAnnotator(cfg.Transcriber.AnnotationRate, time.Now().UnixNano())
		log.Println("⚠️  已开启演示标注模拟（不要在生产环境使用）")
	}

	// 5. 初始化队列（根据配置选择类型）
	switch cfg.Queue.Type {
	case "memory":
		app.queue = queue.NewMemoryQueue(cfg.Queue.BufferSize)
		log.Println("✓ 使用内存队列")
	case "rabbitmq":
		app.queue, err = queue.NewRabbitMQQueue(
			cfg.Queue.RabbitMQ.URL,
			cfg.Queue.RabbitMQ.QueueName,
			cfg.Queue.RabbitMQ.Prefetch,
		)
		if err != nil {
			log.Fatalf("❌ 初始化 RabbitMQ 失败: %v", err)
		}
	default:
		log.Fatalf("❌ 不支持的队列类型: %s", cfg.Queue.Type)
	}

	// 6. 初始化编排器和 Worker 池
	orch := pipeline.New(
		app.store,
		app.blobs,
		provider,
		annotator,
		time.Duration(cfg.Transcriber.FetchTimeoutSeconds)*time.Second,
		time.Duration(cfg.Transcriber.RequestTimeoutSeconds)*time.Second,
	)
	app.workers = worker.NewPool(app.queue, orch, cfg.Worker.Count)
	app.workers.Start()

	// 7. 初始化认证器
	switch {
	case cfg.Auth.JWKSURL != "":
		cache := auth.NewHTTPKeyCache(cfg.Auth.JWKSURL, time.Duration(cfg.Auth.JWKSTTLSeconds)*time.Second)
		app.authn = auth.NewIdentityVerifier(cache, cfg.Auth.JWKSIssuer, cfg.Auth.JWKSAudience)
		log.Println("✓ 使用身份提供方公钥认证")
	case cfg.Auth.JWTSecret != "":
		app.authn = auth.NewJWTAuthenticator(cfg.Auth.JWTSecret)
	case cfg.Auth.StaticUser != "":
		app.authn = auth.Static(cfg.Auth.StaticUser)
		log.Printf("⚠️  使用固定身份 %s（仅限开发环境）", cfg.Auth.StaticUser)
	default:
		log.Fatalf("❌ 请设置 auth.jwks_url 或 auth.jwt_secret（或仅限开发环境的 auth.static_user）")
	}

	// 8. 启动 HTTP 服务器
	router := app.setupRouter()
	port := fmt.Sprintf(":%d", cfg.Server.Port)

	log.Printf("🚀 AudioFlow 服务器启动在 http://localhost:%d", cfg.Server.Port)
	log.Printf("📝 配置信息:")
	log.Printf("   - 并发 Worker: %d", cfg.Worker.Count)
	log.Printf("   - 队列类型: %s", cfg.Queue.Type)
	log.Printf("   - 转录后端: %s", cfg.Transcriber.Provider)

	go func() {
		if err := router.Run(port); err != nil {
			log.Fatalf("❌ 服务器启动失败: %v", err)
		}
	}()

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")
	app.queue.Close()
	app.workers.Stop()
	app.store.Close()
	log.Println("✓ 服务器已关闭")
}

// setupRouter 设置路由
func (app *App) setupRouter() *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	api.GET("/ping", app.handlePing)

	// 除健康检查外全部需要认证
	authed := api.Group("", auth.Middleware(app.authn))
	{
		authed.POST("/audio", app.handleUpload)
		authed.GET("/audio", app.handleListAudio)
		authed.GET("/audio/:id", app.handleGetAudio)
		authed.DELETE("/audio/:id", app.handleDeleteAudio)

		authed.GET("/transcripts/:audio_id", app.handleGetTranscript)
		authed.POST("/transcripts/:audio_id/retry", app.handleRetryTranscription)
		authed.GET("/transcripts/:audio_id/subtitle", app.handleSubtitle)
	}

	return r
}
