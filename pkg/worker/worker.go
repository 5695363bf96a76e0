package worker

import (
	"context"
	"log"
	"sync"

	"github.com/z-wentao/audioflow/pkg/pipeline"
	"github.com/z-wentao/audioflow/pkg/queue"
)

// Pool 转录 Worker 池
// 固定数量的 Worker 共享同一个队列，并发的转录运行数量
// 以 Worker 数量为上限——上传高峰会在队列里排队而不是
// 无限制地向外部服务发起调用
type Pool struct {
	queue queue.Queue
	orch  *pipeline.Orchestrator
	count int
	quit  chan struct{}
	wg    sync.WaitGroup
}

// NewPool 创建 Worker 池
func NewPool(q queue.Queue, orch *pipeline.Orchestrator, count int) *Pool {
	return &Pool{
		queue: q,
		orch:  orch,
		count: count,
		quit:  make(chan struct{}),
	}
}

// Start 启动所有 Worker
func (p *Pool) Start() {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	log.Printf("✓ 已启动 %d 个转录 Worker", p.count)
}

// Stop 停止 Worker 池（需要先关闭队列解除 Dequeue 阻塞）
// 只阻止 Worker 取新任务，在途的运行会提交完终态再退出
func (p *Pool) Stop() {
	log.Println("正在停止 Worker 池...")
	close(p.quit)
	p.wg.Wait()
	log.Println("✓ Worker 池已停止")
}

// run Worker 主循环
func (p *Pool) run(id int) {
	defer p.wg.Done()

	log.Printf("Worker #%d 已启动，等待任务...", id)

	for {
		select {
		case <-p.quit:
			log.Printf("Worker #%d 已停止", id)
			return
		default:
		}

		// 从队列获取任务（阻塞，队列关闭时返回错误）
		task, err := p.queue.Dequeue()
		if err != nil {
			select {
			case <-p.quit:
			default:
				log.Printf("Worker #%d 退出: %v", id, err)
			}
			return
		}

		// 执行转录运行。关停信号不传进运行内部：
		// 已派发的运行必须走到终态提交，不能因为关停
		// 在 processing 上被掐断
		if err := p.orch.Run(context.Background(), task); err != nil {
			log.Printf("❌ Worker #%d 任务 %s 以失败结束: %v", id, task.AudioID, err)
		}

		// 无论成功还是终态失败都确认消息，
		// 失败后的重试由用户显式触发，不靠队列重投
		if err := p.queue.Ack(task); err != nil {
			log.Printf("⚠️ Worker #%d 确认消息失败: %v", id, err)
		}
	}
}
