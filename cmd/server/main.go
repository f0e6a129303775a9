package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"voipbilling/internal/admission"
	"voipbilling/internal/config"
	"voipbilling/internal/handler"
	"voipbilling/internal/infrastructure/cache"
	"voipbilling/internal/infrastructure/database"
	"voipbilling/internal/infrastructure/lock"
	"voipbilling/internal/infrastructure/mq"
	"voipbilling/internal/job"
	"voipbilling/internal/repository"
	"voipbilling/internal/repository/memory"
	"voipbilling/internal/service"
	"voipbilling/pkg/idgen"

	"github.com/go-redis/redis/v8"
	_ "go.uber.org/automaxprocs"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)

	// 初始化 ID 生成器
	idgen.Init(cfg.Server.WorkerID)

	var checks []handler.HealthCheck

	// 初始化存储
	var store repository.Store
	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := database.InitMySQL(&cfg.MySQL)
		if err != nil {
			log.Fatalf("MySQL 初始化失败: %v", err)
		}
		store = repository.NewGormStore(db)
		checks = append(checks, handler.HealthCheck{Name: "mysql", Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	default:
		log.Println("[Main] 使用内存存储，数据不会持久化")
		store = memory.NewStore()
	}

	// 初始化 Redis（锁或并发计数使用 redis 时）
	var redisClient *redis.Client
	if cfg.NeedRedis() {
		var err error
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Fatalf("Redis 初始化失败: %v", err)
		}
		defer redisClient.Close()
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Lock.Driver == config.DriverRedis {
		locker = lock.NewRedisLocker(redisClient, lock.RedisLockerOptions{
			TTL:           cfg.Lock.TTL,
			RetryInterval: cfg.Lock.RetryInterval,
			MaxRetries:    cfg.Lock.MaxRetries,
		})
	}

	var counter admission.Counter = admission.NewLocalCounter()
	if cfg.Admission.Driver == config.DriverRedis {
		counter = admission.NewRedisCounter(redisClient, cfg.Admission.KeyPrefix)
	}

	// 初始化 Kafka 生产者，未启用时 outbox 消息只打日志
	var sender mq.Sender = mq.LogSender{}
	if cfg.Kafka.Enabled {
		kafkaSender, err := mq.NewKafkaSender(&cfg.Kafka)
		if err != nil {
			log.Fatalf("Kafka 生产者初始化失败: %v", err)
		}
		defer kafkaSender.Close()
		sender = kafkaSender
	}

	// 组装服务
	ledger := service.NewLedgerService(store, locker, cfg)
	rating := service.NewRatingService(store, ledger, cfg)
	admissionService := service.NewAdmissionService(store, counter)
	events := service.NewCallEventService(rating, admissionService)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 按未结束会话重建并发计数，进程重启后计数从存储恢复
	if err := admissionService.Rebuild(ctx); err != nil {
		log.Fatalf("并发计数重建失败: %v", err)
	}

	// 启动后台任务
	outboxSender := job.NewOutboxSender(store.Outbox(), sender,
		cfg.Business.OutboxInterval, cfg.Business.OutboxBatchSize, cfg.Business.MaxRetryCount)
	go outboxSender.Start(ctx)

	reaper := job.NewSessionReaperJob(admissionService, cfg.Business.ReaperInterval, cfg.Business.SessionMaxAge)
	go reaper.Start(ctx)

	reconcile := job.NewReconcileJob(store.Accounts(), ledger, cfg.Business.ReconcileCron)
	if err := reconcile.Start(ctx); err != nil {
		log.Fatalf("对账任务启动失败: %v", err)
	}

	// 消费信令侧呼叫事件，存储不可用时原地退避重试，成功后才提交 offset
	if cfg.Kafka.Enabled {
		consumer, err := mq.NewCallEventConsumer(&cfg.Kafka, events, func(err error) bool {
			return errors.Is(err, service.ErrStorageUnavailable)
		})
		if err != nil {
			log.Fatalf("Kafka 消费者初始化失败: %v", err)
		}
		defer consumer.Close()
		go consumer.Start(ctx)
	}

	// 设置路由
	router := handler.SetupRouter(handler.NewHandler(handler.Services{
		Events:       events,
		Rating:       rating,
		Ledger:       ledger,
		Summary:      service.NewSummaryService(store, cfg.Business.RecentCallLimit),
		Destinations: service.NewDestinationService(store),
		RateCards:    service.NewRateCardService(store, locker),
		Accounts:     service.NewAccountService(store).WithDefaultCallsCap(cfg.Business.DefaultCallsCap),
		Ani:          service.NewAniService(store, locker),
	}), cfg.Server, checks...)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 先停 HTTP 入口，再取消上下文停止后台任务和消费者
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Business.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	cancel()

	log.Println("服务已关闭")
}
