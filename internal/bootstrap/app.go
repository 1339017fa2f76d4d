package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appsvc "github.com/samargunners/par-delta-dashboard/internal/app"
	"github.com/samargunners/par-delta-dashboard/internal/cache"
	"github.com/samargunners/par-delta-dashboard/internal/config"
	"github.com/samargunners/par-delta-dashboard/internal/model"
	"github.com/samargunners/par-delta-dashboard/internal/platform/database"
	rabbitmqClient "github.com/samargunners/par-delta-dashboard/internal/platform/rabbitmq"
	redisClient "github.com/samargunners/par-delta-dashboard/internal/platform/redis"
	"github.com/samargunners/par-delta-dashboard/internal/rag"
	"github.com/samargunners/par-delta-dashboard/internal/repository"
	"github.com/samargunners/par-delta-dashboard/internal/worker"
)

type App struct {
	Config *config.Config
	Log    *slog.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Pipeline         *rag.Orchestrator
	RAG              *appsvc.RAGService
	RefreshPublisher *rabbitmqClient.Publisher

	AskLogWorker  *worker.AskLogWorker
	RefreshWorker *worker.RefreshWorker

	StartedAt time.Time
}

// New connects the database and the optional Redis and RabbitMQ services,
// then wires the question-answering pipeline. A pipeline that cannot be
// configured leaves the RAG service disabled rather than failing startup.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}

	db, err := database.New(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	a.DB = db
	if err := db.AutoMigrate(&model.AskLog{}); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.AskLogQueue, cfg.RabbitMQ.RefreshQueue)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	pipeline, err := NewPipeline(cfg, db, log)
	if err != nil {
		log.Warn("rag pipeline disabled", "error", err)
		a.RAG = appsvc.NewDisabledRAGService(err)
	} else {
		a.Pipeline = pipeline
		a.RAG = appsvc.NewRAGService(pipeline, a.answerCache(), a.askLogPublisher(), log)
	}

	if err := a.startWorkers(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) answerCache() appsvc.AnswerCache {
	if a.Redis == nil {
		return nil
	}
	return cache.NewAnswerCache(a.Redis, time.Duration(a.Config.Redis.AnswerTTLSeconds)*time.Second)
}

func (a *App) askLogPublisher() appsvc.AskLogPublisher {
	if a.MQConn == nil {
		return nil
	}
	return rabbitmqClient.NewPublisher(a.MQConn, a.Config.RabbitMQ.AskLogQueue)
}

func (a *App) startWorkers(ctx context.Context) error {
	if a.MQConn == nil {
		return nil
	}

	askLogRepo := repository.NewAskLogRepository(a.DB)
	a.AskLogWorker = worker.NewAskLogWorker(a.MQConn, askLogRepo, a.Config.RabbitMQ.AskLogQueue, a.Log)
	if err := a.AskLogWorker.Start(ctx); err != nil {
		return fmt.Errorf("start ask log worker failed: %w", err)
	}

	if a.Pipeline == nil {
		return nil
	}
	a.RefreshPublisher = rabbitmqClient.NewPublisher(a.MQConn, a.Config.RabbitMQ.RefreshQueue)
	a.RefreshWorker = worker.NewRefreshWorker(a.MQConn, a.Pipeline, a.Config.RabbitMQ.RefreshQueue, rag.DefaultConfig().RebuildTimeout, a.Log)
	if err := a.RefreshWorker.Start(ctx); err != nil {
		return fmt.Errorf("start refresh worker failed: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.RefreshWorker != nil {
		a.RefreshWorker.Close()
	}
	if a.AskLogWorker != nil {
		a.AskLogWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
