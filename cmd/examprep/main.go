package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/ai"
	"github.com/thunderlab/examprep/internal/blob"
	"github.com/thunderlab/examprep/internal/config"
	"github.com/thunderlab/examprep/internal/db"
	"github.com/thunderlab/examprep/internal/job"
	"github.com/thunderlab/examprep/internal/media"
	"github.com/thunderlab/examprep/internal/payload"
	"github.com/thunderlab/examprep/internal/repo"
	"github.com/thunderlab/examprep/internal/schedule"
	"github.com/thunderlab/examprep/internal/service"
)

// app holds everything a phase command needs after wiring.
type app struct {
	cfg       *config.Config
	conn      *sql.DB
	ingest    *service.IngestService
	dispatch  *service.DispatchService
	extract   *service.ExtractService
	retrieval *service.RetrievalService
	reasoning *service.ReasoningService

	sources  *repo.SourceRepo
	sessions *repo.SessionRepo
	evidence *repo.EvidenceRepo
	embCache *repo.EmbeddingCacheRepo
}

func main() {
	var configPath string
	var payloadJSON string

	rootCmd := &cobra.Command{
		Use:   "examprep",
		Short: "exam prep pipeline worker",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to config.json")
	rootCmd.PersistentFlags().StringVar(&payloadJSON, "payload", "", "phase payload json (falls back to JOB_PAYLOAD)")

	phase := func(use, short string, run func(ctx context.Context, a *app, raw string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := buildApp(configPath)
				if err != nil {
					return err
				}
				defer a.conn.Close()
				raw := payloadJSON
				if raw == "" {
					raw = os.Getenv("JOB_PAYLOAD")
				}
				return run(cmd.Context(), a, raw)
			},
		}
	}

	rootCmd.AddCommand(
		phase("ingest", "ingest one source document into searchable chunks", func(ctx context.Context, a *app, raw string) error {
			p, err := payload.ParseIngest(raw)
			if err != nil {
				return err
			}
			return a.ingest.Run(ctx, p)
		}),
		phase("split", "split a session recording and extract signals", func(ctx context.Context, a *app, raw string) error {
			p, err := payload.ParseSplit(raw)
			if err != nil {
				return err
			}
			return a.dispatch.Run(ctx, p)
		}),
		phase("extract", "extract signals from one already-sliced audio chunk", func(ctx context.Context, a *app, raw string) error {
			p, err := payload.ParseSingleChunk(raw)
			if err != nil {
				return err
			}
			return a.extract.RunSingle(ctx, p)
		}),
		phase("retrieve", "gather textbook evidence for a session's signals", func(ctx context.Context, a *app, raw string) error {
			p, err := payload.ParseRetrieve(raw)
			if err != nil {
				return err
			}
			return a.retrieval.Run(ctx, p)
		}),
		phase("reason", "synthesize the exam prep report", func(ctx context.Context, a *app, raw string) error {
			p, err := payload.ParseReason(raw)
			if err != nil {
				return err
			}
			return a.reasoning.Run(ctx, p)
		}),
	)

	pollCmd := &cobra.Command{
		Use:   "poll",
		Short: "run the background poll scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.conn.Close()
			return runPoller(a)
		},
	}
	rootCmd.AddCommand(pollCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	blobs, err := blob.New(cfg.BlobStore)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("blob store: %w", err)
	}
	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ai provider: %w", err)
	}

	sources := repo.NewSourceRepo(conn)
	chunks := repo.NewChunkRepo(conn)
	sessions := repo.NewSessionRepo(conn)
	audioChunks := repo.NewAudioChunkRepo(conn)
	signals := repo.NewSignalRepo(conn)
	evidence := repo.NewEvidenceRepo(conn)
	reports := repo.NewReportRepo(conn)
	search := repo.NewSearchRepo(conn)
	embCache := repo.NewEmbeddingCacheRepo(conn)
	locks := repo.NewRunLockRepo(conn)

	embedder := service.NewEmbedService(ai.NewEmbedder(provider, cfg.AI.EmbedModel), embCache)
	transcriber := ai.NewBatchTranscriber(ai.NewTranscriber(provider, cfg.AI.ExtractModel))
	extractor := ai.NewSignalService(provider, cfg.AI.ExtractModel)
	reasoner := ai.NewReasoner(provider, cfg.AI.ReasoningModel)
	ffmpeg := media.NewFFmpeg()

	ingestSvc := service.NewIngestService(sources, chunks, blobs, locks, transcriber, embedder, cfg.Pipeline)
	extractSvc := service.NewExtractService(audioChunks, signals, sessions, blobs, ffmpeg, extractor, cfg.Pipeline)
	dispatchSvc := service.NewDispatchService(sessions, audioChunks, blobs, locks, ffmpeg, extractSvc, cfg.Pipeline)
	retrievalSvc := service.NewRetrievalService(sessions, signals, evidence, search, embedder, locks, cfg.Pipeline)
	reasoningSvc := service.NewReasoningService(sessions, signals, evidence, chunks, reports, reasoner, locks)

	return &app{
		cfg:       cfg,
		conn:      conn,
		ingest:    ingestSvc,
		dispatch:  dispatchSvc,
		extract:   extractSvc,
		retrieval: retrievalSvc,
		reasoning: reasoningSvc,
		sources:   sources,
		sessions:  sessions,
		evidence:  evidence,
		embCache:  embCache,
	}, nil
}

func runPoller(a *app) error {
	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewSourcePollJob(a.sources, a.ingest, 10), "* * * * *", 30*time.Minute); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewSessionPollJob(a.sessions, a.evidence, a.dispatch, a.retrieval, a.reasoning, 10), "* * * * *", 30*time.Minute); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.embCache, 30), "0 4 * * *", time.Hour); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	scheduler.Start(ctx)
	logutil.GetLogger(ctx).Info("poller started")
	<-ctx.Done()
	scheduler.Stop()
	return nil
}
