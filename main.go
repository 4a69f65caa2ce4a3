package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/supabase-community/supabase-go"
	"golang.org/x/sync/errgroup"

	"scene-composer-server/modules/animation"
	"scene-composer-server/modules/catalog"
	"scene-composer-server/modules/common/auth"
	"scene-composer-server/modules/common/config"
	"scene-composer-server/modules/common/credit"
	"scene-composer-server/modules/common/gemini"
	"scene-composer-server/modules/common/redis"
	"scene-composer-server/modules/common/storage"
	"scene-composer-server/modules/credits"
	"scene-composer-server/modules/memories"
	"scene-composer-server/modules/spotlight"
	"scene-composer-server/modules/studio"
)

const (
	videoCacheTTL   = time.Hour
	cleanupInterval = 5 * time.Minute
	adSuccessRate   = 0.9
	adDelay         = 3 * time.Second
)

// sharedRand - 전역 math/rand/v2 소스 (고루틴 안전)
type sharedRand struct{}

func (sharedRand) Float64() float64 { return rand.Float64() }

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Id, Range")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "scene-composer",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb, err := redis.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect Redis: %v", err)
	}
	defer rdb.Close()
	store := redis.NewStore(rdb)

	// Supabase
	supa, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Fatalf("❌ Failed to create Supabase client: %v", err)
	}
	uploader := storage.NewClient(supa, cfg.SupabaseBucket)
	ledger := credit.NewLedger(supa, cfg.StartingCredits)
	bonus := credit.NewDailyBonus(ledger, store, cfg.DailyBonus)
	resolver := auth.NewResolver(auth.NewSupabaseVerifier(supa), cfg.AllowAnonymous)

	// Gemini
	var pool *gemini.Pool
	if cfg.VertexAIProject != "" {
		pool, err = gemini.NewVertexPool(ctx, cfg.VertexAIProject, cfg.VertexAILocation, cfg.VertexAICredentialsJSON, cfg.GeminiRPS)
	} else {
		pool, err = gemini.NewPool(ctx, cfg.GeminiAPIKeys, cfg.GeminiRPS)
	}
	if err != nil {
		log.Fatalf("❌ Failed to create Gemini pool: %v", err)
	}
	images := gemini.NewImageClient(pool, cfg.GeminiImageModel)
	videos := gemini.NewVideoClient(pool, cfg.GeminiVideoModel)
	videoStore := animation.NewVideoStore(videos, videoCacheTTL)

	timing := animation.DefaultTiming()
	timing.PollInterval = cfg.VideoPollInterval
	timing.MaxWait = cfg.VideoMaxWait

	cat := catalog.Default()
	sessions := studio.NewSessionManager(&studio.Deps{
		Catalog:   cat,
		Images:    images,
		Videos:    videos,
		Publisher: videoStore,
		BillerFor: func(userID string) studio.Biller {
			return ledger.Account(userID)
		},
		Guard: store,
		NewRand: func() catalog.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		GenerationCost:      cfg.GenerationCost,
		RemoveWatermarkCost: cfg.RemoveWatermarkCost,
		Timing:              timing,
	})

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")

	catalog.NewCatalogHandler(cat).RegisterRoutes(r)
	animation.NewVideoHandler(videoStore).RegisterRoutes(r)
	studio.NewStudioHandler(sessions, resolver).RegisterRoutes(r)

	adService := credits.NewAdService(sharedRand{}, adSuccessRate, adDelay)
	creditService := credits.NewService(ledger, store, adService, cfg.AdsPerDay, cfg.CreditsPerAd)
	credits.NewCreditsHandler(creditService, bonus, ledger, resolver).RegisterRoutes(r)

	memoryService := memories.NewService(memories.NewSupabaseStore(supa), uploader)
	memories.NewMemoriesHandler(memoryService, resolver).RegisterRoutes(r)

	spotlightService := spotlight.NewService(spotlight.NewSupabaseStore(supa), store, ledger, uploader, cfg.SponsorCost, cfg.RemoveWatermarkCost)
	spotlight.NewSpotlightHandler(spotlightService, resolver).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 세션 정리 루틴
	g.Go(func() error {
		return sessions.Run(gctx, cleanupInterval)
	})

	g.Go(func() error {
		log.Printf("🚀 Scene Composer Server starting on port %s", cfg.Port)
		log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws", cfg.Port)
		log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
		log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("👋 Server stopped")
}
