// Package http exposes the engine's read models and operations as a small
// JSON API. Handlers stay thin: they parse, call a service or the store, and
// encode. All classification logic lives in the engine.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"finch/internal/cache"
	"finch/internal/core"
	"finch/internal/engine"
	"finch/internal/services"
)

// Store is the slice of the repository the API reads from and writes to.
type Store interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
	UpdateAccountPrefs(ctx context.Context, externalID, nickname string, hidden, trackingOnly bool, sortOrder int) error
	ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, externalID string) (core.Transaction, bool, error)
	ListClassificationRules(ctx context.Context, activeOnly bool) ([]core.ClassificationRule, error)
	SetClassificationRuleActive(ctx context.Context, id string, active bool) error
	AddCategoryRule(ctx context.Context, rule core.CategoryRule) error
	ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error)
	ListDailySnapshots(ctx context.Context, limit int) ([]core.DailySnapshot, error)
	ListMonthlySnapshots(ctx context.Context, limit int) ([]core.MonthlySnapshot, error)
}

type Server struct {
	http.Server

	store      Store
	refresher  *services.RefreshService
	classifier *services.ClassifierService
	limiter    *engine.RateLimiter

	reqLimiter *requestLimiter

	// Net-worth and summary reads hit the store on every dashboard poll, so
	// they are cached briefly. Writes invalidate.
	netWorthCache *cache.LRUCache[netWorthResponse]
	summaryCache  *cache.LRUCache[summaryResponse]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

func NewServer(addr string, store Store, refresher *services.RefreshService, classifier *services.ClassifierService, limiter *engine.RateLimiter) *Server {
	s := &Server{
		store:         store,
		refresher:     refresher,
		classifier:    classifier,
		limiter:       limiter,
		reqLimiter:    newRequestLimiter(),
		netWorthCache: cache.NewLRUCache[netWorthResponse](4, 60*time.Second),
		summaryCache:  cache.NewLRUCache[summaryResponse](24, 60*time.Second),
		cacheManager:  cache.NewManager(),
	}

	s.cacheManager.Register(s.netWorthCache)
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/accounts", s.handleAccounts)
	mux.HandleFunc("/api/accounts/prefs", s.handleAccountPrefs)
	mux.HandleFunc("/api/transactions", s.handleTransactions)
	mux.HandleFunc("/api/networth", s.handleNetWorth)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/snapshots/daily", s.handleDailySnapshots)
	mux.HandleFunc("/api/snapshots/monthly", s.handleMonthlySnapshots)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/limiter", s.handleLimiter)
	mux.HandleFunc("/api/classify", s.handleClassify)
	mux.HandleFunc("/api/transfers/unmatch", s.handleUnmatch)
	mux.HandleFunc("/api/transfers/stats", s.handleTransferStats)
	mux.HandleFunc("/api/rules", s.handleRules)
	mux.HandleFunc("/api/rules/active", s.handleRuleActive)
	mux.HandleFunc("/api/category-rules", s.handleCategoryRules)

	s.Server = http.Server{
		Addr:    addr,
		Handler: s.withMiddleware(mux),
	}
	return s
}

// invalidateAggregates drops cached read models after any write that can
// move a total.
func (s *Server) invalidateAggregates() {
	s.netWorthCache.Delete(netWorthCacheKey)
	s.summaryCache.Clear()
}

// Shutdown stops the server along with its cache and limiter goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.reqLimiter.stop()
		err = s.Server.Shutdown(ctx)
		slog.Info("HTTP server shut down")
	})
	return err
}
