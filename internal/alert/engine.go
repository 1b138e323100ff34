// Package alert decides whether the cashier station should show a warning
// about remote orders piling up.
package alert

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"bingopos/backend/internal/cache"
	"bingopos/backend/internal/domain"
)

const (
	SourceIdle  = "idle"
	SourceAI    = "ai"
	SourceRules = "rules"
	SourceCache = "cache"
)

// Advisor is the model-backed judge. It may be nil.
type Advisor interface {
	CashierWarning(ctx context.Context, in domain.CashierWarningInput) (domain.CashierWarning, error)
}

type Engine struct {
	cache    cache.WarningCache
	cacheTTL time.Duration
	advisor  Advisor

	pendingThreshold   int
	completedThreshold int
	slowVerifyMinutes  float64
}

func NewEngine(cacheStore cache.WarningCache, cacheTTL time.Duration, advisor Advisor) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopWarningCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 20 * time.Second
	}

	return &Engine{
		cache:              cacheStore,
		cacheTTL:           cacheTTL,
		advisor:            advisor,
		pendingThreshold:   3,
		completedThreshold: 2,
		slowVerifyMinutes:  3.0,
	}
}

func (e *Engine) Evaluate(ctx context.Context, in domain.CashierWarningInput) domain.CashierWarning {
	if in.PendingOrders == 0 && in.CompletedCustomers == 0 {
		return domain.CashierWarning{Active: false, Source: SourceIdle}
	}

	key := buildCacheKey(in)
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		cached.Source = SourceCache
		return *cached
	}

	warning := e.Rules(in)
	if e.advisor != nil {
		advised, err := e.advisor.CashierWarning(ctx, in)
		if err != nil {
			log.Printf("[alert] WARN: advisor failed, using rules: %v", err)
		} else {
			advised.Source = SourceAI
			warning = advised
		}
	}

	if err := e.cache.Set(ctx, key, &warning, e.cacheTTL); err != nil {
		log.Printf("[alert] WARN: cache write failed: %v", err)
	}
	return warning
}

// Rules is the deterministic fallback used without a working advisor.
func (e *Engine) Rules(in domain.CashierWarningInput) domain.CashierWarning {
	reasons := make([]string, 0, 3)
	if in.PendingOrders >= e.pendingThreshold {
		reasons = append(reasons, fmt.Sprintf("%d pedidos Daviplata esperando verificación", in.PendingOrders))
	}
	if in.CompletedCustomers >= e.completedThreshold {
		reasons = append(reasons, fmt.Sprintf("%d clientes ya pagaron y van en camino", in.CompletedCustomers))
	}
	if in.AvgVerificationMins != nil && *in.AvgVerificationMins > e.slowVerifyMinutes {
		reasons = append(reasons, fmt.Sprintf("la verificación promedio tarda %.1f minutos", *in.AvgVerificationMins))
	}
	if len(reasons) == 0 {
		return domain.CashierWarning{Active: false, Source: SourceRules}
	}
	return domain.CashierWarning{
		Active:  true,
		Message: "Atención: " + strings.Join(reasons, "; ") + ".",
		Source:  SourceRules,
	}
}

func buildCacheKey(in domain.CashierWarningInput) string {
	avg := "none"
	if in.AvgVerificationMins != nil {
		avg = fmt.Sprintf("%.1f", math.Round(*in.AvgVerificationMins*10)/10)
	}
	raw := fmt.Sprintf("p:%d|c:%d|v:%s", in.PendingOrders, in.CompletedCustomers, avg)
	hash := sha1.Sum([]byte(raw))
	return "cashier-warning:" + hex.EncodeToString(hash[:])
}
