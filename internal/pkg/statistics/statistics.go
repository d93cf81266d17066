package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/loadway/Loadway/app/models"
	"github.com/loadway/Loadway/internal/pkg/cache"
	"github.com/loadway/Loadway/internal/pkg/database"
)

const (
	CacheKeyAttemptsTotal  = "statistics:attempts:total"
	CacheKeyAttemptsDaily  = "statistics:attempts:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyPaymentsTotal  = "statistics:payments:total"
	CacheKeyFallbacksTotal = "statistics:fallbacks:total"
	CacheExpiration        = 30 * time.Minute
)

// StatisticsData enthält die aggregierten Checkout-Kennzahlen
type StatisticsData struct {
	TodayAttempts  int `json:"today_attempts"`
	TotalAttempts  int `json:"total_attempts"`
	TotalPayments  int `json:"total_payments"`
	TotalFallbacks int `json:"total_fallbacks"`
}

// Variablen für die Cache-Aktualisierungslogik
var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute // Aktualisiere den Cache alle 5 Minuten
)

// ShouldUpdateCache prüft, ob der Cache aktualisiert werden sollte
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded aktualisiert den Cache, wenn nötig
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		log.Println("Aktualisiere Statistik-Cache...")
		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Fehler beim Aktualisieren des Statistik-Caches: %v", err)
		} else {
			log.Println("Statistik-Cache erfolgreich aktualisiert")
			lastCacheUpdate = time.Now()
		}
	}
}

// UpdateStatisticsCache zählt die Kennzahlen in der Datenbank und legt sie in den Cache
func UpdateStatisticsCache() error {
	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("datenbank nicht initialisiert")
	}

	var totalAttempts int64
	if err := db.Model(&models.CheckoutAttempt{}).Count(&totalAttempts).Error; err != nil {
		return err
	}

	today := time.Now().Format("2006-01-02")
	var todayAttempts int64
	if err := db.Model(&models.CheckoutAttempt{}).
		Where("created_at >= ?", today).
		Count(&todayAttempts).Error; err != nil {
		return err
	}

	var totalPayments int64
	if err := db.Model(&models.PaymentEvent{}).
		Where("event_type = ?", models.PaymentEventSucceeded).
		Count(&totalPayments).Error; err != nil {
		return err
	}

	var totalFallbacks int64
	if err := db.Model(&models.CheckoutAttempt{}).
		Where("intent_kind = ? AND state IN ?", models.IntentKindOrder,
			[]string{models.AttemptStateReady, models.AttemptStateSucceeded}).
		Count(&totalFallbacks).Error; err != nil {
		return err
	}

	if err := cache.Set(CacheKeyAttemptsTotal, strconv.FormatInt(totalAttempts, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(fmt.Sprintf(CacheKeyAttemptsDaily, today), strconv.FormatInt(todayAttempts, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyPaymentsTotal, strconv.FormatInt(totalPayments, 10), CacheExpiration); err != nil {
		return err
	}
	return cache.Set(CacheKeyFallbacksTotal, strconv.FormatInt(totalFallbacks, 10), CacheExpiration)
}

// GetStatistics liest die Kennzahlen aus dem Cache, bei Bedarf frisch aus der Datenbank
func GetStatistics() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TodayAttempts:  cachedInt(fmt.Sprintf(CacheKeyAttemptsDaily, time.Now().Format("2006-01-02"))),
		TotalAttempts:  cachedInt(CacheKeyAttemptsTotal),
		TotalPayments:  cachedInt(CacheKeyPaymentsTotal),
		TotalFallbacks: cachedInt(CacheKeyFallbacksTotal),
	}
}

func cachedInt(key string) int {
	value, err := cache.Get(key)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
