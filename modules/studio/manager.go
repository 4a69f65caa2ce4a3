package studio

import (
	"context"
	"log"
	"sync"
	"time"

	"scene-composer-server/modules/common/auth"
)

const (
	inactiveThreshold = 30 * time.Minute
	expiredThreshold  = 24 * time.Hour
)

// Metrics - 서버 메트릭
type Metrics struct {
	TotalSessions    int       `json:"totalSessions"`
	ActiveSessions   int       `json:"activeSessions"`
	TotalConnections int       `json:"totalConnections"`
	CurrentClients   int       `json:"currentClients"`
	StartTime        time.Time `json:"startTime"`
	Uptime           string    `json:"uptime"`
}

// SessionManager - 사용자별 Studio 관리
type SessionManager struct {
	deps     *Deps
	sessions map[string]*Studio
	mutex    sync.RWMutex

	metricsMu        sync.Mutex
	totalSessions    int
	totalConnections int
	startTime        time.Time
}

func NewSessionManager(deps *Deps) *SessionManager {
	return &SessionManager{
		deps:      deps,
		sessions:  make(map[string]*Studio),
		startTime: time.Now(),
	}
}

// GetOrCreate - 사용자의 Studio 가져오기 또는 생성
func (sm *SessionManager) GetOrCreate(user auth.User) *Studio {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	studio, exists := sm.sessions[user.ID]
	if !exists {
		studio = newStudio(user.ID, user.Anonymous, sm.deps)
		sm.sessions[user.ID] = studio

		sm.metricsMu.Lock()
		sm.totalSessions++
		sm.metricsMu.Unlock()

		log.Printf("✅ Created new studio: %s (Active: %d)", user.ID, len(sm.sessions))
	}

	studio.touch()
	return studio
}

// Get - 기존 Studio (없으면 false)
func (sm *SessionManager) Get(userID string) (*Studio, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	studio, ok := sm.sessions[userID]
	return studio, ok
}

func (sm *SessionManager) connected() {
	sm.metricsMu.Lock()
	sm.totalConnections++
	sm.metricsMu.Unlock()
}

// Cleanup - 연결 없는 유휴 세션 / 만료 세션 정리. 진행 중인 작업이 있으면 유지
func (sm *SessionManager) Cleanup(now time.Time) int {
	sm.mutex.Lock()
	var removed []*Studio
	for userID, studio := range sm.sessions {
		studio.mu.Lock()
		age := now.Sub(studio.createdAt)
		idle := now.Sub(studio.lastActivity)
		empty := len(studio.clients) == 0
		studio.mu.Unlock()

		isExpired := age > expiredThreshold
		isInactive := empty && idle > inactiveThreshold
		if !isExpired && !isInactive {
			continue
		}
		if !isExpired && studio.Busy() {
			continue
		}

		delete(sm.sessions, userID)
		removed = append(removed, studio)

		reason := "inactive"
		if isExpired {
			reason = "expired"
		}
		log.Printf("⏰ Cleaned up %s studio: %s (Age: %v, Inactive: %v)", reason, userID, age, idle)
	}
	active := len(sm.sessions)
	sm.mutex.Unlock()

	for _, studio := range removed {
		studio.close()
	}
	if len(removed) > 0 {
		log.Printf("🧼 Cleaned up %d studios (Active: %d)", len(removed), active)
	}
	return len(removed)
}

// Run - 정기 정리 루틴. ctx 취소 시 모든 세션 종료
func (sm *SessionManager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("🔄 Started studio cleanup routine (every %v)", interval)
	for {
		select {
		case <-ctx.Done():
			sm.CloseAll()
			return nil
		case now := <-ticker.C:
			sm.Cleanup(now)
		}
	}
}

// CloseAll - 모든 세션 종료 (서버 종료 시)
func (sm *SessionManager) CloseAll() {
	sm.mutex.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Studio)
	sm.mutex.Unlock()

	for _, studio := range sessions {
		studio.close()
	}
	log.Printf("🛑 Closed %d studios", len(sessions))
}

// Metrics - 현재 메트릭
func (sm *SessionManager) Metrics() Metrics {
	sm.mutex.RLock()
	active := len(sm.sessions)
	clients := 0
	for _, studio := range sm.sessions {
		studio.mu.Lock()
		clients += len(studio.clients)
		studio.mu.Unlock()
	}
	sm.mutex.RUnlock()

	sm.metricsMu.Lock()
	defer sm.metricsMu.Unlock()
	return Metrics{
		TotalSessions:    sm.totalSessions,
		ActiveSessions:   active,
		TotalConnections: sm.totalConnections,
		CurrentClients:   clients,
		StartTime:        sm.startTime,
		Uptime:           time.Since(sm.startTime).String(),
	}
}
