// Package monitor owns the monitoring lifecycle of the signed-in patient:
// it drives the simulator on the scheduler, records the trend, and hands
// snapshots to the persistence gateway.
package monitor

import (
	"context"
	"sync"
	"time"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/history"
	"caregiver-companion/internal/metrics"
	"caregiver-companion/internal/models"
	"caregiver-companion/internal/schedule"
	"caregiver-companion/internal/session"
	"caregiver-companion/internal/simulator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Display receives live state. Implementations must not block and must not
// call back into the Monitor.
type Display interface {
	Render(v models.View)
	Notify(n models.Notification)
}

// Persistence is the part of the gateway the monitor uses.
type Persistence interface {
	Save(ctx context.Context, snap models.SensorSnapshot, ownerID string) (string, error)
	LoadLatest(ctx context.Context, ownerID string) (models.Reading, bool, error)
	LoadHistory(ctx context.Context, ownerID string, max int) ([]models.Reading, error)
}

type Config struct {
	TickInterval     time.Duration
	ConnectDelay     time.Duration
	PersistInterval  time.Duration
	SaveTimeout      time.Duration
	HistoryLoadLimit int
	AutoStart        bool
}

func DefaultConfig() Config {
	return Config{
		TickInterval:     time.Second,
		ConnectDelay:     2 * time.Second,
		PersistInterval:  30 * time.Second,
		SaveTimeout:      10 * time.Second,
		HistoryLoadLimit: gateway.DefaultHistoryLimit,
	}
}

type Monitor struct {
	cfg     Config
	sched   schedule.Scheduler
	store   Persistence
	display Display
	metrics *metrics.Collector
	logger  *zap.Logger

	mu         sync.Mutex
	sim        *simulator.Simulator
	history    *history.Buffer
	ownerID    string
	monitoring bool
	connected  bool
	pulse      int
	generation uint64
	timers     []schedule.Timer
	pulseTimer schedule.Timer

	saves sync.WaitGroup
}

func New(cfg Config, source simulator.VitalsSource, sched schedule.Scheduler, store Persistence,
	display Display, collector *metrics.Collector, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		sched:   sched,
		store:   store,
		display: display,
		metrics: collector,
		logger:  logger,
		sim:     simulator.New(source),
		history: history.NewBuffer(history.MaxSamples),
	}
}

// BindSession subscribes once to identity transitions: sign-in mounts the
// new owner's data, sign-out tears the monitor down.
func (m *Monitor) BindSession(s *session.Session) (unsubscribe func()) {
	return s.Subscribe(func(c session.Change) {
		if c.Previous.Authenticated {
			m.Teardown()
		}
		if c.Current.Authenticated {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SaveTimeout)
			m.Mount(ctx, c.Current.OwnerID)
			cancel()
			if m.cfg.AutoStart {
				m.Start()
			}
		}
	})
}

// Mount binds the monitor to ownerID and hydrates the display from the last
// saved reading and history. Load failures leave the "no data yet" state.
func (m *Monitor) Mount(ctx context.Context, ownerID string) {
	m.mu.Lock()
	m.ownerID = ownerID
	m.sim.Restore(models.NewPlaceholderSnapshot())
	m.mu.Unlock()

	latest, found, latestErr := m.store.LoadLatest(ctx, ownerID)
	readings, historyErr := m.store.LoadHistory(ctx, ownerID, m.cfg.HistoryLoadLimit)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerID != ownerID || m.monitoring {
		return
	}

	if latestErr != nil {
		m.logger.Warn("failed to load latest sensor data", zap.String("owner_id", ownerID), zap.Error(latestErr))
	} else if found {
		snap := latest.Snapshot.Clone()
		snap.ConnectionStatus = models.Disconnected
		m.sim.Restore(snap)
	}

	if historyErr != nil {
		m.logger.Warn("failed to load sensor history", zap.String("owner_id", ownerID), zap.Error(historyErr))
		m.history.Hydrate(nil)
	} else {
		m.history.Hydrate(gateway.Samples(readings))
	}

	if latestErr != nil || historyErr != nil {
		m.notify(models.NotifyLoadFailed, models.LevelWarning, "Could not load saved sensor data")
	}
	m.logger.Info("monitor mounted",
		zap.String("owner_id", ownerID),
		zap.Bool("latest_found", found),
		zap.Int("history", m.history.Len()))
	m.render()
}

// Start begins connecting to the simulated sensor. It is a no-op while
// already monitoring.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitoring {
		return
	}
	m.cancelTimers()
	m.generation++
	gen := m.generation
	m.monitoring = true
	m.connected = false
	m.metrics.Monitoring.Set(1)

	m.notify(models.NotifyConnecting, models.LevelInfo, "Connecting to sensors...")
	m.timers = append(m.timers, m.sched.After(m.cfg.ConnectDelay, func() { m.onConnected(gen) }))
	m.logger.Info("monitoring started", zap.String("owner_id", m.ownerID))
	m.render()
}

// Stop halts every timer, freezes the snapshot and performs one final save.
// It reports whether monitoring was active.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Monitor) stopLocked() bool {
	if !m.monitoring {
		return false
	}
	m.cancelTimers()
	m.generation++
	m.monitoring = false
	m.connected = false
	m.metrics.Monitoring.Set(0)

	m.saveAsync("stop", m.sim.Snapshot(), m.ownerID)
	m.sim.Disconnect()

	m.notify(models.NotifyPaused, models.LevelInfo, "Monitoring paused")
	m.logger.Info("monitoring stopped", zap.String("owner_id", m.ownerID))
	m.render()
	return true
}

// Teardown runs when the owning view goes away: monitoring stops (with its
// final save) and the snapshot is discarded.
func (m *Monitor) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.cancelTimers()
	m.generation++
	m.sim.Restore(models.NewPlaceholderSnapshot())
	m.pulse = 0
	m.ownerID = ""
}

// WaitForSaves blocks until in-flight saves finish.
func (m *Monitor) WaitForSaves() {
	m.saves.Wait()
}

func (m *Monitor) View() models.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Monitoring reports the isMonitoring/isConnected pair.
func (m *Monitor) Monitoring() (monitoring, connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring, m.connected
}

func (m *Monitor) onConnected(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}
	m.connected = true
	m.sim.Connect(m.sched.Now())

	m.timers = append(m.timers,
		m.sched.Every(m.cfg.TickInterval, func() { m.onTick(gen) }),
		m.sched.Every(m.cfg.PersistInterval, func() { m.onPersist(gen) }),
	)
	m.schedulePulse(gen)

	m.notify(models.NotifyConnected, models.LevelInfo, "Sensors connected")
	m.render()
}

func (m *Monitor) onTick(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}
	_, sample := m.sim.Tick(m.sched.Now())
	m.metrics.Ticks.Inc()
	if sample != nil {
		m.history.Append(*sample)
		m.metrics.HistorySamples.Inc()
	}
	m.render()
}

func (m *Monitor) onPersist(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}
	m.saveAsync("periodic", m.sim.Snapshot(), m.ownerID)
}

// schedulePulse drives the cosmetic heartbeat, re-arming itself at the
// current heart rate.
func (m *Monitor) schedulePulse(gen uint64) {
	period := time.Second
	if snap := m.sim.Snapshot(); snap.HeartRate != nil && *snap.HeartRate > 0 {
		period = time.Minute / time.Duration(*snap.HeartRate)
	}
	m.pulseTimer = m.sched.After(period, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.generation {
			return
		}
		m.pulse++
		m.schedulePulse(gen)
	})
}

// saveAsync persists snap without holding up the tick loop.
func (m *Monitor) saveAsync(trigger string, snap models.SensorSnapshot, ownerID string) {
	m.saves.Add(1)
	go func() {
		defer m.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SaveTimeout)
		defer cancel()

		started := time.Now()
		id, err := m.store.Save(ctx, snap, ownerID)
		m.metrics.SaveDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			m.metrics.Saves.WithLabelValues(trigger, "error").Inc()
			m.logger.Warn("error saving sensor data",
				zap.String("trigger", trigger),
				zap.String("owner_id", ownerID),
				zap.Error(err))
			m.mu.Lock()
			m.notifyOwner(ownerID, models.NotifySaveFailed, models.LevelWarning, "Sensor data could not be saved")
			m.mu.Unlock()
			return
		}
		m.metrics.Saves.WithLabelValues(trigger, "ok").Inc()
		m.logger.Debug("sensor data saved",
			zap.String("trigger", trigger),
			zap.String("owner_id", ownerID),
			zap.String("entry_id", id))
	}()
}

func (m *Monitor) cancelTimers() {
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
	if m.pulseTimer != nil {
		m.pulseTimer.Stop()
		m.pulseTimer = nil
	}
}

func (m *Monitor) viewLocked() models.View {
	return models.View{
		OwnerID:      m.ownerID,
		Snapshot:     m.sim.Snapshot(),
		History:      m.history.Samples(),
		IsMonitoring: m.monitoring,
		IsConnected:  m.connected,
		Pulse:        m.pulse,
	}
}

func (m *Monitor) render() {
	m.display.Render(m.viewLocked())
}

func (m *Monitor) notify(kind models.NotificationKind, level models.NotificationLevel, message string) {
	m.notifyOwner(m.ownerID, kind, level, message)
}

func (m *Monitor) notifyOwner(ownerID string, kind models.NotificationKind, level models.NotificationLevel, message string) {
	m.metrics.Notifications.WithLabelValues(string(kind)).Inc()
	m.display.Notify(models.Notification{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Kind:        kind,
		Level:       level,
		Message:     message,
		Dismissible: level != models.LevelInfo,
		Time:        m.sched.Now(),
	})
}
