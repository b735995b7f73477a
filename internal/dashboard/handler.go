package dashboard

import (
	"context"
	"encoding/json"
	"log"
	gosync "sync"
	"time"

	"github.com/sanorte/vistorias/internal/offline/schema"
	"github.com/sanorte/vistorias/internal/sync"
)

// PendingCountData carries the candidate-set size
type PendingCountData struct {
	Pending int `json:"pending"`
}

// SyncStartedData contains pass start information
type SyncStartedData struct {
	Candidates int `json:"candidates"`
}

// SyncCompleteData contains pass completion information
type SyncCompleteData struct {
	Candidates int    `json:"candidates"`
	Synced     int    `json:"synced"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Uploaded   int    `json:"uploaded"`
	Purged     int    `json:"purged"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// InspectionUpdateData contains the sync outcome of one inspection
type InspectionUpdateData struct {
	ExternalID string `json:"external_id"`
	SyncState  string `json:"sync_state"`
	ServerID   string `json:"server_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// StatsData contains inspection statistics
type StatsData struct {
	Total       int            `json:"total"`
	BySyncState map[string]int `json:"by_sync_state"`
	Pending     int            `json:"pending"`
	LastSyncAt  *time.Time     `json:"last_sync_at,omitempty"`
}

// StatsSource provides the numbers behind the stats message. *db.DB
// implements it.
type StatsSource interface {
	GetCountsContext(ctx context.Context) (map[schema.SyncState]int, error)
	LastSyncAt(ctx context.Context) (time.Time, error)
}

// Handler turns sync engine events into dashboard messages. It implements
// sync.Observer and can be passed to the daemon as its pending callback.
type Handler struct {
	server *Server
	source StatsSource
	logger *log.Logger

	mu    gosync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server.
// source may be nil, in which case no stats messages are sent.
func NewHandler(server *Server, source StatsSource, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		source: source,
		logger: logger,
		stats:  StatsData{BySyncState: make(map[string]int)},
	}
}

// SyncStarted implements sync.Observer.
func (h *Handler) SyncStarted(candidates int) {
	h.send(MessageTypeSyncStarted, SyncStartedData{Candidates: candidates})
}

// SyncFinished implements sync.Observer.
func (h *Handler) SyncFinished(res *sync.Result, err error) {
	data := SyncCompleteData{}
	if res != nil {
		data.Candidates = res.Candidates
		data.Synced = res.Synced
		data.Failed = res.Failed
		data.Skipped = res.Skipped
		data.Uploaded = res.Uploaded
		data.Purged = res.Purged
		data.DurationMS = res.Duration.Milliseconds()

		for _, o := range res.Outcomes {
			h.send(MessageTypeInspectionUpdate, InspectionUpdateData{
				ExternalID: o.ExternalID,
				SyncState:  o.State.String(),
				ServerID:   o.ServerID,
				Message:    o.Message,
			})
		}
	}
	if err != nil {
		data.Error = err.Error()
	}
	h.send(MessageTypeSyncComplete, data)
	h.RefreshStats(context.Background())
}

// OnPending broadcasts the current candidate-set size.
func (h *Handler) OnPending(n int) {
	h.mu.Lock()
	changed := h.stats.Pending != n
	h.stats.Pending = n
	h.mu.Unlock()

	h.send(MessageTypePendingCount, PendingCountData{Pending: n})
	if changed {
		h.RefreshStats(context.Background())
	}
}

// RefreshStats recomputes statistics from the store and broadcasts them.
func (h *Handler) RefreshStats(ctx context.Context) {
	if h.source == nil {
		return
	}
	counts, err := h.source.GetCountsContext(ctx)
	if err != nil {
		h.logger.Printf("Failed to load stats: %v", err)
		return
	}
	last, err := h.source.LastSyncAt(ctx)
	if err != nil {
		h.logger.Printf("Failed to load last sync time: %v", err)
	}

	h.mu.Lock()
	h.stats.Total = 0
	h.stats.BySyncState = make(map[string]int, len(counts))
	for state, n := range counts {
		h.stats.BySyncState[state.String()] = n
		h.stats.Total += n
	}
	h.stats.Pending = counts[schema.SyncStatePending] + counts[schema.SyncStateError]
	h.stats.LastSyncAt = nil
	if !last.IsZero() {
		h.stats.LastSyncAt = &last
	}
	snapshot := h.copyStats()
	h.mu.Unlock()

	h.send(MessageTypeStats, snapshot)
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.copyStats()
}

func (h *Handler) copyStats() StatsData {
	out := h.stats
	out.BySyncState = make(map[string]int, len(h.stats.BySyncState))
	for k, v := range h.stats.BySyncState {
		out.BySyncState[k] = v
	}
	return out
}

func (h *Handler) send(t MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", t, err)
		return
	}
	h.server.Broadcast(Message{Type: t, Timestamp: time.Now(), Data: data})
}

var _ sync.Observer = (*Handler)(nil)
