package usercontext

import (
	"context"
	"time"

	"github.com/vellumhq/vellum/internal/aggregator"
	"github.com/vellumhq/vellum/internal/core"
)

// AgentSession is the minimal per-user conversational state the router
// keeps warm between messages (mode, working directory). Metadata holds
// free-form per-session state.
type AgentSession struct {
	UserID     int64
	Mode       core.Mode
	WorkingDir string
	Metadata   map[string]any
}

// Manager is the concrete C6 cache: one Aggregator and one AgentSession per
// userId, invalidated together so a KB reconfigure or /reset clears both.
type Manager struct {
	aggregators *Cache[*aggregator.Aggregator]
	sessions    *Cache[*AgentSession]

	groupTimeout time.Duration
	tick         time.Duration
	dispatch     func(userID int64, group *core.MessageGroup)
}

// NewManager builds a Manager. dispatch is invoked by every user's
// aggregator once a message group seals.
func NewManager(groupTimeout, tick time.Duration, dispatch func(userID int64, group *core.MessageGroup)) *Manager {
	return &Manager{
		aggregators:  New[*aggregator.Aggregator](),
		sessions:     New[*AgentSession](),
		groupTimeout: groupTimeout,
		tick:         tick,
		dispatch:     dispatch,
	}
}

// GetOrCreateAggregator returns userID's running Aggregator, starting a new
// one on first access.
func (m *Manager) GetOrCreateAggregator(userID int64) *aggregator.Aggregator {
	return m.aggregators.GetOrCreate(userID, func() (*aggregator.Aggregator, func(*aggregator.Aggregator)) {
		agg := aggregator.New(m.groupTimeout, m.tick, func(group *core.MessageGroup) {
			m.dispatch(userID, group)
		})
		agg.Start(context.Background())
		return agg, func(a *aggregator.Aggregator) { a.Stop() }
	})
}

// GetOrCreateAgent returns userID's cached session, seeding it with
// DefaultMode on first access.
func (m *Manager) GetOrCreateAgent(userID int64, workingDir string) *AgentSession {
	return m.sessions.GetOrCreate(userID, func() (*AgentSession, func(*AgentSession)) {
		return &AgentSession{
			UserID:     userID,
			Mode:       core.DefaultMode,
			WorkingDir: workingDir,
			Metadata:   make(map[string]any),
		}, nil
	})
}

// Invalidate evicts both the aggregator and the session for userID,
// stopping the aggregator's background loop first.
func (m *Manager) Invalidate(userID int64) {
	m.aggregators.Invalidate(userID)
	m.sessions.Invalidate(userID)
}
