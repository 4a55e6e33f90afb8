// Package memory is Conversation Memory: a per-session ordered message
// log with context-window extraction and topic/entity summarisation.
//
// Sessions are independent records, so each gets its own *sync.Mutex rather
// than one lock guarding the whole table.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentmeshio/meshcore/internal/observability"
)

// Message is one turn in a conversation. Metadata carries arbitrary
// orchestrator-supplied annotations (e.g. which capability produced it).
type Message struct {
	Sender    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]string
}

// ConversationSession is a per-(sessionID, userID) ordered message log.
// Append-only except for summarisation compaction.
type ConversationSession struct {
	SessionID    string
	UserID       string
	StartedAt    time.Time
	LastActivity time.Time
	Messages     []Message
}

func (s *ConversationSession) clone() *ConversationSession {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

// Context is the orchestrator-facing view built by ContextFor: a bounded
// recent-message window plus derived topics/entities/interaction counts.
type Context struct {
	Messages               []Message
	Topics                 []string
	Entities               []string
	AgentInteractionCounts map[string]int
}

// Summary is the result of Summarise: a synthetic digest of a session,
// suitable for replacing a compacted message prefix.
type Summary struct {
	SessionID string
	Text      string
	Topics    []string
	Entities  []string
}

var topicVocabulary = []string{"weather", "finance", "travel", "assistance"}

// Store holds conversation sessions in memory, one mutex per session.
type Store struct {
	tableMu sync.RWMutex
	table   map[string]*ConversationSession
	locks   sync.Map // sessionID -> *sync.Mutex

	sessionTimeout time.Duration
	maxMessages    int

	metrics *observability.MetricsManager
}

// New constructs a Store. sessionTimeout and maxMessages default to 60
// minutes and 100 messages when non-positive. metrics may be nil.
func New(sessionTimeout time.Duration, maxMessages int, metrics *observability.MetricsManager) *Store {
	if sessionTimeout <= 0 {
		sessionTimeout = 60 * time.Minute
	}
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Store{
		table:          make(map[string]*ConversationSession),
		sessionTimeout: sessionTimeout,
		maxMessages:    maxMessages,
		metrics:        metrics,
	}
}

func (st *Store) lockFor(sessionID string) *sync.Mutex {
	l, _ := st.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (st *Store) get(sessionID string) *ConversationSession {
	st.tableMu.RLock()
	defer st.tableMu.RUnlock()
	if s, ok := st.table[sessionID]; ok {
		return s.clone()
	}
	return nil
}

func (st *Store) set(s *ConversationSession) {
	st.tableMu.Lock()
	defer st.tableMu.Unlock()
	st.table[s.SessionID] = s.clone()
}

// AppendMessage appends msg to sessionID, creating the session on first use.
func (st *Store) AppendMessage(sessionID, userID string, msg Message) {
	lock := st.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s := st.get(sessionID)
	now := msg.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	if s == nil {
		s = &ConversationSession{
			SessionID:    sessionID,
			UserID:       userID,
			StartedAt:    now,
			LastActivity: now,
		}
	}
	s.Messages = append(s.Messages, msg)
	s.LastActivity = now

	if len(s.Messages) > st.maxMessages {
		st.compact(s)
	}
	st.set(s)
}

// compact replaces the oldest prefix of s.Messages with a single
// "_summary" message, keeping the most recent maxMessages/2 messages
// intact. Caller must hold the session lock.
func (st *Store) compact(s *ConversationSession) {
	keep := st.maxMessages / 2
	if keep < 1 {
		keep = 1
	}
	if len(s.Messages) <= keep {
		return
	}
	cutoff := len(s.Messages) - keep
	summarised := s.Messages[:cutoff]

	summary := Summary{
		SessionID: s.SessionID,
		Text:      summariseText(summarised),
		Topics:    extractTopics(summarised),
		Entities:  extractEntities(summarised),
	}
	summaryMsg := Message{
		Sender:    "_summary",
		Content:   summary.Text,
		Timestamp: summarised[len(summarised)-1].Timestamp,
		Metadata:  map[string]string{"compacted_count": strconv.Itoa(len(summarised))},
	}
	s.Messages = append([]Message{summaryMsg}, s.Messages[cutoff:]...)

	if st.metrics != nil {
		st.metrics.IncrementMemoryCompactions(context.Background())
	}
}

// RecentMessages returns the last n messages of sessionID, oldest first.
func (st *Store) RecentMessages(sessionID string, n int) []Message {
	s := st.get(sessionID)
	if s == nil {
		return nil
	}
	if n <= 0 || n >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Search scans every session belonging to userID for messages whose
// content contains query (case-insensitive), newest first.
func (st *Store) Search(userID, query string) []Message {
	st.tableMu.RLock()
	var sessions []*ConversationSession
	for _, s := range st.table {
		if s.UserID == userID {
			sessions = append(sessions, s.clone())
		}
	}
	st.tableMu.RUnlock()

	q := strings.ToLower(query)
	var out []Message
	for _, s := range sessions {
		for i := len(s.Messages) - 1; i >= 0; i-- {
			if strings.Contains(strings.ToLower(s.Messages[i].Content), q) {
				out = append(out, s.Messages[i])
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// ContextFor builds the orchestrator-facing Context for sessionID: the
// default context window of recent messages plus derived topics, entities,
// and per-sender interaction counts.
func (st *Store) ContextFor(sessionID string, windowSize int) Context {
	s := st.get(sessionID)
	if s == nil {
		return Context{AgentInteractionCounts: map[string]int{}}
	}
	if windowSize <= 0 {
		windowSize = 20
	}
	window := s.Messages
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}

	counts := make(map[string]int)
	for _, m := range s.Messages {
		if m.Sender != "" && m.Sender != "_summary" {
			counts[m.Sender]++
		}
	}

	return Context{
		Messages:               window,
		Topics:                 extractTopics(window),
		Entities:               extractEntities(window),
		AgentInteractionCounts: counts,
	}
}

// Summarise produces a Summary over sessionID's full message log without
// mutating it (unlike the implicit compaction AppendMessage performs).
func (st *Store) Summarise(sessionID string) Summary {
	s := st.get(sessionID)
	if s == nil {
		return Summary{SessionID: sessionID}
	}
	return Summary{
		SessionID: sessionID,
		Text:      summariseText(s.Messages),
		Topics:    extractTopics(s.Messages),
		Entities:  extractEntities(s.Messages),
	}
}

// IsActive reports whether sessionID has had activity within sessionTimeout
// of now.
func (st *Store) IsActive(sessionID string, now time.Time) bool {
	s := st.get(sessionID)
	if s == nil {
		return false
	}
	return now.Sub(s.LastActivity) < st.sessionTimeout
}

// EvictInactive removes every session whose last activity predates
// retention. Returns the number of sessions evicted.
func (st *Store) EvictInactive(now time.Time, retention time.Duration) int {
	st.tableMu.Lock()
	defer st.tableMu.Unlock()
	evicted := 0
	for id, s := range st.table {
		if now.Sub(s.LastActivity) > retention {
			delete(st.table, id)
			evicted++
		}
	}
	return evicted
}

func summariseText(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Summary of ")
	b.WriteString(strconv.Itoa(len(msgs)))
	b.WriteString(" messages: ")
	for i, m := range msgs {
		if i > 0 {
			b.WriteString(" ")
		}
		content := m.Content
		if len(content) > 60 {
			content = content[:60]
		}
		b.WriteString(m.Sender)
		b.WriteString(": ")
		b.WriteString(content)
		if i >= 4 {
			b.WriteString(" ...")
			break
		}
	}
	return b.String()
}

func extractTopics(msgs []Message) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range msgs {
		lower := strings.ToLower(m.Content)
		for _, topic := range topicVocabulary {
			if strings.Contains(lower, topic) {
				if _, ok := seen[topic]; !ok {
					seen[topic] = struct{}{}
					out = append(out, topic)
				}
			}
		}
	}
	return out
}

// extractEntities returns capitalised tokens longer than 3 characters,
// deduplicated in first-seen order. Intentionally simple: a real NER pass
// is out of scope for an in-process context summariser.
func extractEntities(msgs []Message) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range msgs {
		for _, tok := range strings.Fields(m.Content) {
			tok = strings.Trim(tok, ".,!?;:\"'()")
			if len(tok) <= 3 {
				continue
			}
			r := rune(tok[0])
			if r < 'A' || r > 'Z' {
				continue
			}
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				out = append(out, tok)
			}
		}
	}
	return out
}
