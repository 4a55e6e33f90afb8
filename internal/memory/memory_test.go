package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendMessageCreatesSessionOnFirstUse(t *testing.T) {
	st := New(time.Hour, 100, nil)
	st.AppendMessage("s1", "u1", Message{Sender: "user", Content: "hello", Timestamp: time.Now()})

	msgs := st.RecentMessages("s1", 10)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Content)
}

func TestRecentMessagesReturnsLastN(t *testing.T) {
	st := New(time.Hour, 100, nil)
	base := time.Now()
	for i := 0; i < 5; i++ {
		st.AppendMessage("s1", "u1", Message{Sender: "user", Content: "m", Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	msgs := st.RecentMessages("s1", 2)
	require.Len(t, msgs, 2)
}

func TestSearchFindsSubstringAcrossSessions(t *testing.T) {
	st := New(time.Hour, 100, nil)
	st.AppendMessage("s1", "alice", Message{Sender: "user", Content: "what is the weather in Paris", Timestamp: time.Now()})
	st.AppendMessage("s2", "alice", Message{Sender: "user", Content: "book me a flight", Timestamp: time.Now()})
	st.AppendMessage("s3", "bob", Message{Sender: "user", Content: "weather forecast", Timestamp: time.Now()})

	results := st.Search("alice", "weather")
	require.Len(t, results, 1)
	require.Contains(t, results[0].Content, "weather")
}

func TestContextForDerivesTopicsAndEntities(t *testing.T) {
	st := New(time.Hour, 100, nil)
	st.AppendMessage("s1", "u1", Message{Sender: "user", Content: "What is the Weather like in London today?", Timestamp: time.Now()})
	st.AppendMessage("s1", "u1", Message{Sender: "weather-agent", Content: "Sunny in London, 20C", Timestamp: time.Now()})

	ctx := st.ContextFor("s1", 20)
	require.Contains(t, ctx.Topics, "weather")
	require.Contains(t, ctx.Entities, "London")
	require.Equal(t, 1, ctx.AgentInteractionCounts["user"])
	require.Equal(t, 1, ctx.AgentInteractionCounts["weather-agent"])
}

func TestContextForWindowIsBoundedAndTrailing(t *testing.T) {
	st := New(time.Hour, 1000, nil)
	base := time.Now()
	for i := 0; i < 30; i++ {
		st.AppendMessage("s1", "u1", Message{Sender: "user", Content: "msg", Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	ctx := st.ContextFor("s1", 5)
	require.Len(t, ctx.Messages, 5)
}

func TestCompactionReplacesOldestPrefixWithSummary(t *testing.T) {
	st := New(time.Hour, 10, nil)
	base := time.Now()
	for i := 0; i < 11; i++ {
		st.AppendMessage("s1", "u1", Message{Sender: "user", Content: "message", Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	msgs := st.RecentMessages("s1", 100)
	require.Equal(t, "_summary", msgs[0].Sender)
	require.Less(t, len(msgs), 12)
}

func TestIsActiveReflectsSessionTimeout(t *testing.T) {
	st := New(10*time.Millisecond, 100, nil)
	now := time.Now()
	st.AppendMessage("s1", "u1", Message{Sender: "user", Content: "hi", Timestamp: now})

	require.True(t, st.IsActive("s1", now))
	require.False(t, st.IsActive("s1", now.Add(time.Hour)))
}

func TestEvictInactiveRemovesStaleSessions(t *testing.T) {
	st := New(time.Hour, 100, nil)
	now := time.Now()
	st.AppendMessage("old", "u1", Message{Sender: "user", Content: "hi", Timestamp: now.Add(-2 * time.Hour)})
	st.AppendMessage("fresh", "u1", Message{Sender: "user", Content: "hi", Timestamp: now})

	evicted := st.EvictInactive(now, time.Hour)
	require.Equal(t, 1, evicted)
	require.Nil(t, st.get("old"))
	require.NotNil(t, st.get("fresh"))
}

func TestSummariseDoesNotMutateSession(t *testing.T) {
	st := New(time.Hour, 100, nil)
	st.AppendMessage("s1", "u1", Message{Sender: "user", Content: "Tell me about Finance", Timestamp: time.Now()})

	summary := st.Summarise("s1")
	require.Contains(t, summary.Topics, "finance")
	require.Len(t, st.RecentMessages("s1", 100), 1, "summarise must not compact the live session")
}
