package render

import (
	"strings"
	"testing"
	"time"

	"github.com/cristianoliveira/freshshell/internal/colors"
	"github.com/cristianoliveira/freshshell/internal/notify"
	"github.com/stretchr/testify/assert"
)

func TestKindIcon(t *testing.T) {
	tests := []struct {
		kind     notify.Kind
		expected string
	}{
		{notify.KindError, "❌ err"},
		{notify.KindWarning, "⚠️ wrn"},
		{notify.KindSuccess, "✓ ok"},
		{notify.KindInfo, "ℹ️ inf"},
		{"", "ℹ️ inf"},
		{"notice", "ℹ️ not"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, kindIcon(tt.kind))
		})
	}
}

func TestCalculateAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		created  time.Time
		expected string
	}{
		{"zero", time.Time{}, ""},
		{"seconds", now.Add(-42 * time.Second), "42s"},
		{"minutes", now.Add(-5 * time.Minute), "5m"},
		{"hours", now.Add(-3 * time.Hour), "3h"},
		{"days", now.Add(-50 * time.Hour), "2d"},
		{"future", now.Add(time.Minute), "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, calculateAge(tt.created, now))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a long ...", truncate("a long title here", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "anything", truncate("anything", 0))
}

func TestAnsiColorNumber(t *testing.T) {
	assert.Equal(t, "34", ansiColorNumber(colors.Blue))
	assert.Equal(t, "33", ansiColorNumber(colors.Yellow))
	assert.Equal(t, "", ansiColorNumber("x"))
}

func TestRowContainsTitleActionAndAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := Row(RowState{
		Notification: notify.Notification{
			ID:        "app-update",
			Kind:      notify.KindInfo,
			Title:     "A new version is available",
			CreatedAt: now.Add(-2 * time.Minute),
			Action:    &notify.Action{Label: "Reload"},
		},
		Width: 100,
		Now:   now,
	})

	assert.Contains(t, row, "A new version is available")
	assert.Contains(t, row, "[Reload]")
	assert.Contains(t, row, "2m")
}

func TestRowMarksExitingNotifications(t *testing.T) {
	row := Row(RowState{Notification: notify.Notification{Title: "Saved", Body: "draft", Exiting: true}})

	assert.Contains(t, row, "Saved: draft "+exitingSymbol)
}

func TestHeaderAndFooter(t *testing.T) {
	header := Header(HeaderState{Origin: "https://app.example.com", State: "registered", Count: 2})
	assert.Contains(t, header, "https://app.example.com")
	assert.Contains(t, header, "[registered]")
	assert.Contains(t, header, "2 notification(s)")

	footer := Footer(FooterState{HasAction: true, Status: "reloaded"})
	assert.Contains(t, footer, "Enter: run action")
	assert.True(t, strings.Contains(footer, "reloaded"))
	assert.NotContains(t, Footer(FooterState{}), "Enter")
	assert.Contains(t, Empty(), "No notifications")
}
