package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scriptify-labs/worker-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	started := now.Add(time.Second)
	finished := now.Add(2 * time.Minute)
	runs := []model.Run{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			JobType:    "marketplace_scrape",
			Status:     model.RunStatusSuccess,
			CreatedAt:  now,
			StartedAt:  &started,
			FinishedAt: &finished,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			JobType:   "product_analyze",
			Status:    model.RunStatusStarted,
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "JOB")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "marketplace_scrape")
	assert.Contains(t, output, "SUCCESS")
	assert.Contains(t, output, "product_analyze")
	assert.Contains(t, output, "STARTED")
	assert.Contains(t, output, "2026-03-10 09:15")
	assert.Contains(t, output, "1m59s")
}

func TestFormatRunsList_TruncatesError(t *testing.T) {
	long := "this error message is much longer than the forty characters the table allows"
	runs := []model.Run{
		{ID: "abc12345", JobType: "marketplace_scrape", Status: model.RunStatusFailure, Error: long},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), long)
}

func TestFormatRunStats(t *testing.T) {
	counts := map[model.RunStatus]int{
		model.RunStatusSuccess: 7,
		model.RunStatusFailure: 2,
		model.RunStatusPending: 1,
	}

	var buf bytes.Buffer
	formatRunStats(&buf, counts)

	output := buf.String()
	assert.Contains(t, output, "SUCCESS:")
	assert.Contains(t, output, "7")
	assert.Contains(t, output, "FAILURE:")
	assert.Contains(t, output, "PENDING:")
	assert.Contains(t, output, "Total:")
	assert.Contains(t, output, "10")
	assert.NotContains(t, output, "REVOKED")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
}
