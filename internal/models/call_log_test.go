package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestResolveProvider(t *testing.T) {
	testCases := []struct {
		name     string
		record   CallLogRecord
		expected CallProvider
	}{
		{
			name:     "explicit softphone tag",
			record:   CallLogRecord{Provider: ProviderSoftphone, AIRecordingURL: strPtr("https://x/y.wav")},
			expected: ProviderSoftphone,
		},
		{
			name:     "explicit ai-dialer tag",
			record:   CallLogRecord{Provider: ProviderAIDialer},
			expected: ProviderAIDialer,
		},
		{
			name:     "legacy record inferred from ai recording url",
			record:   CallLogRecord{AIRecordingURL: strPtr("https://x/y.wav")},
			expected: ProviderAIDialer,
		},
		{
			name:     "legacy record defaults to softphone",
			record:   CallLogRecord{RecordingSID: strPtr("RE123")},
			expected: ProviderSoftphone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.record.ResolveProvider())
		})
	}
}

func TestAnalysisPending(t *testing.T) {
	testCases := []struct {
		name     string
		record   CallLogRecord
		expected bool
	}{
		{
			name: "all completed",
			record: CallLogRecord{
				Provider:                 ProviderSoftphone,
				TranscriptionStatus:      AnalysisCompleted,
				LeadSuccessScoreStatus:   AnalysisCompleted,
				FollowupSuggestionStatus: AnalysisCompleted,
			},
			expected: false,
		},
		{
			name: "one pending",
			record: CallLogRecord{
				Provider:                 ProviderSoftphone,
				TranscriptionStatus:      AnalysisCompleted,
				LeadSuccessScoreStatus:   AnalysisPending,
				FollowupSuggestionStatus: AnalysisCompleted,
			},
			expected: true,
		},
		{
			name: "softphone not-requested is settled",
			record: CallLogRecord{
				Provider:                 ProviderSoftphone,
				TranscriptionStatus:      AnalysisNotRequested,
				LeadSuccessScoreStatus:   AnalysisNotRequested,
				FollowupSuggestionStatus: AnalysisNotRequested,
			},
			expected: false,
		},
		{
			name: "ai-dialer defaults with no transcript are effectively pending",
			record: CallLogRecord{
				Provider:                 ProviderAIDialer,
				TranscriptionStatus:      AnalysisNotRequested,
				LeadSuccessScoreStatus:   AnalysisNotRequested,
				FollowupSuggestionStatus: AnalysisNotRequested,
			},
			expected: true,
		},
		{
			name: "ai-dialer with transcript text is settled",
			record: CallLogRecord{
				Provider:            ProviderAIDialer,
				TranscriptionStatus: AnalysisNotRequested,
				TranscriptionText:   "Hello, this is a transcript.",
			},
			expected: false,
		},
		{
			name: "failed analysis is settled",
			record: CallLogRecord{
				Provider:                 ProviderSoftphone,
				TranscriptionStatus:      AnalysisFailed,
				LeadSuccessScoreStatus:   AnalysisFailed,
				FollowupSuggestionStatus: AnalysisFailed,
			},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.record.AnalysisPending())
		})
	}
}

func TestUpsertAndListCallLogs(t *testing.T) {
	db := setupTestDBWithSilentLogger(t, &CallLogRecord{})

	now := time.Now()
	records := []CallLogRecord{
		{ID: "cl-1", LeadID: "lead-1", Direction: "outbound", Status: "completed", StartedAt: now.Add(-time.Hour)},
		{ID: "cl-2", LeadID: "lead-1", Direction: "inbound", Status: "missed", StartedAt: now},
		{ID: "cl-3", LeadID: "lead-2", Direction: "outbound", Status: "completed", StartedAt: now},
	}
	require.NoError(t, UpsertCallLogs(db, records))

	got, err := GetCallLogsByLeadID(db, "lead-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cl-2", got[0].ID, "newest first")

	// Re-fetching updated backend state replaces the mirror row.
	records[0].Status = "failed"
	require.NoError(t, UpsertCallLogs(db, records[:1]))
	rec, err := GetCallLogByID(db, "cl-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.Status)

	// Limit applies.
	got, err = GetCallLogsByLeadID(db, "lead-1", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
