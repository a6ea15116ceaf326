/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package phone

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tejzpr/softphone-go/webapi"
)

// Snapshotter captures a stats snapshot from a call's peer connection.
type Snapshotter interface {
	StatsSnapshot() (map[string]any, error)
}

// StatsSubmitter posts a finished call's statistics record.
type StatsSubmitter interface {
	SubmitCallStatistics(ctx context.Context, rec *webapi.CallStatisticsRecord) error
}

// StatisticsReporter assembles and submits the post-call statistics
// record. Submission is fire-and-forget: failures are logged and never
// retried, and nothing here blocks call teardown.
type StatisticsReporter struct {
	submitter StatsSubmitter
	logger    Logger
	timeout   time.Duration
}

// NewStatisticsReporter creates a reporter submitting through the given
// client.
func NewStatisticsReporter(submitter StatsSubmitter, logger Logger) *StatisticsReporter {
	return &StatisticsReporter{
		submitter: submitter,
		logger:    logger,
		timeout:   15 * time.Second,
	}
}

// Report captures stats from the session and submits the record. It aborts
// with a log line — no network call — when any precondition is missing:
// live token and user-ID accessors, a session, a call ID, and a start
// time. The accessors are read at call time so the report reflects the
// current auth state, not the state when the call began.
func (r *StatisticsReporter) Report(sess Snapshotter, callID string, start, end time.Time, token, userID func() string) {
	if token == nil || userID == nil {
		r.logf("stats: auth accessors not available")
		return
	}
	if sess == nil || callID == "" || start.IsZero() {
		r.logf("stats: missing session, call ID, or start time")
		return
	}

	tok := token()
	uid := userID()
	if tok == "" || uid == "" {
		r.logf("stats: missing token or user ID")
		return
	}

	duration := int(math.Round(end.Sub(start).Seconds()))

	blob, err := sess.StatsSnapshot()
	if err != nil {
		r.logf("stats: error capturing snapshot: %v", err)
		blob = map[string]any{"error": fmt.Sprintf("failed to retrieve stats: %v", err)}
	}

	rec := &webapi.CallStatisticsRecord{
		CallID:          callID,
		UserID:          uid,
		StartTime:       start.UTC().Format(time.RFC3339),
		EndTime:         end.UTC().Format(time.RFC3339),
		DurationSeconds: duration,
		StatsBlob:       blob,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.submitter.SubmitCallStatistics(ctx, rec); err != nil {
			r.logf("stats: submission failed for call %s: %v", callID, err)
			return
		}
		r.logf("stats: submitted record for call %s (%ds)", callID, duration)
	}()
}

func (r *StatisticsReporter) logf(format string, v ...any) {
	if r.logger != nil {
		r.logger.Printf(format, v...)
	}
}
