/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package webapi

import (
	"context"
	"fmt"
	"net/http"
)

// CallStatisticsRecord is the quality report submitted once per completed
// call. CallID is the stable identifier assigned when the call became
// active and is the server-side uniqueness key — the backend answers 409
// for a call_id it has already stored.
type CallStatisticsRecord struct {
	CallID          string         `json:"call_id"`
	UserID          string         `json:"user_id"`
	StartTime       string         `json:"start_time"`
	EndTime         string         `json:"end_time"`
	DurationSeconds int            `json:"duration_seconds"`
	StatsBlob       map[string]any `json:"stats_blob"`
}

// SubmitCallStatistics posts a call statistics record to the backend.
// Returns a ConflictError when the call was already recorded.
func (c *Client) SubmitCallStatistics(ctx context.Context, rec *CallStatisticsRecord) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.CallID == "" {
		return fmt.Errorf("call_id is required")
	}

	resp, err := c.Request(ctx, http.MethodPost, "callstats", nil, rec)
	if err != nil {
		return err
	}

	return ParseResponse(resp, nil)
}
