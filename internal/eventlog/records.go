package eventlog

// These record shapes are logged by internal/session and internal/evalclient
// (via the pkg/somhunter facade) and are the JSON payload's exact field set;
// timestamps are stamped by the caller since this package never reads the
// clock itself.

// RescoreRecord is appended to CategoryResults after every successful
// rescore, grounded on logs/logger.cpp's per-rescore result log.
type RescoreRecord struct {
	Timestamp        int64 `json:"timestamp"`
	ContextID        int   `json:"context_id"`
	UsedText         bool  `json:"used_text"`
	UsedCanvasText   bool  `json:"used_canvas_text"`
	UsedCanvasBitmap bool  `json:"used_canvas_bitmap"`
	UsedRelocation   bool  `json:"used_relocation"`
	UsedFeedback     bool  `json:"used_feedback"`
	UsedFilters      bool  `json:"used_filters"`
	UsedKNN          bool  `json:"used_knn"`
}

// ActionRecord is appended to CategoryActions for like/bookmark
// toggles. The shape also admits a "display" action with its Kind; the
// engine does not log display requests.
type ActionRecord struct {
	Timestamp int64  `json:"timestamp"`
	ContextID int    `json:"context_id"`
	Action    string `json:"action"` // "like", "bookmark", "display"
	FrameID   int    `json:"frame_id,omitempty"`
	NewState  bool   `json:"new_state,omitempty"`
	Kind      string `json:"kind,omitempty"` // display kind, when Action == "display"
}

// SubmissionRecord is appended to CategorySubmissions after a
// submit_to_eval_server call, successful or not.
type SubmissionRecord struct {
	Timestamp int64  `json:"timestamp"`
	ContextID int    `json:"context_id"`
	FrameID   int    `json:"frame_id"`
	Result    string `json:"result"` // "correct", "incorrect", "not_authorized", "unknown"
}

// SomQueryRecord describes one SOM worker (re)start with a new weight
// distribution, for CategorySomQueries. The engine does not emit it when
// it restarts a SOM worker.
type SomQueryRecord struct {
	Timestamp  int64 `json:"timestamp"`
	ContextID  int   `json:"context_id"`
	Slot       int   `json:"slot"` // -1 for the global SOM
	FrameCount int   `json:"frame_count"`
}

// VideoReplayRecord and ScrollRecord back log_video_replay/log_scroll,
// grounded on logs/logger.h's replay/scroll event structs.
type VideoReplayRecord struct {
	Timestamp int64 `json:"timestamp"`
	ContextID int   `json:"context_id"`
	FrameID   int   `json:"frame_id"`
}

type ScrollRecord struct {
	Timestamp int64 `json:"timestamp"`
	ContextID int   `json:"context_id"`
	FrameID   int   `json:"frame_id"`
}

// TextQueryChangeRecord backs log_text_query_change.
type TextQueryChangeRecord struct {
	Timestamp int64  `json:"timestamp"`
	ContextID int    `json:"context_id"`
	OldText   string `json:"old_text"`
	NewText   string `json:"new_text"`
}
