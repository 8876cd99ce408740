// Package somhunter is the facade over the whole engine: one Engine
// per process, owning the immutable catalog/feature/keyword data and a
// map of per-user sessions, grounded on the teacher's pkg/sqvect.DB
// facade over pkg/core.SQLiteStore — the same "load the heavy
// immutable state once, hand out lightweight per-caller handles"
// shape, generalized from one vector store to one retrieval engine.
//
// The richer of the two class names the original source oscillates
// between (SomHunter vs Somhunter) is resolved here in favor of a
// single type, Engine, exposing the richer NetworkApi's endpoint set
// named in spec.md §6 — the narrower, superseded API is not
// implemented.
package somhunter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/siret/somhunter-go/internal/catalog"
	"github.com/siret/somhunter-go/internal/config"
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/evalclient"
	"github.com/siret/somhunter-go/internal/eventlog"
	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/index"
	"github.com/siret/somhunter-go/internal/logging"
	"github.com/siret/somhunter-go/internal/rankers"
	"github.com/siret/somhunter-go/internal/session"
	"github.com/siret/somhunter-go/internal/store"
	"github.com/siret/somhunter-go/internal/types"
)

// Engine is the process-wide facade: one immutable catalog/feature/
// keyword/index state, shared rankers, and a map of per-user sessions
// each guarded by its own mutex (callers may interleave calls across
// different tokens freely; calls against the same token serialize).
type Engine struct {
	cfg *config.Config
	log logging.Logger

	catalog *catalog.FrameCatalog
	deps    *session.Deps

	events *eventlog.Log
	db     *store.Store
	eval   *evalclient.Client

	mu       sync.Mutex
	sessions map[string]*userSession
}

type userSession struct {
	mu   sync.Mutex
	user *session.UserContext
}

// Open loads every piece of immutable state named in the config file
// and constructs an Engine ready to serve sessions, grounded on the
// teacher's sqvect.Open (load config, build store, wire options).
func Open(ctx context.Context, cfg *config.Config, log logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.NopLogger()
	}

	cat, err := catalog.Load(cfg.FramesListFile, catalog.FilenameOffsets{
		FilenameOff: cfg.FilenameOffsets.FilenameOff,
		VidIDOff:    cfg.FilenameOffsets.VidIDOff,
		VidIDLen:    cfg.FilenameOffsets.VidIDLen,
		ShotIDOff:   cfg.FilenameOffsets.ShotIDOff,
		ShotIDLen:   cfg.FilenameOffsets.ShotIDLen,
		FrameNumOff: cfg.FilenameOffsets.FrameNumOff,
		FrameNumLen: cfg.FilenameOffsets.FrameNumLen,
	}, cfg.LSCMetadataFile, cfg.MaxFrameFilenameLen)
	if err != nil {
		return nil, err
	}

	feat, err := features.LoadMatrix(cfg.FeaturesFile, cfg.FeaturesFileDataOff, cfg.FeaturesDim)
	if err != nil {
		return nil, err
	}

	var kw *features.Table
	if cfg.Keywords.KwsFile != "" {
		kw, err = features.LoadKeywords(cfg.Keywords.KwsFile, cfg.Keywords.PrePCADim, cfg.Keywords.PCAMatDim,
			cfg.Keywords.ScoresMatFile, cfg.Keywords.BiasVecFile, cfg.Keywords.PCAMeanFile, cfg.Keywords.PCAMatFile)
		if err != nil {
			return nil, err
		}
	}

	idx := index.Build(feat, cfg.IndexM, cfg.IndexEfConstruction)

	deps := &session.Deps{
		Catalog:  cat,
		Features: feat,
		Index:    idx,

		Text: &rankers.TextRanker{KW: kw},
		KNN:  &rankers.KNNRanker{Index: idx},

		SomWidth:        cfg.SomWidth,
		SomHeight:       cfg.SomHeight,
		SomParallelism:  cfg.SomParallelism,
		DisplayPageSize: cfg.DisplayPageSize,
		TopCacheSize:    cfg.TopNCacheSize,
		TopNPerVideoCap: cfg.TopNFramesPerVideo,
		TopNPerShotCap:  cfg.TopNFramesPerShot,
	}

	if cfg.Secondary.Endpoint != "" {
		deps.Secondary = &rankers.SecondaryTextRanker{
			Endpoint: cfg.Secondary.Endpoint,
			Log:      log.With("component", "secondary_ranker"),
		}
	}
	if cfg.Canvas.ModelResNetFile != "" || cfg.Canvas.ModelResNextFile != "" {
		deps.Canvas = &rankers.CanvasRanker{
			Text: deps.Text,
			Log:  log.With("component", "canvas_ranker"),
		}
	}

	events := eventlog.New(cfg.EventLog.Dir)
	db, err := store.Open(ctx, cfg.Store.Path, log.With("component", "event_store"))
	if err != nil {
		return nil, err
	}

	var eval *evalclient.Client
	if cfg.EvalServer.Endpoint != "" {
		eval = evalclient.New(cfg.EvalServer.Endpoint, cfg.EvalServer.Username, cfg.EvalServer.Password,
			cfg.EvalServer.DatasetID, log.With("component", "eval_client"))
		deps.Submitter = eval
	}

	return &Engine{
		cfg:      cfg,
		log:      log,
		catalog:  cat,
		deps:     deps,
		events:   events,
		db:       db,
		eval:     eval,
		sessions: make(map[string]*userSession),
	}, nil
}

// Close releases every owned resource (event store, logs).
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions {
		s.user.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
	if e.events != nil {
		e.events.Close()
	}
	return nil
}

// session returns (creating if needed) the userSession for token, per
// spec.md §3's "one session per user token" — the engine never
// multiplexes concurrent sessions for the same token onto different
// state.
func (e *Engine) session(token string) *userSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[token]; ok {
		return s
	}
	rng := rand.New(rand.NewSource(seedFor(token)))
	u := session.NewUserContext(token, e.deps, rng)
	s := &userSession{user: u}
	e.sessions[token] = s
	return s
}

func seedFor(token string) int64 {
	var h int64 = 1469598103934665603
	for _, c := range token {
		h ^= int64(c)
		h *= 1099511628211
	}
	if h == 0 {
		return 1
	}
	return h
}

// Rescore runs /search/rescore for token.
func (e *Engine) Rescore(ctx context.Context, token string, q session.Query) (int, []*session.SearchContext, error) {
	s := e.session(token)
	s.mu.Lock()
	defer s.mu.Unlock()

	id, hist, err := s.user.Rescore(ctx, q)
	if err != nil {
		return 0, nil, err
	}
	e.logRescore(ctx, id, s.user.Current.UsedTools)
	return id, hist, nil
}

func (e *Engine) logRescore(ctx context.Context, contextID int, used session.UsedTools) {
	ts := time.Now().UnixMilli()
	rec := eventlog.RescoreRecord{
		Timestamp:        ts,
		ContextID:        contextID,
		UsedText:         used.Text,
		UsedCanvasText:   used.CanvasText,
		UsedCanvasBitmap: used.CanvasBitmap,
		UsedRelocation:   used.Relocation,
		UsedFeedback:     used.Feedback,
		UsedFilters:      used.Filters,
		UsedKNN:          used.KNN,
	}
	if err := e.events.Append(eventlog.CategoryResults, rec); err != nil {
		e.log.Warn("failed to append rescore event log", "err", err)
	}
	if err := e.db.RecordRescore(ctx, ts, rec); err != nil {
		e.log.Warn("failed to record rescore event", "err", err)
	}
}

// GetDisplay runs /search/get-top-display (and the SOM/k-NN/video-
// detail variants, dispatched by kind) for token.
func (e *Engine) GetDisplay(token string, kind session.DisplayKind, anchor types.OptionalFrame, page int, logIt bool) ([]types.OptionalFrame, error) {
	s := e.session(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.GetDisplay(kind, anchor, page, logIt)
}

// LikeFrames toggles likes for token's current context.
func (e *Engine) LikeFrames(ctx context.Context, token string, ids []types.FrameID) []bool {
	s := e.session(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.user.LikeFrames(ids)
	e.logToggle(ctx, s.user.Current.ID, "like", ids, out)
	return out
}

// BookmarkFrames toggles bookmarks for token.
func (e *Engine) BookmarkFrames(ctx context.Context, token string, ids []types.FrameID) []bool {
	s := e.session(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.user.BookmarkFrames(ids)
	e.logToggle(ctx, s.user.Current.ID, "bookmark", ids, out)
	return out
}

func (e *Engine) logToggle(ctx context.Context, contextID int, action string, ids []types.FrameID, states []bool) {
	ts := time.Now().UnixMilli()
	for i, id := range ids {
		rec := eventlog.ActionRecord{Timestamp: ts, ContextID: contextID, Action: action, FrameID: int(id), NewState: states[i]}
		if err := e.events.Append(eventlog.CategoryActions, rec); err != nil {
			e.log.Warn("failed to append action event log", "err", err)
		}
		if err := e.db.RecordAction(ctx, ts, rec); err != nil {
			e.log.Warn("failed to record action event", "err", err)
		}
	}
}

// AutocompleteKeywords runs /user/... autocomplete_keywords(prefix, count).
func (e *Engine) AutocompleteKeywords(prefix string, count int) []features.AutocompleteCandidate {
	if e.deps.Text == nil || e.deps.Text.KW == nil {
		return nil
	}
	return e.deps.Text.KW.Autocomplete(prefix, count)
}

// SwitchSearchContext runs /search/switch-context.
func (e *Engine) SwitchSearchContext(token string, historyIndex int, screenshotPath, label string) (*session.UserContext, error) {
	s := e.session(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.user.SwitchSearchContext(historyIndex); err != nil {
		return nil, err
	}
	s.user.Current.ScreenshotPath = screenshotPath
	s.user.Current.Label = label
	return s.user, nil
}

// GetUserContext runs /user/context.
func (e *Engine) GetUserContext(token string) *session.UserContext {
	s := e.session(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SomReady reports whether the global SOM worker (slot < 0) or a
// specific temporal slot's SOM worker has finished training.
func (e *Engine) SomReady(token string, slot int) bool {
	s := e.session(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 {
		return s.user.GlobalSom.IsReady()
	}
	if slot >= len(s.user.TemporalSoms) {
		return false
	}
	return s.user.TemporalSoms[slot].IsReady()
}

// ResetSearchSession discards token's history and starts a fresh session.
func (e *Engine) ResetSearchSession(token string) {
	s := e.session(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.ResetSearchSession()
}

// LogVideoReplay, LogScroll and LogTextQueryChange are the
// fire-and-forget log event APIs named in spec.md §6, payload shapes
// per SPEC_FULL.md §10's original-source grounding.
func (e *Engine) LogVideoReplay(ctx context.Context, contextID int, frameID types.FrameID) {
	rec := eventlog.VideoReplayRecord{Timestamp: time.Now().UnixMilli(), ContextID: contextID, FrameID: int(frameID)}
	if err := e.events.Append(eventlog.CategoryActions, rec); err != nil {
		e.log.Warn("failed to append video replay log", "err", err)
	}
}

func (e *Engine) LogScroll(ctx context.Context, contextID int, frameID types.FrameID) {
	rec := eventlog.ScrollRecord{Timestamp: time.Now().UnixMilli(), ContextID: contextID, FrameID: int(frameID)}
	if err := e.events.Append(eventlog.CategoryActions, rec); err != nil {
		e.log.Warn("failed to append scroll log", "err", err)
	}
}

func (e *Engine) LogTextQueryChange(ctx context.Context, contextID int, oldText, newText string) {
	rec := eventlog.TextQueryChangeRecord{Timestamp: time.Now().UnixMilli(), ContextID: contextID, OldText: oldText, NewText: newText}
	if err := e.events.Append(eventlog.CategoryActions, rec); err != nil {
		e.log.Warn("failed to append text query change log", "err", err)
	}
}

// LoginToEvalServer and LogoutFromEvalServer wrap internal/evalclient;
// both return false and log a warning when no eval server is configured.
func (e *Engine) LoginToEvalServer(ctx context.Context) bool {
	if e.eval == nil {
		e.log.Warn("login_to_eval_server called with no eval server configured")
		return false
	}
	return e.eval.Login(ctx)
}

func (e *Engine) LogoutFromEvalServer(ctx context.Context) bool {
	if e.eval == nil {
		e.log.Warn("logout_from_eval_server called with no eval server configured")
		return false
	}
	return e.eval.Logout(ctx)
}

// SubmitToEvalServer runs submit_to_eval_server(frame_id): resolves the
// frame's video id and frame number from the catalog and forwards them
// to the evaluation-server client, recording the outcome either way.
// With no evaluation server configured it returns SubmitNotAuthorized
// and records nothing.
func (e *Engine) SubmitToEvalServer(ctx context.Context, contextID int, id types.FrameID) (evalclient.SubmitResult, error) {
	if e.eval == nil {
		return evalclient.SubmitNotAuthorized, errs.Wrap("engine.submitToEvalServer", errs.ErrNotAuthorized)
	}
	fr := e.catalog.Frame(id)
	result, err := e.eval.Submit(ctx, id, int(fr.VideoID), int(fr.FrameNum))

	ts := time.Now().UnixMilli()
	rec := eventlog.SubmissionRecord{Timestamp: ts, ContextID: contextID, FrameID: int(id), Result: result.String()}
	if logErr := e.events.Append(eventlog.CategorySubmissions, rec); logErr != nil {
		e.log.Warn("failed to append submission log", "err", logErr)
	}
	if logErr := e.db.RecordSubmission(ctx, ts, rec); logErr != nil {
		e.log.Warn("failed to record submission event", "err", logErr)
	}
	return result, err
}
