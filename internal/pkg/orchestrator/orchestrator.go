// Package orchestrator is the Pipeline Orchestrator (C9): it drives one
// task through the canonical stage order, fanning out to providers via
// the Smart Selector, retrying transient vendor failures under the
// circuit breaker's policy, and reporting progress and terminal errors.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/breaker"
	"github.com/airenas/voxsum/internal/pkg/cost"
	"github.com/airenas/voxsum/internal/pkg/health"
	"github.com/airenas/voxsum/internal/pkg/media"
	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/progress"
	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/quota"
	"github.com/airenas/voxsum/internal/pkg/registry"
	"github.com/airenas/voxsum/internal/pkg/selector"
	"github.com/airenas/voxsum/internal/pkg/stage"
	"github.com/airenas/voxsum/internal/pkg/summary"
	"github.com/airenas/voxsum/internal/pkg/transcript"
	"github.com/airenas/voxsum/internal/pkg/utils"
)

// informer enqueues the terminal-notification message; satisfied by
// *postgres.Sender.
type informer interface {
	SendMessage(ctx context.Context, msg any, queue string) error
}

// errCancelled is a sentinel marking a cooperative cancellation checkpoint trip.
var errCancelled = fmt.Errorf("cancelled")

// premiumLLMProvider is the higher-cost, larger-model vendor substituted
// in for low-confidence transcripts (avg confidence <0.6): its default
// model is the largest one registered, giving the quality-caveat
// preamble a better chance of producing a usable summary. Only applies
// when the task didn't already pin a specific provider.
const premiumLLMProvider = "vendor_delta"

// taskRepo is satisfied by *postgres.DB.
type taskRepo interface {
	LoadTask(ctx context.Context, id string) (*persistence.Task, error)
	UpdateTaskProgress(ctx context.Context, id, status string, progress int32) error
	FailTask(ctx context.Context, id, errMsg string) error
	SetTaskDuration(ctx context.Context, id string, seconds float64) error
	IsCancelled(ctx context.Context, id string) (bool, error)
	InsertTranscriptSegments(ctx context.Context, taskID string, segs []*persistence.TranscriptSegment) error
	ListTranscriptSegments(ctx context.Context, taskID string, page, pageSize int) ([]*persistence.TranscriptSegment, int, error)
}

// VisualizeRequest describes one on-demand visualization-generation call.
type VisualizeRequest struct {
	TaskID        string
	VisualType    summary.VisualType
	ContentStyle  string
	Provider      string
	ModelID       string
}

// perStageDeadline implements the defaults of §5's concurrency model.
var perStageDeadline = map[stage.Type]time.Duration{
	stage.Resolve:    30 * time.Second,
	stage.Download:   10 * time.Minute,
	stage.Transcode:  10 * time.Minute,
	stage.Upload:     5 * time.Minute,
	stage.Transcribe: 30 * time.Minute,
	stage.Summarize:  5 * time.Minute,
}

// Orchestrator wires every collaborator a stage action needs.
type Orchestrator struct {
	tasks     taskRepo
	stages    *stage.Machine
	selector  *selector.Selector
	health    *health.Monitor
	breaker   *breaker.Manager
	quota     *quota.Manager
	cost      *cost.Tracker
	registry  *registry.Registry
	summaries *summary.Generator
	progress  *progress.Broadcaster
	informer  informer

	resolver   *media.Resolver
	downloader *media.Downloader
	transcoder *media.Transcoder

	tempDir     string
	retryPolicy breaker.RetryPolicy
}

// Deps bundles the Orchestrator's constructor arguments.
type Deps struct {
	Tasks      taskRepo
	Stages     *stage.Machine
	Selector   *selector.Selector
	Health     *health.Monitor
	Breaker    *breaker.Manager
	Quota      *quota.Manager
	Cost       *cost.Tracker
	Registry   *registry.Registry
	Summaries  *summary.Generator
	Progress   *progress.Broadcaster
	Informer   informer
	Resolver   *media.Resolver
	Downloader *media.Downloader
	Transcoder *media.Transcoder
	TempDir    string
}

// New wires an Orchestrator.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		tasks: d.Tasks, stages: d.Stages, selector: d.Selector, health: d.Health,
		breaker: d.Breaker, quota: d.Quota, cost: d.Cost, registry: d.Registry,
		summaries: d.Summaries, progress: d.Progress, informer: d.Informer,
		resolver: d.Resolver, downloader: d.Downloader, transcoder: d.Transcoder,
		tempDir: d.TempDir, retryPolicy: breaker.DefaultRetryPolicy(),
	}
}

// stageCtx is the per-stage working context carried between stage actions.
type stageCtx struct {
	task       *persistence.Task
	attemptID  string
	mediaURL   string
	localPath  string
	canonPath  string
	durationSec float64
	storageKey string
	segments   []provider.TranscriptSegment
}

// Run drives taskID through every remaining stage. Called once per
// dequeue; crash-resume relies on AlreadyCompleted short-circuiting.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	t, err := o.tasks.LoadTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("can't load task: %w", err)
	}
	if t == nil {
		return fmt.Errorf("task not found: %s", taskID)
	}
	if t.Status == stage.TaskCompleted || t.Status == stage.TaskFailed {
		goapp.Log.Info().Str("taskID", taskID).Str("status", t.Status).Msg("already terminal, skipping")
		return nil
	}

	sc := &stageCtx{task: t, attemptID: taskID + "-" + time.Now().UTC().Format("20060102150405")}
	order := stage.Order
	if t.Source == persistence.SourceUpload {
		// upload-sourced tasks already have file_key staged; resolve is moot.
		order = order[1:]
	}

	for _, st := range order {
		if cancelled, cerr := o.tasks.IsCancelled(ctx, taskID); cerr == nil && cancelled {
			return o.cancel(ctx, taskID)
		}
		done, err := o.stages.AlreadyCompleted(ctx, taskID, st)
		if err != nil {
			return fmt.Errorf("can't check stage completion: %w", err)
		}
		if done {
			continue
		}
		if err := o.runStage(ctx, st, sc); err != nil {
			if err == errCancelled {
				return o.cancel(ctx, taskID)
			}
			return o.fail(ctx, taskID, st, err)
		}
	}

	if err := o.tasks.UpdateTaskProgress(ctx, taskID, stage.TaskCompleted, 100); err != nil {
		return fmt.Errorf("can't mark task completed: %w", err)
	}
	o.publishProgress(ctx, taskID, progress.Event{Type: progress.TypeCompleted, Status: stage.TaskCompleted, Progress: 100})
	o.notify(ctx, taskID, stage.TaskCompleted, "")
	return nil
}

// notify enqueues a terminal-state email notification; failures are
// logged, never propagated — a missed email must not fail the pipeline.
func (o *Orchestrator) notify(ctx context.Context, taskID, status, errMsg string) {
	if o.informer == nil {
		return
	}
	msg := messages.InformMessage{TaskID: taskID, Status: status, Error: errMsg}
	if err := o.informer.SendMessage(ctx, msg, messages.Inform); err != nil {
		goapp.Log.Error().Err(err).Str("taskID", taskID).Msg("can't enqueue inform message")
	}
}

// publishProgress fans ev out in-process (useful when worker and progress
// run in the same binary, e.g. tests) and across the process boundary via
// the durable queue, which is what the progress service's own broadcaster
// actually consumes.
func (o *Orchestrator) publishProgress(ctx context.Context, taskID string, ev progress.Event) {
	ev.TaskID = taskID
	o.progress.Publish(taskID, ev)
	if o.informer == nil {
		return
	}
	msg := messages.ProgressMessage{TaskID: taskID, Type: string(ev.Type), Status: ev.Status, Stage: ev.Stage, Progress: ev.Progress}
	if err := o.informer.SendMessage(ctx, msg, messages.Progress); err != nil {
		goapp.Log.Error().Err(err).Str("taskID", taskID).Msg("can't enqueue progress message")
	}
}

func (o *Orchestrator) runStage(ctx context.Context, st stage.Type, sc *stageCtx) error {
	row, err := o.stages.Start(ctx, sc.task.ID, st, sc.attemptID)
	if err != nil {
		return fmt.Errorf("can't start stage: %w", err)
	}
	taskStatus := stage.TaskStatusFor(st)
	if err := o.tasks.UpdateTaskProgress(ctx, sc.task.ID, taskStatus, currentProgress(sc.task, taskStatus)); err != nil {
		return fmt.Errorf("can't update task status: %w", err)
	}
	o.publishProgress(ctx, sc.task.ID, progress.Event{Type: progress.TypeProgress, Status: taskStatus, Stage: string(st),
		Progress: currentProgress(sc.task, taskStatus)})

	deadline := perStageDeadline[st]
	stageCtxWithDeadline, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var stageErr error
	switch st {
	case stage.Resolve:
		stageErr = o.doResolve(stageCtxWithDeadline, sc)
	case stage.Download:
		stageErr = o.doDownload(stageCtxWithDeadline, sc)
	case stage.Transcode:
		stageErr = o.doTranscode(stageCtxWithDeadline, sc)
	case stage.Upload:
		stageErr = o.doUpload(stageCtxWithDeadline, sc)
	case stage.Transcribe:
		stageErr = o.doTranscribe(stageCtxWithDeadline, sc)
	case stage.Summarize:
		stageErr = o.doSummarize(stageCtxWithDeadline, sc)
	}

	if stageErr != nil {
		_ = o.stages.Fail(ctx, row.ID, stageErr.Error())
		return stageErr
	}
	if err := o.stages.Complete(ctx, row.ID); err != nil {
		return fmt.Errorf("can't complete stage row: %w", err)
	}
	band := stage.BandUpperBound(taskStatus)
	if err := o.tasks.UpdateTaskProgress(ctx, sc.task.ID, taskStatus, band); err != nil {
		return fmt.Errorf("can't advance task progress: %w", err)
	}
	if band > sc.task.Progress {
		sc.task.Progress = band
	}
	return nil
}

// currentProgress reports the progress value to publish when a stage
// starts: the task's own monotone progress, never rewound below it.
func currentProgress(t *persistence.Task, taskStatus string) int32 {
	return t.Progress
}

func (o *Orchestrator) doResolve(ctx context.Context, sc *stageCtx) error {
	url := sc.task.SourceURL.String
	resolved, err := o.resolver.Resolve(ctx, url)
	if err != nil {
		return fmt.Errorf("can't resolve media url: %w", err)
	}
	sc.mediaURL = resolved
	return nil
}

func (o *Orchestrator) doDownload(ctx context.Context, sc *stageCtx) error {
	url := sc.mediaURL
	if url == "" {
		url = sc.task.SourceURL.String
	}
	if url == "" {
		// upload-sourced: resolve via selected storage's URL for file_key.
		sel, err := o.selector.Select(ctx, selector.Request{ServiceType: provider.ServiceStorage, Owner: sc.task.UserID})
		if err != nil {
			return fmt.Errorf("can't select storage: %w", err)
		}
		st, ok := sel.Client.(provider.Storage)
		if !ok {
			return fmt.Errorf("storage client missing Storage interface")
		}
		objURL, err := st.GetObjectURL(ctx, sc.task.FileKey.String, 10*time.Minute)
		if err != nil {
			return fmt.Errorf("can't presign get url: %w", err)
		}
		url = objURL
	}
	path, err := o.downloader.Download(ctx, url, o.tempDir)
	if err != nil {
		return fmt.Errorf("can't download: %w", err)
	}
	sc.localPath = path
	return nil
}

func (o *Orchestrator) doTranscode(ctx context.Context, sc *stageCtx) error {
	out, dur, err := o.transcoder.Transcode(ctx, sc.localPath, o.tempDir)
	if err != nil {
		return fmt.Errorf("can't transcode: %w", err)
	}
	sc.canonPath = out
	sc.durationSec = dur
	if err := o.tasks.SetTaskDuration(ctx, sc.task.ID, dur); err != nil {
		return fmt.Errorf("can't persist duration: %w", err)
	}
	return nil
}

func (o *Orchestrator) doUpload(ctx context.Context, sc *stageCtx) error {
	f, err := os.Open(sc.canonPath)
	if err != nil {
		return fmt.Errorf("can't open canonical file: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("can't stat file: %w", err)
	}
	hash, err := fileSHA256(sc.canonPath)
	if err != nil {
		return fmt.Errorf("can't hash file: %w", err)
	}
	now := time.Now().UTC()
	key := fmt.Sprintf("uploads/%04d/%02d/%s.wav", now.Year(), now.Month(), hash)
	sc.storageKey = key

	return o.callProvider(ctx, provider.ServiceStorage, sc.task.Options.Provider, sc.task.UserID, func(cl any) error {
		st, ok := cl.(provider.Storage)
		if !ok {
			return &provider.Error{Kind: provider.ErrUnavailable, Provider: "storage", Cause: fmt.Errorf("not a Storage client")}
		}
		if _, err := f.Seek(0, 0); err != nil {
			return fmt.Errorf("can't seek: %w", err)
		}
		if err := st.PutObject(ctx, key, f, fi.Size(), "audio/wav"); err != nil {
			return err
		}
		return nil
	})
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (o *Orchestrator) doTranscribe(ctx context.Context, sc *stageCtx) error {
	variant := quota.ResolveVariant(sc.task.Options.ASRVariant)
	var result *provider.TranscribeResult
	providerName, err := o.callProviderRetry(ctx, provider.ServiceASR, sc.task.Options.Provider, sc.task.UserID, variant, sc.durationSec,
		func(cl any) error {
			asr, ok := cl.(provider.ASR)
			if !ok {
				return &provider.Error{Kind: provider.ErrUnavailable, Provider: "asr", Cause: fmt.Errorf("not an ASR client")}
			}
			f, err := os.Open(sc.canonPath)
			if err != nil {
				return fmt.Errorf("can't open canonical file: %w", err)
			}
			defer f.Close()
			r, err := asr.Transcribe(ctx, provider.AudioSource{Reader: f, DurationHint: sc.durationSec, ContentType: "audio/wav"},
				provider.TranscribeOptions{Language: sc.task.Options.Language,
					EnableSpeakerDiarization: sc.task.Options.EnableSpeakerDiarization, Variant: provider.ASRVariant(variant)})
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	if err != nil {
		return fmt.Errorf("transcribe failed: %w", err)
	}
	sc.segments = result.Segments
	segs := make([]*persistence.TranscriptSegment, 0, len(result.Segments))
	for i, s := range result.Segments {
		segs = append(segs, toRepoSegment(i, sc.task.ID, s))
	}
	if err := o.tasks.InsertTranscriptSegments(ctx, sc.task.ID, segs); err != nil {
		return fmt.Errorf("can't persist segments: %w", err)
	}
	if err := o.quota.CommitIdempotent(ctx, sc.task.UserID, providerName, variant, sc.task.ID,
		string(stage.Transcribe), sc.attemptID, result.DurationSeconds); err != nil {
		goapp.Log.Error().Err(err).Str("taskID", sc.task.ID).Msg("quota commit failed")
	}
	o.recordCost(ctx, provider.ServiceASR, providerName, sc.task, result.DurationSeconds, 0)
	return nil
}

// recordCost estimates a call's cost from the provider's static
// CostPerUnit metadata and records it with the Cost Tracker; failures
// here never fail the stage (§7: fast-index/durable-log write failures
// are logged, not propagated).
func (o *Orchestrator) recordCost(ctx context.Context, st provider.ServiceType, providerName string, t *persistence.Task, durationSec float64, tokens int32) {
	reg, ok := o.registry.Get(st, providerName)
	if !ok {
		return
	}
	units := durationSec
	if tokens > 0 {
		units = float64(tokens)
	}
	rec := &persistence.UsageRecord{
		Timestamp: time.Now(), ServiceType: string(st), Provider: providerName, UserID: t.UserID,
		TaskID: t.ID, CostEstimate: reg.Metadata.CostPerUnit * units,
		DurationSec: sqlNullFloat(durationSec, durationSec > 0),
		Tokens:      sql.NullInt32{Int32: tokens, Valid: tokens > 0},
	}
	if err := o.cost.Record(ctx, rec); err != nil {
		goapp.Log.Error().Err(err).Str("taskID", t.ID).Msg("cost record failed")
	}
}

func toRepoSegment(seq int, taskID string, s provider.TranscriptSegment) *persistence.TranscriptSegment {
	words := make([]persistence.WordTiming, 0, len(s.Words))
	for _, w := range s.Words {
		var conf float64
		valid := false
		if w.Confidence != nil {
			conf, valid = *w.Confidence, true
		}
		words = append(words, persistence.WordTiming{Word: w.Word, Start: w.Start, End: w.End,
			Confidence: sqlNullFloat(conf, valid)})
	}
	var conf float64
	valid := false
	if s.Confidence != nil {
		conf, valid = *s.Confidence, true
	}
	return &persistence.TranscriptSegment{TaskID: taskID, SpeakerID: sqlNullStr(s.SpeakerID),
		Start: s.Start, End: s.End, Content: s.Content, Confidence: sqlNullFloat(conf, valid),
		Words: words, Seq: int32(seq)}
}

func (o *Orchestrator) doSummarize(ctx context.Context, sc *stageCtx) error {
	q := transcript.ScoreSegments(sc.segments)
	locale := sc.task.Options.Language
	if locale != "zh" && locale != "en" {
		locale = "zh"
	}
	processed := transcript.Preprocess(locale, sc.segments)
	block := transcript.BlockText(processed)

	preferred := sc.task.Options.Provider
	if preferred == "" && q.NeedsQualityCaveat() {
		preferred = premiumLLMProvider
	}

	var llm provider.LLM
	providerName, err := o.retryLoop(ctx, provider.ServiceLLM, preferred, "", sc.task.UserID, "", 0, func(cl any) error {
		l, ok := cl.(provider.LLM)
		if !ok {
			return &provider.Error{Kind: provider.ErrUnavailable, Provider: "llm", Cause: fmt.Errorf("not an LLM client")}
		}
		llm = l
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't select llm: %w", err)
	}
	req := summary.Request{TaskID: sc.task.ID, SummaryStyle: sc.task.Options.SummaryStyle, Locale: locale,
		Quality: q, BlockText: block, PromptVersion: "v1"}
	if err := o.summaries.GenerateStandard(ctx, req, llm); err != nil {
		return err
	}
	o.recordCost(ctx, provider.ServiceLLM, providerName, sc.task, 0, int32(len([]rune(block))/4))
	return nil
}

// RunVisualize drives the independent visualization pipeline: reload the
// transcript, select an LLM, and generate one diagram summary. Unlike
// Run, there is no stage machine or progress bookkeeping involved — a
// visualization request is a side artifact of an already-completed task.
func (o *Orchestrator) RunVisualize(ctx context.Context, req VisualizeRequest) error {
	t, err := o.tasks.LoadTask(ctx, req.TaskID)
	if err != nil {
		return fmt.Errorf("can't load task: %w", err)
	}
	if t == nil {
		return fmt.Errorf("task not found: %s", req.TaskID)
	}

	var all []*persistence.TranscriptSegment
	for page := 1; ; page++ {
		segs, total, err := o.tasks.ListTranscriptSegments(ctx, req.TaskID, page, 500)
		if err != nil {
			return fmt.Errorf("can't load transcript: %w", err)
		}
		all = append(all, segs...)
		if len(all) >= total || len(segs) == 0 {
			break
		}
	}
	if len(all) == 0 {
		return fmt.Errorf("task %s has no transcript yet", req.TaskID)
	}

	providerSegs := make([]provider.TranscriptSegment, 0, len(all))
	for _, s := range all {
		providerSegs = append(providerSegs, toProviderSegment(s))
	}
	q := transcript.ScoreSegments(providerSegs)
	locale := t.Options.Language
	if locale != "zh" && locale != "en" {
		locale = "zh"
	}
	processed := transcript.Preprocess(locale, providerSegs)
	block := transcript.BlockText(processed)

	style := req.ContentStyle
	if style == "" {
		style = t.Options.SummaryStyle
	}
	providerName := req.Provider
	if providerName == "" {
		providerName = t.Options.Provider
	}
	if providerName == "" && q.NeedsQualityCaveat() {
		providerName = premiumLLMProvider
	}

	var llm provider.LLM
	selProvider, err := o.retryLoop(ctx, provider.ServiceLLM, providerName, "", t.UserID, "", 0, func(cl any) error {
		l, ok := cl.(provider.LLM)
		if !ok {
			return &provider.Error{Kind: provider.ErrUnavailable, Provider: "llm", Cause: fmt.Errorf("not an LLM client")}
		}
		llm = l
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't select llm: %w", err)
	}

	sreq := summary.Request{TaskID: t.ID, SummaryStyle: style, Locale: locale, Quality: q, BlockText: block, PromptVersion: "v1"}
	if err := o.summaries.GenerateVisual(ctx, sreq, llm, req.VisualType); err != nil {
		return err
	}
	o.recordCost(ctx, provider.ServiceLLM, selProvider, t, 0, int32(len([]rune(block))/4))
	return nil
}

func toProviderSegment(s *persistence.TranscriptSegment) provider.TranscriptSegment {
	words := make([]provider.WordTiming, 0, len(s.Words))
	for _, w := range s.Words {
		ps := provider.WordTiming{Word: w.Word, Start: w.Start, End: w.End}
		if w.Confidence.Valid {
			c := w.Confidence.Float64
			ps.Confidence = &c
		}
		words = append(words, ps)
	}
	ps := provider.TranscriptSegment{SpeakerID: s.SpeakerID.String, Start: s.Start, End: s.End, Content: s.Content, Words: words}
	if s.Confidence.Valid {
		c := s.Confidence.Float64
		ps.Confidence = &c
	}
	return ps
}

// callProvider runs fn through retryLoop with no model, variant or
// duration hint, discarding the selected provider name. Used for the
// storage put of the upload stage.
func (o *Orchestrator) callProvider(ctx context.Context, st provider.ServiceType, preferred, owner string, fn func(cl any) error) error {
	_, err := o.retryLoop(ctx, st, preferred, "", owner, "", 0, fn)
	return err
}

func (o *Orchestrator) callProviderRetry(ctx context.Context, st provider.ServiceType, preferred, owner, variant string, durationHint float64, fn func(cl any) error) (string, error) {
	return o.retryLoop(ctx, st, preferred, "", owner, variant, durationHint, fn)
}

// retryLoop selects a provider/model, invokes fn, and records the
// health/breaker outcome. modelID overrides the provider's default
// model; an empty modelID leaves the registration's default in place.
// Every current caller passes an empty modelID (the premium-LLM
// substitution pins the preferred provider instead).
func (o *Orchestrator) retryLoop(ctx context.Context, st provider.ServiceType, preferred, modelID, owner, variant string, durationHint float64, fn func(cl any) error) (string, error) {
	var providerName string
	err := o.retryPolicy.Do(ctx, func(attempt int) error {
		sel, serr := o.selector.Select(ctx, selector.Request{ServiceType: st, PreferredProvider: preferred,
			ModelID: modelID, Owner: owner, Variant: variant, DurationHintSec: durationHint})
		if serr != nil {
			return fmt.Errorf("can't select provider: %w", serr)
		}
		providerName = sel.ProviderName
		callErr := fn(sel.Client)
		if callErr != nil {
			var perr *provider.Error
			if pe, ok := callErr.(*provider.Error); ok {
				perr = pe
			}
			o.health.RecordFailure(st, providerName)
			o.breaker.RecordFailure(st, providerName)
			if perr != nil {
				return perr
			}
			return callErr
		}
		o.health.RecordSuccess(st, providerName)
		o.breaker.RecordSuccess(st, providerName)
		return nil
	})
	return providerName, err
}

func (o *Orchestrator) cancel(ctx context.Context, taskID string) error {
	if err := o.tasks.FailTask(ctx, taskID, "cancelled"); err != nil {
		return fmt.Errorf("can't mark cancelled task failed: %w", err)
	}
	o.publishProgress(ctx, taskID, progress.Event{Type: progress.TypeError, Status: stage.TaskFailed, Progress: 0})
	o.notify(ctx, taskID, stage.TaskFailed, "cancelled")
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, taskID string, st stage.Type, cause error) error {
	if err := o.tasks.FailTask(ctx, taskID, cause.Error()); err != nil {
		return fmt.Errorf("can't mark task failed: %w", err)
	}
	o.publishProgress(ctx, taskID, progress.Event{Type: progress.TypeError, Status: stage.TaskFailed, Stage: string(st), Progress: 0})
	o.notify(ctx, taskID, stage.TaskFailed, cause.Error())
	return fmt.Errorf("stage %s failed: %w", st, cause)
}

func sqlNullFloat(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}

func sqlNullStr(s string) sql.NullString {
	return utils.ToSQLStr(s)
}
