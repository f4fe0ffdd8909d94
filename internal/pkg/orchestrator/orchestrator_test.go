package orchestrator

import (
	"context"
	"database/sql"
	"testing"

	"github.com/airenas/voxsum/internal/pkg/messages"
	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/progress"
	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTasks struct{ mock.Mock }

func (m *mockTasks) LoadTask(ctx context.Context, id string) (*persistence.Task, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*persistence.Task)
	return res, args.Error(1)
}
func (m *mockTasks) UpdateTaskProgress(ctx context.Context, id, status string, p int32) error {
	return m.Called(ctx, id, status, p).Error(0)
}
func (m *mockTasks) FailTask(ctx context.Context, id, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}
func (m *mockTasks) SetTaskDuration(ctx context.Context, id string, seconds float64) error {
	return m.Called(ctx, id, seconds).Error(0)
}
func (m *mockTasks) IsCancelled(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
func (m *mockTasks) InsertTranscriptSegments(ctx context.Context, taskID string, segs []*persistence.TranscriptSegment) error {
	return m.Called(ctx, taskID, segs).Error(0)
}
func (m *mockTasks) ListTranscriptSegments(ctx context.Context, taskID string, page, pageSize int) ([]*persistence.TranscriptSegment, int, error) {
	args := m.Called(ctx, taskID, page, pageSize)
	res, _ := args.Get(0).([]*persistence.TranscriptSegment)
	return res, args.Int(1), args.Error(2)
}

type mockInformer struct{ mock.Mock }

func (m *mockInformer) SendMessage(ctx context.Context, msg any, queue string) error {
	return m.Called(ctx, msg, queue).Error(0)
}

func Test_Run_AlreadyTerminal_Skips(t *testing.T) {
	tasks := &mockTasks{}
	tasks.On("LoadTask", mock.Anything, "t1").Return(&persistence.Task{ID: "t1", Status: stage.TaskCompleted}, nil)
	o := &Orchestrator{tasks: tasks, progress: progress.New()}

	err := o.Run(context.Background(), "t1")
	require.Nil(t, err)
	tasks.AssertNotCalled(t, "UpdateTaskProgress", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_Run_NotFound(t *testing.T) {
	tasks := &mockTasks{}
	tasks.On("LoadTask", mock.Anything, "missing").Return(nil, nil)
	o := &Orchestrator{tasks: tasks, progress: progress.New()}

	err := o.Run(context.Background(), "missing")
	require.NotNil(t, err)
}

func Test_publishProgress_FansOutInProcessAndQueue(t *testing.T) {
	informer := &mockInformer{}
	informer.On("SendMessage", mock.Anything, mock.Anything, messages.Progress).Return(nil)
	b := progress.New()
	o := &Orchestrator{progress: b, informer: informer}

	ch, unsub := b.Subscribe("t1")
	defer unsub()

	o.publishProgress(context.Background(), "t1", progress.Event{Type: progress.TypeProgress, Status: "transcribing", Stage: "transcribe", Progress: 40})

	ev := <-ch
	assert.Equal(t, "t1", ev.TaskID)
	assert.Equal(t, progress.TypeProgress, ev.Type)
	assert.EqualValues(t, 40, ev.Progress)

	informer.AssertCalled(t, "SendMessage", mock.Anything, messages.ProgressMessage{
		TaskID: "t1", Type: "progress", Status: "transcribing", Stage: "transcribe", Progress: 40,
	}, messages.Progress)
}

func Test_publishProgress_NoInformer_StillPublishesInProcess(t *testing.T) {
	b := progress.New()
	o := &Orchestrator{progress: b}
	ch, unsub := b.Subscribe("t1")
	defer unsub()

	o.publishProgress(context.Background(), "t1", progress.Event{Type: progress.TypeCompleted, Status: stage.TaskCompleted, Progress: 100})

	ev := <-ch
	assert.Equal(t, progress.TypeCompleted, ev.Type)
}

func Test_cancel_MarksFailedAndPublishesErrorEvent(t *testing.T) {
	tasks := &mockTasks{}
	tasks.On("FailTask", mock.Anything, "t1", "cancelled").Return(nil)
	informer := &mockInformer{}
	informer.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	b := progress.New()
	o := &Orchestrator{tasks: tasks, progress: b, informer: informer}

	ch, unsub := b.Subscribe("t1")
	defer unsub()

	err := o.cancel(context.Background(), "t1")
	require.Nil(t, err)
	ev := <-ch
	assert.Equal(t, progress.TypeError, ev.Type)
	informer.AssertCalled(t, "SendMessage", mock.Anything, messages.InformMessage{TaskID: "t1", Status: stage.TaskFailed, Error: "cancelled"}, messages.Inform)
}

func Test_fail_MarksFailedWithCauseAndStage(t *testing.T) {
	tasks := &mockTasks{}
	tasks.On("FailTask", mock.Anything, "t1", "boom").Return(nil)
	informer := &mockInformer{}
	informer.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	b := progress.New()
	o := &Orchestrator{tasks: tasks, progress: b, informer: informer}

	ch, unsub := b.Subscribe("t1")
	defer unsub()

	err := o.fail(context.Background(), "t1", stage.Transcribe, assertError("boom"))
	require.NotNil(t, err)
	ev := <-ch
	assert.Equal(t, progress.TypeError, ev.Type)
	assert.Equal(t, string(stage.Transcribe), ev.Stage)
}

type assertError string

func (e assertError) Error() string { return string(e) }

func Test_notify_NoInformer_NoOp(t *testing.T) {
	o := &Orchestrator{}
	o.notify(context.Background(), "t1", stage.TaskCompleted, "")
}

func Test_toRepoSegment(t *testing.T) {
	conf := 0.9
	s := provider.TranscriptSegment{SpeakerID: "spk1", Start: 1, End: 2, Content: "hi", Confidence: &conf,
		Words: []provider.WordTiming{{Word: "hi", Start: 1, End: 1.5, Confidence: &conf}}}
	out := toRepoSegment(3, "t1", s)
	assert.Equal(t, "t1", out.TaskID)
	assert.Equal(t, int32(3), out.Seq)
	assert.True(t, out.SpeakerID.Valid)
	assert.Equal(t, "spk1", out.SpeakerID.String)
	assert.True(t, out.Confidence.Valid)
	assert.Equal(t, 0.9, out.Confidence.Float64)
	require.Len(t, out.Words, 1)
	assert.True(t, out.Words[0].Confidence.Valid)
}

func Test_toRepoSegment_NoConfidence(t *testing.T) {
	s := provider.TranscriptSegment{Start: 0, End: 1, Content: "hi"}
	out := toRepoSegment(0, "t1", s)
	assert.False(t, out.Confidence.Valid)
	assert.False(t, out.SpeakerID.Valid)
}

func Test_toProviderSegment(t *testing.T) {
	s := &persistence.TranscriptSegment{SpeakerID: sql.NullString{String: "spk1", Valid: true}, Start: 1, End: 2, Content: "hi",
		Confidence: sql.NullFloat64{Float64: 0.5, Valid: true},
		Words:      []persistence.WordTiming{{Word: "hi", Start: 1, End: 1.5, Confidence: sql.NullFloat64{Float64: 0.8, Valid: true}}}}
	out := toProviderSegment(s)
	assert.Equal(t, "spk1", out.SpeakerID)
	require.NotNil(t, out.Confidence)
	assert.Equal(t, 0.5, *out.Confidence)
	require.Len(t, out.Words, 1)
	require.NotNil(t, out.Words[0].Confidence)
	assert.Equal(t, 0.8, *out.Words[0].Confidence)
}

func Test_toProviderSegment_NoConfidence(t *testing.T) {
	s := &persistence.TranscriptSegment{Start: 0, End: 1, Content: "hi"}
	out := toProviderSegment(s)
	assert.Nil(t, out.Confidence)
	assert.Equal(t, "", out.SpeakerID)
}

func Test_sqlNullFloat(t *testing.T) {
	v := sqlNullFloat(1.5, true)
	assert.True(t, v.Valid)
	assert.Equal(t, 1.5, v.Float64)
	v = sqlNullFloat(0, false)
	assert.False(t, v.Valid)
}

func Test_sqlNullStr(t *testing.T) {
	v := sqlNullStr("x")
	assert.True(t, v.Valid)
	v = sqlNullStr("")
	assert.False(t, v.Valid)
}

func Test_currentProgress_ReturnsTaskProgress(t *testing.T) {
	task := &persistence.Task{Progress: 42}
	assert.EqualValues(t, 42, currentProgress(task, stage.TaskTranscribing))
}
