package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echo-labs/echo/ai"
	"github.com/echo-labs/echo/config"
	"github.com/echo-labs/echo/media"
	"github.com/echo-labs/echo/models"
	"github.com/echo-labs/echo/repository"
)

// fakeJobRepo implements the job repository contract in memory, with the same
// conditional-transition and terminal-immutability semantics as the SQL
// implementation.
type fakeJobRepo struct {
	repository.VideoJobRepository

	mu             sync.Mutex
	jobs           map[uuid.UUID]*models.VideoJob
	owner          uuid.UUID
	terminalWrites int
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[uuid.UUID]*models.VideoJob{}}
}

func (f *fakeJobRepo) addJob(videoID uuid.UUID, status models.JobStatus) *models.VideoJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &models.VideoJob{VideoID: videoID, Status: status}
	job.ID = uuid.New()
	f.jobs[job.ID] = job
	return job
}

func (f *fakeJobRepo) GetByID(id uuid.UUID) (*models.VideoJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) TryTransition(id uuid.UUID, from, to models.JobStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	return true, nil
}

func (f *fakeJobRepo) UpdateStageProgress(id uuid.UUID, stage string, succeeded bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	stages := map[string]bool{}
	if len(job.ProcessingStages) > 0 {
		if err := json.Unmarshal(job.ProcessingStages, &stages); err != nil {
			return err
		}
	}
	stages[stage] = succeeded
	raw, err := json.Marshal(stages)
	if err != nil {
		return err
	}
	job.ProcessingStages = raw
	return nil
}

func (f *fakeJobRepo) MarkTerminal(id uuid.UUID, status models.JobStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if job.Status.Terminal() {
		return models.ErrInvalidState
	}
	if status == models.JobStatusCompleted {
		errorMessage = ""
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	f.terminalWrites++
	return nil
}

func (f *fakeJobRepo) GetForUser(jobID, userID uuid.UUID) (*models.VideoJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || userID != f.owner {
		return nil, models.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) snapshot(t *testing.T, id uuid.UUID) (*models.VideoJob, map[string]bool) {
	t.Helper()
	job, err := f.GetByID(id)
	require.NoError(t, err)
	stages, err := job.Stages()
	require.NoError(t, err)
	return job, stages
}

type fakeVideoRepo struct {
	repository.VideoRepository

	videos map[uuid.UUID]*models.Video
}

func (f *fakeVideoRepo) GetByID(id uuid.UUID) (*models.Video, error) {
	video, ok := f.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return video, nil
}

type fakeMetadataRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.VideoMetadata
}

func newFakeMetadataRepo() *fakeMetadataRepo {
	return &fakeMetadataRepo{records: map[uuid.UUID]*models.VideoMetadata{}}
}

func (f *fakeMetadataRepo) GetByJobID(jobID uuid.UUID) (*models.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.records[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return meta, nil
}

func (f *fakeMetadataRepo) Upsert(jobID uuid.UUID, patch repository.MetadataPatch) (*models.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.records[jobID]
	if !ok {
		meta = &models.VideoMetadata{JobID: jobID}
		f.records[jobID] = meta
	}
	if err := repository.ApplyPatch(meta, patch); err != nil {
		return nil, err
	}
	return meta, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Put(_ context.Context, ref string, data []byte, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[ref] = data
	return ref, nil
}

func (f *fakeStore) Get(_ context.Context, ref string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[ref]
	if !ok {
		return nil, fmt.Errorf("object %s missing", ref)
	}
	return data, nil
}

func (f *fakeStore) URLFor(_ context.Context, ref string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + ref, nil
}

func (f *fakeStore) Remove(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, ref)
	return nil
}

type fakeExtractor struct {
	tempDir    string
	info       *media.TechInfo
	probeErr   error
	extractErr error
	frameErr   error
}

func (f *fakeExtractor) Probe(_ context.Context, _ string) (*media.TechInfo, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return f.info, nil
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, _ string) (string, error) {
	if f.extractErr != nil {
		return "", f.extractErr
	}
	audioPath := filepath.Join(f.tempDir, "audio.wav")
	if err := os.WriteFile(audioPath, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return audioPath, nil
}

func (f *fakeExtractor) GrabFrame(_ context.Context, _ string, _ float64) (string, error) {
	if f.frameErr != nil {
		return "", f.frameErr
	}
	framePath := filepath.Join(f.tempDir, "frame.jpg")
	if err := os.WriteFile(framePath, []byte("jpeg"), 0o644); err != nil {
		return "", err
	}
	return framePath, nil
}

type fakeGenerator struct {
	result  *ai.GenerationResult
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (*ai.GenerationResult, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testEnv struct {
	orchestrator *Orchestrator
	jobs         *fakeJobRepo
	metadata     *fakeMetadataRepo
	store        *fakeStore
	extractor    *fakeExtractor
	generator    *fakeGenerator
	video        *models.Video
	job          *models.VideoJob
}

func strptr(s string) *string { return &s }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tempDir := t.TempDir()

	video := &models.Video{
		UserID:           uuid.New(),
		OriginalFilename: "talk.mp4",
		StoragePath:      "user/videos/talk.mp4",
		ContentType:      "video/mp4",
		SizeBytes:        5,
	}
	video.ID = uuid.New()

	jobs := newFakeJobRepo()
	jobs.owner = video.UserID
	job := jobs.addJob(video.ID, models.JobStatusPending)

	store := newFakeStore()
	store.objects[video.StoragePath] = []byte("mp4!!")

	extractor := &fakeExtractor{
		tempDir: tempDir,
		info:    &media.TechInfo{DurationSeconds: 120.5, Resolution: "1920x1080", Format: "mov,mp4,m4a"},
	}
	generator := &fakeGenerator{
		result: &ai.GenerationResult{
			Transcript:  strptr("hello world"),
			Title:       strptr("A Talk"),
			Description: strptr("About things."),
			Tags:        []string{"talk", "demo"},
			Subtitles:   map[string][]byte{"vtt": []byte("WEBVTT")},
			FieldErrors: map[string]string{},
		},
	}

	metadata := newFakeMetadataRepo()
	cfg := &config.Config{
		Media: config.MediaConfig{TempDir: tempDir},
		Pipeline: config.PipelineConfig{
			StorageTimeout: time.Minute,
			MediaTimeout:   time.Minute,
			AITimeout:      time.Minute,
		},
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)

	orchestrator := NewOrchestrator(
		jobs,
		&fakeVideoRepo{videos: map[uuid.UUID]*models.Video{video.ID: video}},
		metadata,
		store,
		extractor,
		generator,
		cfg,
		logger,
	)

	return &testEnv{
		orchestrator: orchestrator,
		jobs:         jobs,
		metadata:     metadata,
		store:        store,
		extractor:    extractor,
		generator:    generator,
		video:        video,
		job:          job,
	}
}

func TestFullSuccess(t *testing.T) {
	env := newTestEnv(t)

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	require.NoError(t, err)

	job, stages := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMessage)
	assert.Equal(t, map[string]bool{
		models.StageExtraction:   true,
		models.StageAIGeneration: true,
	}, stages)

	meta, err := env.metadata.GetByJobID(env.job.ID)
	require.NoError(t, err)
	require.NotNil(t, meta.Title)
	assert.Equal(t, "A Talk", *meta.Title)
	require.NotNil(t, meta.DurationSeconds)
	assert.InDelta(t, 120.5, *meta.DurationSeconds, 0.001)
	require.NotNil(t, meta.Transcript)
	assert.NotNil(t, meta.TranscriptRef)
	assert.NotNil(t, meta.ThumbnailRef)

	var subtitleRefs map[string]string
	require.NoError(t, json.Unmarshal(meta.SubtitleRefs, &subtitleRefs))
	assert.Contains(t, subtitleRefs, "vtt")
}

func TestSourceVideoUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.store.getErr = errors.New("connection refused")

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	require.NoError(t, err)

	job, stages := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "unavailable")
	assert.Empty(t, stages, "no stage was attempted")

	_, err = env.metadata.GetByJobID(env.job.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "no metadata should exist")
}

func TestExtractionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.extractErr = errors.New("unsupported codec")

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	require.NoError(t, err)

	job, stages := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "Audio extraction failed")
	assert.Contains(t, job.ErrorMessage, "unsupported codec")
	assert.Equal(t, map[string]bool{models.StageExtraction: false}, stages)
}

func TestPartialAISuccessCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.generator.result = &ai.GenerationResult{
		Transcript:  strptr("hello world"),
		FieldErrors: map[string]string{"metadata": "title generation failed"},
	}

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	require.NoError(t, err)

	job, stages := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMessage)
	assert.True(t, stages[models.StageAIGeneration])

	meta, err := env.metadata.GetByJobID(env.job.ID)
	require.NoError(t, err)
	assert.NotNil(t, meta.Transcript)
	assert.Nil(t, meta.Title)
}

func TestAIFailureKeepsTechnicalMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.generator.result = nil
	env.generator.err = errors.New("model overloaded")

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	require.NoError(t, err)

	job, stages := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "AI generation failed")
	assert.Equal(t, map[string]bool{
		models.StageExtraction:   true,
		models.StageAIGeneration: false,
	}, stages)

	// Extraction output survives the failed run.
	meta, err := env.metadata.GetByJobID(env.job.ID)
	require.NoError(t, err)
	require.NotNil(t, meta.DurationSeconds)
	assert.InDelta(t, 120.5, *meta.DurationSeconds, 0.001)
}

func TestThumbnailFailureDoesNotGateStage(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.frameErr = errors.New("no keyframe")

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	require.NoError(t, err)

	job, stages := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.True(t, stages[models.StageAIGeneration])

	meta, err := env.metadata.GetByJobID(env.job.ID)
	require.NoError(t, err)
	assert.Nil(t, meta.ThumbnailRef)
}

func TestStartProcessingTerminalJobIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.orchestrator.StartProcessing(context.Background(), env.job.ID))
	job, _ := env.jobs.snapshot(t, env.job.ID)
	require.True(t, job.Status.Terminal())
	writes := env.jobs.terminalWrites

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	assert.NoError(t, err)
	assert.Equal(t, writes, env.jobs.terminalWrites, "no second terminal write")

	after, _ := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, job.Status, after.Status)
}

func TestStartProcessingClaimedJobConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.jobs.jobs[env.job.ID].Status = models.JobStatusProcessing

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Zero(t, env.jobs.terminalWrites)
}

func TestStartProcessingUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	err := env.orchestrator.StartProcessing(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConcurrentStartExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	env.generator.started = make(chan struct{})
	env.generator.release = make(chan struct{})

	errs := make(chan error, 1)
	go func() {
		errs <- env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	}()

	// Wait until the first run holds the claim and sits inside the AI stage.
	<-env.generator.started

	err := env.orchestrator.StartProcessing(context.Background(), env.job.ID)
	assert.ErrorIs(t, err, models.ErrConflict)

	close(env.generator.release)
	require.NoError(t, <-errs)

	job, _ := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, env.jobs.terminalWrites)
}

func TestCancellationBetweenStages(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.orchestrator.StartProcessing(ctx, env.job.ID)
	require.NoError(t, err)

	job, stages := env.jobs.snapshot(t, env.job.ID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "cancelled by user", job.ErrorMessage)
	assert.Empty(t, stages)
}

func TestGetStatusScopedToOwner(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orchestrator.GetStatus(env.job.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)

	job, err := env.orchestrator.GetStatus(env.job.ID, env.video.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
}
