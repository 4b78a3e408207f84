package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/echo-labs/echo/ai"
	"github.com/echo-labs/echo/config"
	"github.com/echo-labs/echo/media"
	"github.com/echo-labs/echo/models"
	"github.com/echo-labs/echo/pkg/metrics"
	"github.com/echo-labs/echo/repository"
	"github.com/echo-labs/echo/storage"
)

// Orchestrator drives a single VideoJob from PENDING to a terminal state. It
// holds no job state between runs: every stage boundary reloads from the
// repository, and ownership of a job is established solely by winning the
// PENDING -> PROCESSING conditional transition.
type Orchestrator struct {
	jobs     repository.VideoJobRepository
	videos   repository.VideoRepository
	metadata repository.VideoMetadataRepository
	store    storage.BlobStore
	media    media.Extractor
	ai       ai.Generator
	timeouts config.PipelineConfig
	tempDir  string
	logger   *logrus.Logger
}

func NewOrchestrator(
	jobs repository.VideoJobRepository,
	videos repository.VideoRepository,
	metadata repository.VideoMetadataRepository,
	store storage.BlobStore,
	extractor media.Extractor,
	generator ai.Generator,
	cfg *config.Config,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		videos:   videos,
		metadata: metadata,
		store:    store,
		media:    extractor,
		ai:       generator,
		timeouts: cfg.Pipeline,
		tempDir:  cfg.Media.TempDir,
		logger:   logger,
	}
}

// GetStatus is the pure read half of the contract: current status, stage
// progress and error message, scoped to the requesting user. A job owned by
// someone else reads as ErrNotFound.
func (o *Orchestrator) GetStatus(jobID, userID uuid.UUID) (*models.VideoJob, error) {
	return o.jobs.GetForUser(jobID, userID)
}

// StartProcessing claims the job and executes the pipeline to a terminal
// state. An already-terminal job is a logged no-op; a job in any other
// non-PENDING state means another run owns it and the caller gets ErrConflict.
func (o *Orchestrator) StartProcessing(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.jobs.GetByID(jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		o.logger.WithFields(logrus.Fields{
			"job_id": jobID,
			"status": job.Status,
		}).Info("start requested for terminal job, ignoring")
		return nil
	}

	claimed, err := o.jobs.TryTransition(jobID, models.JobStatusPending, models.JobStatusProcessing)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("job %s is not PENDING: %w", jobID, models.ErrConflict)
	}

	o.run(ctx, job)
	return nil
}

// run executes the stages in fixed order. Collaborator failures become
// StageResult values; nothing escapes as an unhandled error. Only a failure
// of the repository itself falls through to the generic terminal write.
func (o *Orchestrator) run(ctx context.Context, job *models.VideoJob) {
	log := o.logger.WithField("job_id", job.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("pipeline panicked")
			o.finalize(job.ID, models.JobStatusFailed, "internal processing error")
		}
	}()

	video, err := o.videos.GetByID(job.VideoID)
	if err != nil {
		log.WithError(err).Error("owning video unavailable")
		o.finalize(job.ID, models.JobStatusFailed, "source video unavailable")
		return
	}

	// Step 2: fetch the source bytes. Failure here is terminal before any
	// stage is recorded as attempted.
	videoPath, err := o.fetchSource(ctx, video)
	if err != nil {
		log.WithError(err).Error("failed to fetch source video")
		o.finalize(job.ID, models.JobStatusFailed, "source video unavailable")
		return
	}
	defer os.Remove(videoPath)

	if o.cancelled(ctx, job.ID, log) {
		return
	}

	// Step 3: extraction. Blocks everything downstream, there is no audio
	// without it.
	extraction, audioPath, info := o.runExtraction(ctx, job.ID, videoPath)
	if !extraction.OK {
		log.WithError(extraction.Err).Warn("extraction stage failed")
		metrics.ObserveStage(models.StageExtraction, "failed", time.Since(start))
		o.finalize(job.ID, models.JobStatusFailed, "Audio extraction failed: "+shortReason(extraction.Err))
		return
	}
	defer os.Remove(audioPath)
	metrics.ObserveStage(models.StageExtraction, "ok", time.Since(start))

	if o.cancelled(ctx, job.ID, log) {
		return
	}

	// Stage boundary: reload, the repository is the source of truth.
	if _, err := o.jobs.GetByID(job.ID); err != nil {
		log.WithError(err).Error("job vanished mid-run")
		return
	}

	// Steps 4-5: AI generation plus artifact persistence. Sub-task failures
	// are independent and recorded, never fatal to each other.
	aiStart := time.Now()
	generation, notes := o.runGeneration(ctx, job.ID, video, audioPath, videoPath, info)
	if generation.OK {
		metrics.ObserveStage(models.StageAIGeneration, "ok", time.Since(aiStart))
	} else {
		metrics.ObserveStage(models.StageAIGeneration, "failed", time.Since(aiStart))
	}

	// Step 6: terminal decision. Extraction succeeded if we got here, so the
	// job completes iff the generation stage produced its minimum output.
	if generation.OK {
		if len(notes) > 0 {
			log.WithField("partial_failures", strings.Join(notes, "; ")).
				Info("job completed with partial content")
		}
		o.finalize(job.ID, models.JobStatusCompleted, "")
		log.WithField("elapsed", time.Since(start)).Info("job completed")
		return
	}

	msg := "AI generation failed"
	if generation.Err != nil {
		msg = "AI generation failed: " + shortReason(generation.Err)
	}
	if len(notes) > 0 {
		msg += " (" + strings.Join(notes, "; ") + ")"
	}
	o.finalize(job.ID, models.JobStatusFailed, msg)
	log.WithField("elapsed", time.Since(start)).Warn("job failed")
}

func (o *Orchestrator) fetchSource(ctx context.Context, video *models.Video) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.timeouts.StorageTimeout)
	defer cancel()

	data, err := o.store.Get(fetchCtx, video.StoragePath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(o.tempDir, 0o755); err != nil {
		return "", err
	}
	videoPath := filepath.Join(o.tempDir, video.ID.String()+filepath.Ext(video.OriginalFilename))
	if err := os.WriteFile(videoPath, data, 0o644); err != nil {
		return "", err
	}
	return videoPath, nil
}

// runExtraction probes the container and extracts the audio track. Technical
// metadata is persisted immediately on success so it survives any later
// failure.
func (o *Orchestrator) runExtraction(ctx context.Context, jobID uuid.UUID, videoPath string) (StageResult, string, *media.TechInfo) {
	mediaCtx, cancel := context.WithTimeout(ctx, o.timeouts.MediaTimeout)
	defer cancel()

	info, err := o.media.Probe(mediaCtx, videoPath)
	if err != nil {
		o.recordStage(jobID, models.StageExtraction, false)
		return stageFailed(models.StageExtraction, err), "", nil
	}

	audioPath, err := o.media.ExtractAudio(mediaCtx, videoPath)
	if err != nil {
		o.recordStage(jobID, models.StageExtraction, false)
		return stageFailed(models.StageExtraction, err), "", nil
	}

	patch := repository.MetadataPatch{
		DurationSeconds: &info.DurationSeconds,
	}
	if info.Resolution != "" {
		patch.Resolution = &info.Resolution
	}
	if info.Format != "" {
		patch.Format = &info.Format
	}
	if _, err := o.metadata.Upsert(jobID, patch); err != nil {
		o.logger.WithError(err).WithField("job_id", jobID).Error("failed to persist technical metadata")
	}

	o.recordStage(jobID, models.StageExtraction, true)
	return stageOK(models.StageExtraction), audioPath, info
}

// runGeneration invokes the AI adapter and persists whatever subset of the
// bundle was produced. The stage flag is true iff at least a transcript or a
// title came back; thumbnail and subtitle sub-steps never gate it. The
// returned notes list the non-fatal sub-failures.
func (o *Orchestrator) runGeneration(ctx context.Context, jobID uuid.UUID, video *models.Video, audioPath, videoPath string, info *media.TechInfo) (StageResult, []string) {
	aiCtx, cancel := context.WithTimeout(ctx, o.timeouts.AITimeout)
	defer cancel()

	result, err := o.ai.Generate(aiCtx, audioPath)
	if err != nil {
		o.recordStage(jobID, models.StageAIGeneration, false)
		return stageFailed(models.StageAIGeneration, err), nil
	}

	var notes []string
	for field, reason := range result.FieldErrors {
		notes = append(notes, field+": "+reason)
	}

	patch := repository.MetadataPatch{
		Title:       result.Title,
		Description: result.Description,
		Transcript:  result.Transcript,
		ShowNotes:   result.ShowNotes,
		Tags:        result.Tags,
		Chapters:    result.Chapters,
	}

	// Step 5: persist produced artifacts to blob storage. Each one is an
	// independent sub-step.
	storeCtx, cancelStore := context.WithTimeout(ctx, o.timeouts.StorageTimeout)
	defer cancelStore()

	if result.Transcript != nil {
		ref := artifactRef(video, jobID, "transcript.txt")
		if _, err := o.store.Put(storeCtx, ref, []byte(*result.Transcript), "text/plain"); err != nil {
			notes = append(notes, "transcript upload: "+shortReason(err))
		} else {
			patch.TranscriptRef = &ref
		}
	}

	if len(result.Subtitles) > 0 {
		refs := map[string]string{}
		for format, contents := range result.Subtitles {
			ref := artifactRef(video, jobID, "subtitles."+format)
			if _, err := o.store.Put(storeCtx, ref, contents, "text/plain"); err != nil {
				notes = append(notes, "subtitle upload ("+format+"): "+shortReason(err))
				continue
			}
			refs[format] = ref
		}
		if len(refs) > 0 {
			patch.SubtitleRefs = refs
		}
	}

	if thumbRef, err := o.generateThumbnail(ctx, video, jobID, videoPath, info); err != nil {
		notes = append(notes, "thumbnail: "+shortReason(err))
	} else {
		patch.ThumbnailRef = &thumbRef
	}

	if !patch.Empty() {
		if _, err := o.metadata.Upsert(jobID, patch); err != nil {
			o.logger.WithError(err).WithField("job_id", jobID).Error("failed to persist generation results")
			notes = append(notes, "metadata persistence: "+shortReason(err))
		}
	}

	ok := result.HasUsableOutput()
	o.recordStage(jobID, models.StageAIGeneration, ok)
	if !ok {
		return stageFailed(models.StageAIGeneration, fmt.Errorf("no transcript or title produced")), notes
	}
	return stageOK(models.StageAIGeneration), notes
}

func (o *Orchestrator) generateThumbnail(ctx context.Context, video *models.Video, jobID uuid.UUID, videoPath string, info *media.TechInfo) (string, error) {
	mediaCtx, cancel := context.WithTimeout(ctx, o.timeouts.MediaTimeout)
	defer cancel()

	at := info.DurationSeconds * 0.25
	framePath, err := o.media.GrabFrame(mediaCtx, videoPath, at)
	if err != nil {
		return "", err
	}
	defer os.Remove(framePath)

	data, err := os.ReadFile(framePath)
	if err != nil {
		return "", err
	}

	ref := artifactRef(video, jobID, "thumbnail.jpg")
	if _, err := o.store.Put(mediaCtx, ref, data, "image/jpeg"); err != nil {
		return "", err
	}
	return ref, nil
}

// cancelled checks for cooperative cancellation between stages. An in-flight
// collaborator call always runs to completion first.
func (o *Orchestrator) cancelled(ctx context.Context, jobID uuid.UUID, log *logrus.Entry) bool {
	if ctx.Err() == nil {
		return false
	}
	log.Info("job cancelled between stages")
	o.finalize(jobID, models.JobStatusFailed, "cancelled by user")
	return true
}

func (o *Orchestrator) recordStage(jobID uuid.UUID, stage string, succeeded bool) {
	if err := o.jobs.UpdateStageProgress(jobID, stage, succeeded); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"job_id": jobID,
			"stage":  stage,
		}).Error("failed to record stage progress")
	}
}

func (o *Orchestrator) finalize(jobID uuid.UUID, status models.JobStatus, message string) {
	metrics.JobsProcessed.WithLabelValues(string(status)).Inc()
	if err := o.jobs.MarkTerminal(jobID, status, message); err != nil {
		o.logger.WithError(err).WithField("job_id", jobID).Error("failed to finalize job")
	}
}

func artifactRef(video *models.Video, jobID uuid.UUID, name string) string {
	return fmt.Sprintf("%s/jobs/%s/%s", video.UserID, jobID, name)
}

// shortReason keeps persisted error text to a single readable line; full
// detail goes to the logs only.
func shortReason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
