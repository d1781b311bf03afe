// Package pipeline orchestrates document conversions end to end: the
// durable job queue, the processing steps from analysis through artifact
// publication, and the room status transitions readers observe. Every step
// restarts from the stored job record, so a worker that dies mid-run loses
// its lease and another worker resumes the conversion.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidvanstory/MultiplayerGame/internal/bridge"
	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/id"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/timeouts"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/analyzer"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/instrument"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/llm"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/prompt"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/storage"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/synth"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	gamestorage "github.com/davidvanstory/MultiplayerGame/internal/services/game/storage"
)

var tracer = otel.Tracer("github.com/davidvanstory/MultiplayerGame/internal/services/converter/pipeline")

const (
	defaultPollInterval  = time.Second
	defaultLeaseTTL      = 5 * time.Minute
	defaultMaxAttempts   = 3
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 2 * time.Minute
	defaultLLMRetries    = 2

	artifactKindDocument  = "document"
	artifactKindValidator = "validator"

	roomUpdateRetries = 3
)

// Deployer admits validator source for a room and returns the opaque
// content-addressed ref the room will carry. The sandbox host implements
// it.
type Deployer interface {
	Deploy(ctx context.Context, roomID, kind, source string) (string, error)
}

// Ticket is the externally visible state of one conversion.
type Ticket struct {
	RoomID string `json:"roomId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Config wires the pipeline's dependencies and tunes the worker loop.
type Config struct {
	Jobs      storage.JobStore
	Artifacts storage.ArtifactStore
	Rooms     gamestorage.RoomStore
	Deployer  Deployer
	Model     llm.Client

	// PollInterval is the idle delay between queue polls.
	PollInterval time.Duration
	// LeaseTTL bounds how long a claimed job stays invisible to other
	// workers before it counts as abandoned.
	LeaseTTL time.Duration
	// MaxAttempts bounds processing attempts before a job fails for good.
	MaxAttempts int
	// RetryBackoff is the delay before a failed attempt reruns, doubling
	// per attempt up to RetryMaxDelay.
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	// LLMTimeout caps one model request. LLMRetries is how many extra
	// requests a single processing attempt may spend on provider errors
	// or unusable replies; negative disables retries.
	LLMTimeout time.Duration
	LLMRetries int

	Now func() time.Time
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = timeouts.LLMRequest
	}
	if c.LLMRetries == 0 {
		c.LLMRetries = defaultLLMRetries
	}
	if c.LLMRetries < 0 {
		c.LLMRetries = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Pipeline converts source documents into playable rooms.
type Pipeline struct {
	cfg Config
}

// New validates dependencies and returns a pipeline ready to accept
// requests and run workers.
func New(cfg Config) (*Pipeline, error) {
	cfg = cfg.normalized()
	if cfg.Jobs == nil {
		return nil, errors.New("job store is required")
	}
	if cfg.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if cfg.Rooms == nil {
		return nil, errors.New("room store is required")
	}
	if cfg.Deployer == nil {
		return nil, errors.New("deployer is required")
	}
	if cfg.Model == nil {
		return nil, errors.New("model client is required")
	}
	return &Pipeline{cfg: cfg}, nil
}

// documentRef derives the content address for a published document.
func documentRef(document string) string {
	sum := sha256.Sum256([]byte(document))
	return "doc:" + hex.EncodeToString(sum[:])
}

// RequestConversion starts a conversion for roomID or reports the one
// already recorded. A new request durably stores the original document and
// a pending room before returning, so status polling works immediately.
// Re-requesting a failed conversion requeues it from the stored document.
func (p *Pipeline) RequestConversion(ctx context.Context, roomID string, document []byte) (Ticket, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return Ticket{}, apperrors.New(apperrors.CodeInvalidActionShape, "room id is required")
	}
	if strings.TrimSpace(string(document)) == "" {
		return Ticket{}, apperrors.New(apperrors.CodeInvalidActionShape, "document is required")
	}

	job, created, err := p.cfg.Jobs.EnqueueJob(ctx, roomID, string(document))
	if err != nil {
		return Ticket{}, apperrors.Wrap(apperrors.CodeStoreFailure, "enqueue conversion", err)
	}

	if created {
		if err := p.ensurePendingRoom(ctx, roomID, true); err != nil {
			return Ticket{}, err
		}
		return ticketFromJob(job), nil
	}

	switch job.Status {
	case room.ConversionFailed:
		if err := p.cfg.Jobs.RetryJob(ctx, roomID, "", p.cfg.Now()); err != nil {
			return Ticket{}, apperrors.Wrap(apperrors.CodeStoreFailure, "requeue conversion", err)
		}
		job.Status = room.ConversionPending
		job.Reason = ""
		if err := p.ensurePendingRoom(ctx, roomID, true); err != nil {
			return Ticket{}, err
		}
	case room.ConversionPending:
		// Heal a request that recorded its job but lost the room write.
		if err := p.ensurePendingRoom(ctx, roomID, false); err != nil {
			return Ticket{}, err
		}
	}
	return ticketFromJob(job), nil
}

// Status reports the recorded conversion state for roomID.
func (p *Pipeline) Status(ctx context.Context, roomID string) (Ticket, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return Ticket{}, apperrors.New(apperrors.CodeInvalidActionShape, "room id is required")
	}
	job, err := p.cfg.Jobs.GetJob(ctx, roomID)
	if err != nil {
		return Ticket{}, err
	}
	return ticketFromJob(job), nil
}

// Run drives the worker loop until ctx is canceled: drain every runnable
// job, then sleep for the poll interval.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, ok, err := p.cfg.Jobs.LeaseJob(ctx, p.cfg.Now(), p.cfg.LeaseTTL)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("converter: lease job: %v", err)
			}
			return
		}
		if !ok {
			return
		}
		p.handle(ctx, job)
	}
}

func (p *Pipeline) handle(ctx context.Context, job storage.Job) {
	ctx, span := tracer.Start(ctx, "pipeline.Convert", trace.WithAttributes(
		attribute.String("room.id", job.RoomID),
		attribute.Int("conversion.attempt", job.Attempts),
	))
	defer span.End()

	err := p.process(ctx, job)
	if err == nil {
		metrics.ConversionJobs.WithLabelValues("complete").Inc()
		return
	}
	if ctx.Err() != nil {
		// Shutdown mid-run. The lease expires and another worker resumes.
		return
	}
	span.RecordError(err)

	reason := failureReason(err)
	if permanentFailure(err) || job.Attempts >= p.cfg.MaxAttempts {
		p.fail(ctx, job, reason)
		return
	}

	delay := retryDelay(p.cfg.RetryBackoff, p.cfg.RetryMaxDelay, job.Attempts)
	if retryErr := p.cfg.Jobs.RetryJob(ctx, job.RoomID, reason, p.cfg.Now().Add(delay)); retryErr != nil {
		log.Printf("conversion %s: schedule retry: %v", job.RoomID, retryErr)
		return
	}
	metrics.ConversionJobs.WithLabelValues("retried").Inc()
	log.Printf("conversion %s: attempt %d failed, retrying in %s: %v", job.RoomID, job.Attempts, delay, err)
}

// process runs one conversion attempt from the stored document to the
// published artifact pair. The room exposes the refs only after both
// artifacts are stored, so readers never observe a partial pair.
func (p *Pipeline) process(ctx context.Context, job storage.Job) error {
	rm, err := p.cfg.Rooms.GetRoom(ctx, job.RoomID)
	if err != nil {
		return err
	}

	// A worker that died between the room and job writes leaves a complete
	// room behind a leased job. Reuse the published refs instead of paying
	// for another model call.
	if rm.Conversion == room.ConversionComplete && rm.DocumentRef != "" && rm.ValidatorRef != "" {
		return p.cfg.Jobs.CompleteJob(ctx, job.RoomID, rm.DocumentRef, rm.ValidatorRef, rm.Kind)
	}

	if err := p.updateRoom(ctx, job.RoomID, func(r *room.Room) {
		r.Conversion = room.ConversionProcessing
		r.ConversionError = ""
	}); err != nil {
		return err
	}

	rep := analyzer.Analyze(job.Document)

	marked, err := instrument.Markers(job.Document, rep)
	if err != nil {
		return err
	}

	minPlayers, maxPlayers := synth.Limits(rep, synth.Params{})
	converted, err := p.generate(ctx, prompt.Build(marked, rep, prompt.Params{
		RoomID:     job.RoomID,
		MinPlayers: minPlayers,
		MaxPlayers: maxPlayers,
	}))
	if err != nil {
		return err
	}

	sessionID, err := id.NewID()
	if err != nil {
		return err
	}
	document, err := instrument.Inject(converted, bridge.DefaultRoomConfig(job.RoomID, sessionID, "/v1/rooms/"+job.RoomID+"/players"))
	if err != nil {
		return err
	}

	source, err := synth.Source(rep, synth.Params{})
	if err != nil {
		return err
	}

	validatorRef, err := p.cfg.Deployer.Deploy(ctx, job.RoomID, rep.Kind, source)
	if err != nil {
		return err
	}

	docRef := documentRef(document)
	if err := p.cfg.Artifacts.PutArtifact(ctx, docRef, artifactKindDocument, document); err != nil {
		return apperrors.Wrap(apperrors.CodeArtifactPublishFailed, "publish document artifact", err)
	}
	if err := p.cfg.Artifacts.PutArtifact(ctx, validatorRef, artifactKindValidator, source); err != nil {
		return apperrors.Wrap(apperrors.CodeArtifactPublishFailed, "publish validator artifact", err)
	}

	if err := p.updateRoom(ctx, job.RoomID, func(r *room.Room) {
		r.Conversion = room.ConversionComplete
		r.ConversionError = ""
		r.DocumentRef = docRef
		r.ValidatorRef = validatorRef
		r.Kind = rep.Kind
	}); err != nil {
		return err
	}
	if err := p.cfg.Jobs.CompleteJob(ctx, job.RoomID, docRef, validatorRef, rep.Kind); err != nil {
		return apperrors.Wrap(apperrors.CodeStoreFailure, "record completion", err)
	}
	log.Printf("conversion %s: complete, kind %s", job.RoomID, rep.Kind)
	return nil
}

// generate calls the model under the request timeout, retrying provider
// errors and replies with no usable document. Truncated replies are
// rejected rather than published.
func (p *Pipeline) generate(ctx context.Context, instructions string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.LLMRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
		reply, err := p.cfg.Model.Generate(reqCtx, instructions)
		cancel()
		if err != nil {
			metrics.LLMRequests.WithLabelValues("error").Inc()
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		document, err := llm.ExtractDocument(reply)
		if err != nil {
			metrics.LLMRequests.WithLabelValues("rejected").Inc()
			lastErr = err
			continue
		}
		metrics.LLMRequests.WithLabelValues("ok").Inc()
		return document, nil
	}
	return "", apperrors.Wrap(apperrors.CodeLLMFailed, "convert document", lastErr)
}

func (p *Pipeline) fail(ctx context.Context, job storage.Job, reason string) {
	if err := p.cfg.Jobs.FailJob(ctx, job.RoomID, reason); err != nil {
		log.Printf("conversion %s: record failure: %v", job.RoomID, err)
		return
	}
	if err := p.updateRoom(ctx, job.RoomID, func(r *room.Room) {
		r.Conversion = room.ConversionFailed
		r.ConversionError = reason
	}); err != nil && !errors.Is(err, gamestorage.ErrNotFound) {
		log.Printf("conversion %s: mark room failed: %v", job.RoomID, err)
	}
	metrics.ConversionJobs.WithLabelValues("failed").Inc()
	log.Printf("conversion %s: failed after %d attempts: %s", job.RoomID, job.Attempts, reason)
}

// ensurePendingRoom creates the room awaiting conversion. With
// resetExisting it also returns a known room's conversion status to
// pending, the path a reconversion takes.
func (p *Pipeline) ensurePendingRoom(ctx context.Context, roomID string, resetExisting bool) error {
	_, err := p.cfg.Rooms.GetRoom(ctx, roomID)
	if errors.Is(err, gamestorage.ErrNotFound) {
		if putErr := p.cfg.Rooms.PutRoom(ctx, room.NewPending(roomID, p.cfg.Now())); putErr != nil {
			return apperrors.Wrap(apperrors.CodeStoreFailure, "create pending room", putErr)
		}
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStoreFailure, "load room", err)
	}
	if !resetExisting {
		return nil
	}
	return p.updateRoom(ctx, roomID, func(r *room.Room) {
		r.Conversion = room.ConversionPending
		r.ConversionError = ""
	})
}

// updateRoom applies mutate under the store's version guard, reloading on
// conflict.
func (p *Pipeline) updateRoom(ctx context.Context, roomID string, mutate func(*room.Room)) error {
	var lastErr error
	for attempt := 0; attempt < roomUpdateRetries; attempt++ {
		rm, err := p.cfg.Rooms.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		expected := rm.Version
		mutate(&rm)
		now := p.cfg.Now().UTC()
		rm.Version = room.NextVersion(expected, now)
		rm.UpdatedAt = now
		rm.LastActivityAt = now
		err = p.cfg.Rooms.UpdateRoom(ctx, rm, expected)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gamestorage.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func ticketFromJob(job storage.Job) Ticket {
	return Ticket{RoomID: job.RoomID, Status: string(job.Status), Reason: job.Reason}
}

func failureReason(err error) string {
	return string(apperrors.CodeOf(err)) + ": " + err.Error()
}

// permanentFailure reports failures a retry cannot change: analysis and
// deploy outcomes are deterministic for a given document, and a missing
// room has nobody waiting on the result.
func permanentFailure(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeAnalysisFailed, apperrors.CodeValidatorDeployFailed,
		apperrors.CodeValidatorLimit, apperrors.CodeRoomNotFound:
		return true
	}
	return false
}

func retryDelay(base, max time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
