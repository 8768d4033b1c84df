// Package updater runs one update cycle: it checks the dataset for a new day,
// publishes the digest thread and records the outcome.
package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rewired-gh/dailythread/internal/chart"
	"github.com/rewired-gh/dailythread/internal/dataset"
	"github.com/rewired-gh/dailythread/internal/digest"
	"github.com/rewired-gh/dailythread/internal/logger"
	"github.com/rewired-gh/dailythread/internal/marker"
	"github.com/rewired-gh/dailythread/internal/metrics"
	"github.com/rewired-gh/dailythread/internal/models"
	"github.com/rewired-gh/dailythread/internal/thread"
)

// Fetcher downloads and parses the dataset.
type Fetcher interface {
	FetchDataset(ctx context.Context, loc *time.Location) (*dataset.Dataset, error)
}

// RunStore records runs and their posts.
type RunStore interface {
	StartRun(run *models.Run) error
	FinishRun(run *models.Run, posts []models.Post) error
	RotateRuns() error
}

// Deps are the collaborators of an Updater.
type Deps struct {
	Fetcher   Fetcher
	Renderer  chart.Renderer
	Publisher thread.Publisher
	Store     RunStore
	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Config tunes an Updater.
type Config struct {
	MarkerPath string
	ChartsDir  string
	Location   *time.Location
	Digest     digest.Options
	// Force publishes on the next cycle even if the dataset is not newer
	// than the marker. It is cleared after one successful publication.
	Force bool
	// DryRun composes and hands the thread to the publisher without recording
	// the run or advancing the marker.
	DryRun bool
}

// Updater publishes the daily thread when the dataset advances.
type Updater struct {
	deps  Deps
	cfg   Config
	force bool
	// previewed is the newest day already handed over in dry-run mode.
	previewed time.Time
}

// New creates an Updater.
func New(deps Deps, cfg Config) *Updater {
	if deps.Renderer == nil {
		deps.Renderer = chart.Disabled{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Updater{deps: deps, cfg: cfg, force: cfg.Force}
}

// RunCycle performs one update cycle. It returns nil when there is nothing
// new to publish. On failure the marker is left untouched.
func (u *Updater) RunCycle(ctx context.Context) error {
	start := u.deps.Clock.Now()
	result := metrics.ResultFailed
	defer func() {
		metrics.CyclesTotal.WithLabelValues(result).Inc()
		metrics.CycleDuration.Observe(u.deps.Clock.Since(start).Seconds())
	}()

	logger.Info("Starting update cycle")
	ds, err := u.deps.Fetcher.FetchDataset(ctx, u.cfg.Location)
	if err != nil {
		return fmt.Errorf("failed to fetch dataset: %w", err)
	}
	latest, ok := ds.LastDate()
	if !ok {
		logger.Warn("Dataset is empty")
		result = metrics.ResultNoUpdate
		return nil
	}

	published, hasMarker, err := marker.Read(u.cfg.MarkerPath)
	if err != nil {
		return err
	}
	if u.cfg.DryRun && u.previewed.After(published) {
		published, hasMarker = u.previewed, true
	}
	if hasMarker && !latest.After(published) && !u.force {
		logger.Info("No updates found (latest %s, published %s)",
			latest.Format(dataset.DateLayout), published.In(u.cfg.Location).Format(dataset.DateLayout))
		result = metrics.ResultNoUpdate
		return nil
	}
	if u.force {
		logger.Info("Force mode: publishing %s", latest.Format(dataset.DateLayout))
	} else {
		logger.Info("New data for %s", latest.Format(dataset.DateLayout))
	}

	if u.cfg.DryRun {
		if err := u.preview(ctx, ds, latest); err != nil {
			return err
		}
		u.force = false
		result = metrics.ResultDryRun
		return nil
	}

	if err := u.publish(ctx, ds, latest); err != nil {
		return err
	}
	u.force = false
	result = metrics.ResultPublished
	return nil
}

// preview runs the thread through the publisher but leaves the run history
// and the marker untouched, so the live service still publishes this day.
func (u *Updater) preview(ctx context.Context, ds *dataset.Dataset, latest time.Time) error {
	published, err := u.compose(ctx, ds)
	if err != nil {
		return err
	}
	u.previewed = latest
	logger.Info("Dry run: composed thread of %d post(s) for %s, marker not advanced",
		len(published), latest.Format(dataset.DateLayout))
	return nil
}

func (u *Updater) publish(ctx context.Context, ds *dataset.Dataset, latest time.Time) error {
	run := &models.Run{
		ID:        uuid.NewString(),
		DataDate:  latest,
		StartedAt: u.deps.Clock.Now(),
		Status:    models.RunRunning,
	}
	if err := u.deps.Store.StartRun(run); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	published, err := u.compose(ctx, ds)
	posts := toPosts(run.ID, published)
	run.Posts = len(posts)
	run.FinishedAt = u.deps.Clock.Now()

	switch {
	case err == nil:
		run.Status = models.RunPublished
	case len(posts) > 0:
		run.Status = models.RunPartial
	default:
		run.Status = models.RunFailed
	}
	if err != nil {
		run.Error = err.Error()
		if errors.Is(err, thread.ErrPublicationFailure) {
			metrics.PublicationFailures.Inc()
		}
	}
	metrics.PostsPublished.Add(float64(len(posts)))

	if finishErr := u.deps.Store.FinishRun(run, posts); finishErr != nil {
		logger.Error("Failed to record outcome of run %s: %v", run.ID, finishErr)
	}
	if err != nil {
		if len(posts) > 0 {
			logger.Error("Thread stopped after %d live post(s), last id %s", len(posts), posts[len(posts)-1].PostID)
		}
		return err
	}

	logger.Info("Published thread of %d post(s) for %s", len(posts), latest.Format(dataset.DateLayout))
	metrics.LastPublishedDataTimestamp.Set(float64(latest.Unix()))

	if err := u.deps.Store.RotateRuns(); err != nil {
		logger.Warn("Failed to rotate runs: %v", err)
	}
	if err := marker.Write(u.cfg.MarkerPath, latest); err != nil {
		return fmt.Errorf("thread published but marker not advanced: %w", err)
	}
	return nil
}

// compose renders charts, builds the digest and publishes it.
func (u *Updater) compose(ctx context.Context, ds *dataset.Dataset) ([]thread.Published, error) {
	charts, err := u.deps.Renderer.Render(ds, u.cfg.ChartsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to render charts: %w", err)
	}
	logger.Debug("Rendered %d chart(s)", len(charts))

	c, err := digest.Build(ds, charts, u.cfg.Digest)
	if err != nil {
		return nil, fmt.Errorf("failed to build digest: %w", err)
	}
	return c.Publish(ctx, u.deps.Publisher)
}

func toPosts(runID string, published []thread.Published) []models.Post {
	posts := make([]models.Post, len(published))
	for i, p := range published {
		posts[i] = models.Post{
			RunID:   runID,
			Seq:     i,
			PostID:  p.ID,
			ReplyTo: p.ReplyTo,
			Text:    p.Text,
			Media:   len(p.Media),
		}
	}
	return posts
}
