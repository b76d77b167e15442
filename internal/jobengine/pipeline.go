package jobengine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/attributes"
	"github.com/aphrodite-badges/aphrodite/internal/badges"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
	"github.com/aphrodite-badges/aphrodite/internal/enrichment"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/metrics"
	"github.com/aphrodite-badges/aphrodite/internal/posterstore"
	"github.com/aphrodite-badges/aphrodite/internal/store"
)

// runItem executes the per-item algorithm from spec.md §4.1 for one
// (job_id, item_id) pair: dedupe, fetch, resolve, badge select, render,
// upload, tag. It returns the terminal status, an error kind when
// applicable, and the badge types actually applied.
func (e *Engine) runItem(ctx context.Context, unit workUnit) (status string, errKind apperr.Kind, badgesApplied []badges.Type) {
	ctx = logging.ContextWithJobID(ctx, unit.jobID)
	ctx = logging.ContextWithItemID(ctx, unit.itemID)

	if unit.kind == kindRevert {
		if e.reverter == nil {
			return "failed", apperr.StorageIO, nil
		}
		if err := e.reverter.Revert(ctx, unit.itemID); err != nil {
			k, _ := apperr.KindOf(err)
			return "failed", k, nil
		}
		return "ok", "", nil
	}

	if _, loaded := e.inFlight.LoadOrStore(unit.itemID, unit.jobID); loaded {
		return "failed", apperr.Busy, nil
	}
	defer e.inFlight.Delete(unit.itemID)

	if e.isCancelled(unit.jobID) {
		return "skipped", apperr.Cancelled, nil
	}

	var lastErr error
	attempt := 1
	for attempt <= e.cfg.MaxAttempts {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "failed", apperr.Timeout, nil
			case <-time.After(backoffDuration(attempt)):
			}
		}

		status, errKind, badgesApplied, lastErr = e.attemptItem(ctx, unit)
		if lastErr == nil {
			return status, errKind, badgesApplied
		}
		if !apperr.Retryable(lastErr) {
			return status, errKind, badgesApplied
		}
		if e.isCancelled(unit.jobID) {
			return "cancelled", apperr.Cancelled, nil
		}

		// A rate-limited response already waited out its Retry-After hint
		// inside the catalog/enrichment client before returning here. If
		// the context is still live afterward, that wait fit within the
		// remaining deadline, so the attempt is free: it doesn't cost a
		// retry slot. After the first attempt the usual backoff sleep still
		// runs before the repeated try.
		if isRateLimited(errKind) && ctx.Err() == nil {
			continue
		}
		attempt++
	}
	return status, errKind, badgesApplied
}

func isRateLimited(k apperr.Kind) bool {
	return k == apperr.CatalogRateLimited || k == apperr.SourceRateLimited
}

// attemptItem runs one try of the fetch -> resolve -> render -> upload ->
// tag pipeline, checking for cancellation at each stage boundary per §5.
func (e *Engine) attemptItem(ctx context.Context, unit workUnit) (status string, errKind apperr.Kind, badgesApplied []badges.Type, err error) {
	if checkpoint(e, unit.jobID) {
		return "cancelled", apperr.Cancelled, nil, nil
	}

	item, err := e.catalogClient.GetItem(ctx, unit.itemID)
	if err != nil {
		k, _ := apperr.KindOf(err)
		return "failed", k, nil, err
	}

	var imgBytes []byte
	var mime string
	skipBadges := false
	if ov, ok := e.takeOverride(unit.itemID); ok {
		imgBytes, mime, skipBadges = ov.data, ov.mime, !ov.applyBadges
		if ov.mask != nil {
			unit.mask = ov.mask
		}
	} else {
		imgBytes, mime, err = e.catalogClient.GetPrimaryImage(ctx, unit.itemID)
		if err != nil {
			k, _ := apperr.KindOf(err)
			return "failed", k, nil, err
		}
	}
	ext := posterstore.ExtFromContentType(mime)
	if err := e.posters.SaveOriginal(unit.itemID, ext, imgBytes); err != nil {
		return "failed", apperr.StorageIO, nil, err
	}

	if checkpoint(e, unit.jobID) {
		return "cancelled", apperr.Cancelled, nil, nil
	}

	modified := imgBytes
	if !skipBadges {
		attrs, err := e.resolveAttributes(ctx, item)
		if err != nil {
			k, _ := apperr.KindOf(err)
			return "failed", k, nil, err
		}

		if checkpoint(e, unit.jobID) {
			return "cancelled", apperr.Cancelled, nil, nil
		}

		instances, skips, err := e.badgeCatalog.SelectBadges(ctx, attrs, unit.mask)
		if err != nil {
			k, _ := apperr.KindOf(err)
			return "failed", k, nil, err
		}
		for _, s := range skips {
			logging.Ctx(ctx).Debug().Str("badge_type", string(s.BadgeType)).Str("kind", string(s.Kind)).Str("detail", s.Detail).Msg("badge skipped")
			metrics.BadgesSkippedTotal.WithLabelValues(string(s.BadgeType), string(s.Kind)).Inc()
		}

		if checkpoint(e, unit.jobID) {
			return "cancelled", apperr.Cancelled, nil, nil
		}

		modified, err = e.renderer.Compose(imgBytes, instances)
		if err != nil {
			k, _ := apperr.KindOf(err)
			return "failed", k, nil, err
		}
		badgesApplied = instanceTypes(instances)
	}

	if err := e.posters.WriteWorking(unit.itemID, ext, modified); err != nil {
		return "failed", apperr.StorageIO, nil, err
	}
	defer func() { _ = e.posters.ClearWorking(unit.itemID) }()

	if checkpoint(e, unit.jobID) {
		return "cancelled", apperr.Cancelled, nil, nil
	}

	if err := e.catalogClient.PutPrimaryImage(ctx, unit.itemID, modified, mime); err != nil {
		k, _ := apperr.KindOf(err)
		return "failed", k, nil, err
	}
	if err := e.posters.SaveModified(unit.itemID, ext, modified); err != nil {
		return "failed", apperr.StorageIO, nil, err
	}

	for _, t := range badgesApplied {
		metrics.BadgesAppliedTotal.WithLabelValues(string(t)).Inc()
	}
	if len(badgesApplied) > 0 {
		if err := e.catalogClient.AddTag(ctx, unit.itemID, e.cfg.Tag); err != nil {
			// Upload already succeeded; the tag is secondary state. Record the
			// poster as applied and log the tag failure as a warning.
			logging.Ctx(ctx).Warn().Err(err).Msg("tag add failed after successful upload")
		}
	}

	return "ok", "", badgesApplied, nil
}

func checkpoint(e *Engine, jobID string) bool {
	return e.isCancelled(jobID)
}

func instanceTypes(instances []badges.BadgeInstance) []badges.Type {
	seen := make(map[badges.Type]bool)
	var out []badges.Type
	for _, inst := range instances {
		if !seen[inst.Type] {
			seen[inst.Type] = true
			out = append(out, inst.Type)
		}
	}
	return out
}

// resolveAttributes runs the Attribute Resolver (§4.4): direct
// classification for movies/episodes, dominant-value election across
// sampled episodes for series, then merges in enrichment ratings/awards.
func (e *Engine) resolveAttributes(ctx context.Context, item catalog.ItemMetadata) (attributes.ItemAttributes, error) {
	var attrs attributes.ItemAttributes
	attrs.Provenance = make(map[string]attributes.Provenance)

	switch item.Kind {
	case catalog.KindSeries:
		samples, err := e.sampleEpisodes(ctx, item.ItemID)
		if err != nil {
			return attrs, err
		}
		res, codec, dr := attributes.ElectDominant(samples, e.cfg.SeriesRangePolicy)
		attrs.ResolutionClass = res
		attrs.PrimaryAudioCodec = codec
		attrs.DynamicRange = dr
		attrs.Provenance["resolution_class"] = attributes.Provenance{Source: "series_election", Note: "dominant of sampled episodes"}
	default:
		res, prov := attributes.ResolveResolution(primaryVideoWidth(item), primaryVideoHeight(item), item.Path, e.cfg.ResolutionTieBreak)
		attrs.ResolutionClass = res
		attrs.Provenance["resolution_class"] = prov

		if stream, ok := primaryVideoStream(item); ok {
			attrs.DynamicRange = attributes.ResolveDynamicRange(stream, item.Path)
		}

		if audio, ok := attributes.SelectPrimaryAudioStream(item.MediaStreams); ok {
			attrs.PrimaryAudioCodec = attributes.NormalizeAudioCodec(audio.Codec, audio.Profile, audio.Title)
		}
	}

	reviews, awards, err := e.fetchEnrichment(ctx, item)
	if err != nil {
		return attrs, err
	}
	attrs.Reviews = reviews
	attrs.Awards = awards

	return attrs, nil
}

func (e *Engine) sampleEpisodes(ctx context.Context, seriesID string) ([]attributes.EpisodeSample, error) {
	iter, err := e.catalogClient.ListItems(ctx, seriesID, catalog.ItemFilters{Kinds: []catalog.ItemKind{catalog.KindEpisode}})
	if err != nil {
		return nil, err
	}

	var samples []attributes.EpisodeSample
	for len(samples) < e.cfg.SeriesSampleSize {
		ref, ok, err := iter.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		ep, err := e.catalogClient.GetItem(ctx, ref.ItemID)
		if err != nil {
			continue
		}
		if _, ok := primaryVideoStream(ep); !ok {
			continue
		}
		res, _ := attributes.ResolveResolution(primaryVideoWidth(ep), primaryVideoHeight(ep), ep.Path, e.cfg.ResolutionTieBreak)
		var hdr, hdrPlus, dv bool
		if stream, ok := primaryVideoStream(ep); ok {
			switch attributes.ResolveDynamicRange(stream, ep.Path) {
			case attributes.RangeHDR:
				hdr = true
			case attributes.RangeHDRPlus:
				hdrPlus = true
			case attributes.RangeDV:
				dv = true
			case attributes.RangeDVHDR:
				dv, hdr = true, true
			case attributes.RangeDVHDRPlus:
				dv, hdrPlus = true, true
			}
		}
		var codec attributes.AudioCodec
		if audio, ok := attributes.SelectPrimaryAudioStream(ep.MediaStreams); ok {
			codec = attributes.NormalizeAudioCodec(audio.Codec, audio.Profile, audio.Title)
		}
		samples = append(samples, attributes.EpisodeSample{Resolution: res, Codec: codec, HDR: hdr, HDRPlus: hdrPlus, DV: dv})
	}
	return samples, nil
}

// fetchEnrichment queries every registered source in parallel and
// aggregates the results per §4.4 "Reviews"/"Awards".
func (e *Engine) fetchEnrichment(ctx context.Context, item catalog.ItemMetadata) ([]attributes.Review, []string, error) {
	if e.registry == nil {
		return nil, nil, nil
	}
	hints := enrichment.HintsFromItem(item)
	fetchers := e.registry.Fetchers()

	type result struct {
		name string
		res  enrichment.SourceResult
		err  error
	}
	results := make(chan result, len(fetchers))
	for _, f := range fetchers {
		go func(f enrichment.Fetcher) {
			res, err := f.Fetch(ctx, item, hints)
			results <- result{name: f.Name(), res: res, err: err}
		}(f)
	}

	var reviews []attributes.Review
	var awardHits []attributes.AwardHit
	for range fetchers {
		r := <-results
		if r.err != nil {
			continue
		}
		for _, rating := range r.res.Ratings {
			reviews = append(reviews, attributes.Review{Source: rating.Source, ScoreNormalized: rating.ScoreNormalized, Raw: rating.Raw})
		}
		if len(r.res.Awards) > 0 {
			awardHits = append(awardHits, attributes.AwardHit{Source: r.name, Awards: r.res.Awards})
		}
	}

	ordered := attributes.AggregateReviews(reviews, e.cfg.ReviewPriorities, e.cfg.MaxReviewBadges)
	awards := attributes.SelectAwards(awardHits, e.cfg.AwardPriorities, e.cfg.AllowMultipleAwards)
	return ordered, awards, nil
}

func primaryVideoStream(item catalog.ItemMetadata) (catalog.MediaStream, bool) {
	var best catalog.MediaStream
	found := false
	for _, s := range item.MediaStreams {
		if !strings.EqualFold(s.Type, "Video") {
			continue
		}
		if !found || s.Width > best.Width {
			best, found = s, true
		}
	}
	return best, found
}

func primaryVideoWidth(item catalog.ItemMetadata) int {
	if s, ok := primaryVideoStream(item); ok {
		return s.Width
	}
	return 0
}

func primaryVideoHeight(item catalog.ItemMetadata) int {
	if s, ok := primaryVideoStream(item); ok {
		return s.Height
	}
	return 0
}

// recordResult persists the terminal JobItemResult and updates the job's
// progress counters via compare-and-set, retrying on version conflicts.
func (e *Engine) recordResult(ctx context.Context, unit workUnit, status string, errKind apperr.Kind, badgesApplied []badges.Type, duration time.Duration) {
	badgesJSON, _ := json.Marshal(badgesApplied)
	row := storeJobItemRow(unit, status, errKind, string(badgesJSON), duration)
	if err := e.db.UpsertJobItem(ctx, row); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to persist job item result")
	}
	_ = e.db.RecordHistory(ctx, unit.jobID, unit.itemID, "item_finished", status)

	doneDelta, failedDelta, skippedDelta := 0, 0, 0
	switch status {
	case "ok":
		doneDelta = 1
	case "skipped", "cancelled":
		skippedDelta = 1
	default:
		failedDelta = 1
	}

	for {
		job, err := e.db.GetJob(ctx, unit.jobID)
		if err != nil {
			return
		}
		err = e.db.CASUpdateProgress(ctx, unit.jobID, job.Version, doneDelta, failedDelta, skippedDelta)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		logging.Ctx(ctx).Error().Err(err).Msg("progress update failed")
		break
	}

	e.publishEvent(unit.jobID, ProgressEvent{JobID: unit.jobID, Event: "item_finished", ItemID: unit.itemID, Status: status})
}

func (e *Engine) publishEvent(jobID string, ev ProgressEvent) {
	e.streamsMu.Lock()
	s, ok := e.streams[jobID]
	e.streamsMu.Unlock()
	if ok {
		s.publish(ev)
	}
}
