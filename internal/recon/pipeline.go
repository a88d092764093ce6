// pipeline.go - Orchestrating segmentation, extraction and reconciliation

package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/domusplus/receipt-engine/configs"
	"github.com/domusplus/receipt-engine/internal/common"
	"github.com/domusplus/receipt-engine/internal/money"
	"github.com/domusplus/receipt-engine/internal/ratelimit"
	"github.com/domusplus/receipt-engine/internal/segmenter"
	"github.com/domusplus/receipt-engine/internal/vision"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrNoSignal means no segment produced a single usable line and no total
// was read. There is nothing to reconcile; the caller should ask for a
// clearer photo.
var ErrNoSignal = errors.New("no readable content in any segment")

// OutcomeStatus tags how a segment's items were obtained.
type OutcomeStatus string

const (
	OutcomeStructured  OutcomeStatus = "structured"
	OutcomeTranscribed OutcomeStatus = "transcribed"
	OutcomeFailed      OutcomeStatus = "failed"
)

// SegmentOutcome is the per-segment record of what extraction produced.
// Failed segments still carry one placeholder item so the merge keeps a
// trace of lost content.
type SegmentOutcome struct {
	Index  int           `json:"index"`
	Status OutcomeStatus `json:"status"`
	Items  []LineItem    `json:"-"`
	Error  string        `json:"error,omitempty"`

	Merchant   string `json:"-"`
	Date       string `json:"-"`
	Currency   string `json:"-"`
	Transcript string `json:"-"`
}

// Result is a fully processed receipt.
type Result struct {
	Receipt      ReconciledReceipt `json:"receipt"`
	Merchant     string            `json:"merchant,omitempty"`
	Date         string            `json:"date,omitempty"`
	Currency     string            `json:"currency"`
	Mode         common.Mode       `json:"mode"`
	DedupRemoved int               `json:"dedup_removed"`
	Outcomes     []SegmentOutcome  `json:"segments"`
}

// Pipeline wires the segmenter, a vision provider and the reconciliation
// passes into one Process call.
type Pipeline struct {
	provider  vision.Provider
	segmenter *segmenter.Segmenter
	limiter   *ratelimit.RateLimiter
	cfg       *configs.Config
}

func NewPipeline(provider vision.Provider, seg *segmenter.Segmenter, limiter *ratelimit.RateLimiter, cfg *configs.Config) *Pipeline {
	return &Pipeline{
		provider:  provider,
		segmenter: seg,
		limiter:   limiter,
		cfg:       cfg,
	}
}

func (p *Pipeline) concurrencyFor(mode common.Mode) int64 {
	if mode == common.ModePrecise {
		return int64(p.cfg.MaxConcurrentPrecise)
	}
	return int64(p.cfg.MaxConcurrentFast)
}

func (p *Pipeline) timeoutFor(mode common.Mode) time.Duration {
	if mode == common.ModePrecise {
		return time.Duration(p.cfg.ExtractTimeoutPrecise) * time.Second
	}
	return time.Duration(p.cfg.ExtractTimeoutFast) * time.Second
}

// Process runs the full pipeline over one receipt, possibly photographed as
// several images in top-to-bottom order. Segment extractions fan out under a
// bounded gate and fan back in by segment index; one footer totals call runs
// per image. Hard provider failures abort the whole request, soft ones
// degrade segment by segment.
func (p *Pipeline) Process(ctx context.Context, rc *common.RequestContext, images [][]byte, mode common.Mode) (*Result, error) {
	rc.StartStep("segment_images")
	strips, err := p.segmentAll(images, mode)
	if err != nil {
		rc.EndStep("failed", nil, err)
		return nil, err
	}
	rc.EndStep("success", nil, nil)
	rc.LogInfo("Processing %d image(s) as %d segment(s), mode=%s", len(images), len(strips), mode)

	rc.StartStep("extract_segments")
	outcomes, totalsReadings, err := p.extractAll(ctx, rc, images, strips, mode)
	if err != nil {
		rc.EndStep("failed", nil, err)
		return nil, err
	}
	rc.EndStep("success", nil, nil)

	return p.assemble(rc, outcomes, totalsReadings, mode)
}

// segmentAll cuts every image and flattens the strips in reading order.
func (p *Pipeline) segmentAll(images [][]byte, mode common.Mode) ([]segmenter.Strip, error) {
	var strips []segmenter.Strip
	for i, data := range images {
		parts, err := p.segmenter.Segment(data, mode)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		for _, s := range parts {
			s.Index = len(strips)
			strips = append(strips, s)
		}
	}
	if len(strips) == 0 {
		return nil, fmt.Errorf("no segments produced from %d image(s)", len(images))
	}
	return strips, nil
}

// extractAll fans segment extraction and footer reads out under the
// concurrency gate and collects results by index.
func (p *Pipeline) extractAll(ctx context.Context, rc *common.RequestContext, images [][]byte, strips []segmenter.Strip, mode common.Mode) ([]SegmentOutcome, []*vision.TotalsReading, error) {
	outcomes := make([]SegmentOutcome, len(strips))
	readings := make([]*vision.TotalsReading, len(images))

	g, gctx := errgroup.WithContext(ctx)
	gate := semaphore.NewWeighted(p.concurrencyFor(mode))

	for i := range strips {
		strip := strips[i]
		g.Go(func() error {
			if err := gate.Acquire(gctx, 1); err != nil {
				return err
			}
			defer gate.Release(1)

			outcome, err := p.extractSegment(gctx, rc, strip, mode)
			if err != nil {
				// Hard failures doom every remaining call the same way.
				return err
			}
			outcomes[strip.Index] = outcome
			return nil
		})
	}

	for i := range images {
		imgIndex := i
		data := images[i]
		g.Go(func() error {
			if err := gate.Acquire(gctx, 1); err != nil {
				return err
			}
			defer gate.Release(1)

			reading, err := p.readFooter(gctx, rc, imgIndex, data)
			if err != nil {
				return err
			}
			readings[imgIndex] = reading
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return outcomes, readings, nil
}

// extractSegment runs one segment through structured extraction, falling
// back to transcription, and finally to a placeholder. Only hard provider
// errors propagate; everything else degrades in place.
func (p *Pipeline) extractSegment(ctx context.Context, rc *common.RequestContext, strip segmenter.Strip, mode common.Mode) (SegmentOutcome, error) {
	seg := vision.Segment{Data: strip.Data, MIMEType: strip.MIMEType, Index: strip.Index}

	if mode != common.ModeText {
		extraction, err := p.callExtract(ctx, rc, seg, mode)
		if err == nil && len(extraction.Items) > 0 {
			items := make([]LineItem, 0, len(extraction.Items))
			for _, raw := range extraction.Items {
				total := raw.Total
				if total == "" {
					total = money.LastAmountInText(raw.RawLine)
				}
				items = append(items, NewLineItem(raw.RawLine, raw.Quantity, raw.UnitPrice, total))
			}
			return SegmentOutcome{
				Index:    strip.Index,
				Status:   OutcomeStructured,
				Items:    items,
				Merchant: extraction.Merchant,
				Date:     extraction.Date,
				Currency: extraction.Currency,
			}, nil
		}
		if hard := asHard(err); hard != nil {
			return SegmentOutcome{}, hard
		}
		if err != nil {
			rc.LogWarning("Segment %d structured extraction failed, falling back to transcription: %v", strip.Index, err)
		} else {
			rc.LogWarning("Segment %d returned no items, falling back to transcription", strip.Index)
		}
	}

	transcript, err := p.callTranscribe(ctx, rc, seg, mode)
	if err != nil {
		if hard := asHard(err); hard != nil {
			return SegmentOutcome{}, hard
		}
		rc.LogError("Segment %d unreadable: %v", strip.Index, err)
		return SegmentOutcome{
			Index:  strip.Index,
			Status: OutcomeFailed,
			Items:  []LineItem{segmentLostPlaceholder(strip.Index)},
			Error:  err.Error(),
		}, nil
	}

	return SegmentOutcome{
		Index:      strip.Index,
		Status:     OutcomeTranscribed,
		Items:      ItemsFromTranscript(transcript),
		Transcript: transcript,
	}, nil
}

func (p *Pipeline) callExtract(ctx context.Context, rc *common.RequestContext, seg vision.Segment, mode common.Mode) (*vision.ItemExtraction, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeoutFor(mode))
	defer cancel()

	extraction, err := p.provider.ExtractItems(callCtx, rc, seg, mode)
	if err != nil {
		return nil, err
	}
	rc.AddTokens(extraction.Usage)
	return extraction, nil
}

func (p *Pipeline) callTranscribe(ctx context.Context, rc *common.RequestContext, seg vision.Segment, mode common.Mode) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeoutFor(mode))
	defer cancel()

	return p.provider.TranscribeText(callCtx, rc, seg, mode)
}

// readFooter crops the totals block and reads it. A failed footer read is
// soft: the selector can still work from transcript candidates.
func (p *Pipeline) readFooter(ctx context.Context, rc *common.RequestContext, imgIndex int, data []byte) (*vision.TotalsReading, error) {
	crop, err := p.segmenter.FooterCrop(data)
	if err != nil {
		rc.LogWarning("Image %d footer crop failed: %v", imgIndex+1, err)
		return nil, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.TotalsTimeout)*time.Second)
	defer cancel()

	reading, err := p.provider.ExtractTotals(callCtx, rc, vision.Segment{
		Data:     crop.Data,
		MIMEType: crop.MIMEType,
		Index:    imgIndex,
	})
	if err != nil {
		if hard := asHard(err); hard != nil {
			return nil, hard
		}
		rc.LogWarning("Image %d totals read failed: %v", imgIndex+1, err)
		return nil, nil
	}
	rc.AddTokens(reading.Usage)
	return reading, nil
}

// assemble merges segment outputs, selects a total and reconciles.
func (p *Pipeline) assemble(rc *common.RequestContext, outcomes []SegmentOutcome, readings []*vision.TotalsReading, mode common.Mode) (*Result, error) {
	rc.StartStep("reconcile")

	segItems := make([][]LineItem, len(outcomes))
	allFailed := true
	for i, o := range outcomes {
		segItems[i] = o.Items
		if o.Status != OutcomeFailed {
			allFailed = false
		}
	}
	items, dedupRemoved := MergeSegments(segItems)

	candidates := p.collectCandidates(outcomes, readings)
	total, haveTotal := SelectTotal(candidates, items)

	// Placeholders from failed segments are bookkeeping, not signal. Fail
	// the request only when nothing at all was read.
	if (allFailed || len(items) == 0) && !haveTotal {
		rc.EndStep("failed", nil, ErrNoSignal)
		return nil, ErrNoSignal
	}

	receipt := Reconcile(items, total, haveTotal, int64(p.cfg.ReconcileThresholdCents))

	result := &Result{
		Receipt:      receipt,
		Currency:     p.cfg.DefaultCurrency,
		Mode:         mode,
		DedupRemoved: dedupRemoved,
		Outcomes:     outcomes,
	}
	p.fillMetadata(result, outcomes)

	rc.EndStep("success", nil, nil)
	rc.LogInfo("Reconciled %d item(s), total %s (trusted=%v, dedup_removed=%d, placeholders=%d, adjustment=%d)",
		len(receipt.Items), money.FormatCents(receipt.TotalCents), receipt.TotalTrusted,
		dedupRemoved, receipt.PlaceholderCount, receipt.AdjustmentCents)
	return result, nil
}

// collectCandidates turns footer readings and transcript scans into total
// candidates for the selector. Footer readings come first and carry a source
// bonus, but a transcript that caught the total line still competes when the
// footer read came back empty or wrong.
func (p *Pipeline) collectCandidates(outcomes []SegmentOutcome, readings []*vision.TotalsReading) []TotalsCandidate {
	var candidates []TotalsCandidate
	for _, reading := range readings {
		if reading == nil {
			continue
		}
		amount := money.ParseToCents(reading.Total)
		if amount <= 0 {
			continue
		}
		sourceLine := reading.TotalLine
		if sourceLine == "" {
			sourceLine = "TOTAL " + reading.Total
		}
		candidates = append(candidates, TotalsCandidate{
			AmountCents:       amount,
			SourceLine:        sourceLine,
			SubtotalCents:     money.ParseToCents(reading.Subtotal),
			TaxCents:          money.ParseToCents(reading.Tax),
			DeclaredItemCount: reading.DeclaredItemCount,
			Source:            SourceFooter,
		})
	}
	for _, o := range outcomes {
		if o.Transcript == "" {
			continue
		}
		candidates = append(candidates,
			TotalsCandidatesFromTranscript(o.Transcript, fmt.Sprintf("segment_%d", o.Index))...)
	}
	return candidates
}

// fillMetadata takes the first non-empty merchant/date/currency any segment
// reported. Headers print once, so first wins.
func (p *Pipeline) fillMetadata(result *Result, outcomes []SegmentOutcome) {
	for _, o := range outcomes {
		if result.Merchant == "" && o.Merchant != "" {
			result.Merchant = o.Merchant
		}
		if result.Date == "" && o.Date != "" {
			result.Date = o.Date
		}
		if o.Currency != "" && result.Currency == p.cfg.DefaultCurrency {
			result.Currency = o.Currency
		}
	}
}

func segmentLostPlaceholder(index int) LineItem {
	return LineItem{
		RawText:    fmt.Sprintf("SEGMENTO %d NO LEGIBLE", index+1),
		Kind:       KindPlaceholder,
		TotalCents: 0,
		Illegible:  true,
	}
}

// asHard returns the error when it is a hard provider failure, nil when the
// caller should degrade instead.
func asHard(err error) error {
	if err == nil {
		return nil
	}
	var ve *vision.Error
	if errors.As(err, &ve) && ve.Hard() {
		return ve
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
