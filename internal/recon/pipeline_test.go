package recon

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/domusplus/receipt-engine/configs"
	"github.com/domusplus/receipt-engine/internal/common"
	"github.com/domusplus/receipt-engine/internal/ratelimit"
	"github.com/domusplus/receipt-engine/internal/segmenter"
	"github.com/domusplus/receipt-engine/internal/vision"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeProvider scripts per-segment responses so pipeline behavior can be
// driven without a network.
type fakeProvider struct {
	mu sync.Mutex

	itemsBySegment map[int]*vision.ItemExtraction
	itemsErr       error
	transcript     map[int]string
	transcriptErr  error
	totals         *vision.TotalsReading
	totalsErr      error

	extractCalls    int
	transcribeCalls int
	totalsCalls     int
}

func (f *fakeProvider) ExtractItems(ctx context.Context, rc *common.RequestContext, seg vision.Segment, mode common.Mode) (*vision.ItemExtraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	if f.itemsErr != nil {
		return nil, f.itemsErr
	}
	if ex, ok := f.itemsBySegment[seg.Index]; ok {
		return ex, nil
	}
	return &vision.ItemExtraction{}, nil
}

func (f *fakeProvider) TranscribeText(ctx context.Context, rc *common.RequestContext, seg vision.Segment, mode common.Mode) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribeCalls++
	if f.transcriptErr != nil {
		return "", f.transcriptErr
	}
	return f.transcript[seg.Index], nil
}

func (f *fakeProvider) ExtractTotals(ctx context.Context, rc *common.RequestContext, seg vision.Segment) (*vision.TotalsReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalsCalls++
	if f.totalsErr != nil {
		return nil, f.totalsErr
	}
	if f.totals == nil {
		return &vision.TotalsReading{}, nil
	}
	return f.totals, nil
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

// testJPEG renders a blank receipt-shaped image of the given height.
func testJPEG(height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 300, height))
	for y := 0; y < height; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})).To(Succeed())
	return buf.Bytes()
}

func testConfig() *configs.Config {
	return &configs.Config{
		ExtractTimeoutFast:      5,
		ExtractTimeoutPrecise:   5,
		TotalsTimeout:           5,
		MaxConcurrentFast:       4,
		MaxConcurrentPrecise:    2,
		SegmentOverlapPx:        100,
		ReconcileThresholdCents: 50,
		DefaultCurrency:         "MXN",
	}
}

func newTestPipeline(provider vision.Provider, cfg *configs.Config) *Pipeline {
	seg := segmenter.New(cfg.SegmentOverlapPx, 0, 0)
	limiter := ratelimit.NewRateLimiter(100, time.Second)
	return NewPipeline(provider, seg, limiter, cfg)
}

var _ = Describe("Pipeline", func() {
	var (
		cfg *configs.Config
		rc  *common.RequestContext
	)

	BeforeEach(func() {
		cfg = testConfig()
		rc = common.NewRequestContext("test-user")
	})

	When("two segments overlap on one line", func() {
		It("merges them with the duplicate removed", func() {
			provider := &fakeProvider{
				itemsBySegment: map[int]*vision.ItemExtraction{
					0: {
						Items: []vision.LineItemRaw{
							{RawLine: "LECHE ENTERA 1L 24.00", Total: "24.00"},
							{RawLine: "COCA COLA 2L 35.00", Total: "35.00"},
						},
						Merchant: "SUPER DEL CENTRO",
						Currency: "MXN",
					},
					1: {
						Items: []vision.LineItemRaw{
							{RawLine: "COCA COLA 2L 35.00", Total: "35.00"},
							{RawLine: "PAN BLANCO 28.50", Total: "28.50"},
						},
					},
				},
				totals: &vision.TotalsReading{
					Total:     "87.50",
					TotalLine: "TOTAL 87.50",
				},
			}
			p := newTestPipeline(provider, cfg)

			// Tall enough for two precise-mode segments.
			result, err := p.Process(context.Background(), rc, [][]byte{testJPEG(1000)}, common.ModePrecise)
			Expect(err).NotTo(HaveOccurred())

			var real []LineItem
			for _, it := range result.Receipt.Items {
				if it.Kind == KindItem {
					real = append(real, it)
				}
			}
			Expect(real).To(HaveLen(3))
			Expect(result.DedupRemoved).To(Equal(1))
			Expect(result.Merchant).To(Equal("SUPER DEL CENTRO"))
			Expect(result.Receipt.TotalCents).To(Equal(int64(8750)))
			Expect(result.Receipt.TotalTrusted).To(BeTrue())
		})
	})

	When("an upload cannot be decoded", func() {
		It("processes it as one whole segment instead of failing", func() {
			provider := &fakeProvider{
				transcript: map[int]string{0: "PAN BLANCO 28.50"},
			}
			p := newTestPipeline(provider, cfg)

			corrupt := append([]byte{0xFF, 0xD8, 0xFF}, []byte("truncated jpeg body")...)
			result, err := p.Process(context.Background(), rc, [][]byte{corrupt}, common.ModeText)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcomes).To(HaveLen(1))
			Expect(result.Receipt.TotalCents).To(Equal(int64(2850)))
		})
	})

	When("the footer total disagrees with the item sum", func() {
		It("appends an adjustment so the sums match", func() {
			provider := &fakeProvider{
				itemsBySegment: map[int]*vision.ItemExtraction{
					0: {Items: []vision.LineItemRaw{
						{RawLine: "ART UNO 300.00", Total: "300.00"},
						{RawLine: "ART DOS 300.00", Total: "300.00"},
					}},
				},
				totals: &vision.TotalsReading{Total: "650.00", TotalLine: "TOTAL 650.00"},
			}
			p := newTestPipeline(provider, cfg)

			result, err := p.Process(context.Background(), rc, [][]byte{testJPEG(400)}, common.ModePrecise)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Receipt.AdjustmentCents).To(Equal(int64(5000)))
			Expect(SumItems(result.Receipt.Items)).To(Equal(int64(65000)))
		})
	})

	When("structured extraction returns nothing", func() {
		It("falls back to transcription", func() {
			provider := &fakeProvider{
				transcript: map[int]string{
					0: "COCA COLA 2L 35.00\nPAN BLANCO 28.50\nTOTAL 63.50",
				},
				totals: &vision.TotalsReading{Total: "63.50", TotalLine: "TOTAL 63.50"},
			}
			p := newTestPipeline(provider, cfg)

			result, err := p.Process(context.Background(), rc, [][]byte{testJPEG(400)}, common.ModePrecise)
			Expect(err).NotTo(HaveOccurred())

			Expect(provider.transcribeCalls).To(BeNumerically(">=", 1))
			Expect(result.Outcomes[0].Status).To(Equal(OutcomeTranscribed))
			Expect(result.Receipt.TotalCents).To(Equal(int64(6350)))
		})
	})

	When("text mode is requested", func() {
		It("skips structured extraction entirely", func() {
			provider := &fakeProvider{
				transcript: map[int]string{0: "PAN BLANCO 28.50"},
				totals:     &vision.TotalsReading{Total: "28.50", TotalLine: "TOTAL 28.50"},
			}
			p := newTestPipeline(provider, cfg)

			_, err := p.Process(context.Background(), rc, [][]byte{testJPEG(400)}, common.ModeText)
			Expect(err).NotTo(HaveOccurred())
			Expect(provider.extractCalls).To(BeZero())
			Expect(provider.transcribeCalls).To(BeNumerically(">=", 1))
		})
	})

	When("every call times out", func() {
		It("fails the request asking for a clearer photo", func() {
			timeout := &vision.Error{Category: "timeout", Message: "deadline", Retryable: false}
			provider := &fakeProvider{
				itemsErr:      timeout,
				transcriptErr: timeout,
				totalsErr:     timeout,
			}
			p := newTestPipeline(provider, cfg)

			_, err := p.Process(context.Background(), rc, [][]byte{testJPEG(400)}, common.ModePrecise)
			Expect(err).To(MatchError(ErrNoSignal))
		})
	})

	When("the provider reports quota exhaustion", func() {
		It("aborts the whole request with the hard error", func() {
			hard := &vision.Error{Category: "quota_exceeded", Message: "quota", Retryable: false}
			provider := &fakeProvider{itemsErr: hard, transcriptErr: hard, totalsErr: hard}
			p := newTestPipeline(provider, cfg)

			_, err := p.Process(context.Background(), rc, [][]byte{testJPEG(400)}, common.ModePrecise)

			var ve *vision.Error
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &ve)).To(BeTrue())
			Expect(ve.Hard()).To(BeTrue())
		})
	})

	When("the totals call fails but segments succeed", func() {
		It("degrades to the untrusted raw sum", func() {
			provider := &fakeProvider{
				itemsBySegment: map[int]*vision.ItemExtraction{
					0: {Items: []vision.LineItemRaw{
						{RawLine: "PAN BLANCO 28.50", Total: "28.50"},
					}},
				},
				totalsErr: &vision.Error{Category: "timeout", Message: "deadline"},
			}
			p := newTestPipeline(provider, cfg)

			result, err := p.Process(context.Background(), rc, [][]byte{testJPEG(400)}, common.ModePrecise)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Receipt.TotalTrusted).To(BeFalse())
			Expect(result.Receipt.TotalCents).To(Equal(int64(2850)))
		})
	})
})
