package recon

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reconcile", func() {
	var items []LineItem

	BeforeEach(func() {
		items = []LineItem{
			NewLineItem("COCA COLA 2L 35.00", "", "", "35.00"),
			NewLineItem("PAN BLANCO 28.50", "", "", "28.50"),
		}
	})

	When("there is no trusted total", func() {
		It("falls back to the raw item sum and says so", func() {
			rec := Reconcile(items, TotalsCandidate{}, false, 50)
			Expect(rec.TotalTrusted).To(BeFalse())
			Expect(rec.TotalCents).To(Equal(int64(6350)))
			Expect(rec.Items).To(HaveLen(2))
		})
	})

	When("the gap is below the threshold", func() {
		It("changes nothing", func() {
			total := TotalsCandidate{AmountCents: 6380, SourceLine: "TOTAL 63.80"}
			rec := Reconcile(items, total, true, 50)

			Expect(rec.TotalTrusted).To(BeTrue())
			Expect(rec.TotalCents).To(Equal(int64(6380)))
			Expect(rec.Items).To(HaveLen(2))
			Expect(rec.AdjustmentCents).To(BeZero())
			Expect(rec.PlaceholderCount).To(BeZero())
		})
	})

	When("the total exceeds the sum with no declared count", func() {
		It("closes the gap with one adjustment line", func() {
			total := TotalsCandidate{AmountCents: 65000, SourceLine: "TOTAL 650.00"}
			sixHundred := []LineItem{
				NewLineItem("ART UNO 300.00", "", "", "300.00"),
				NewLineItem("ART DOS 300.00", "", "", "300.00"),
			}
			rec := Reconcile(sixHundred, total, true, 50)

			Expect(rec.Items).To(HaveLen(3))
			last := rec.Items[len(rec.Items)-1]
			Expect(last.Kind).To(Equal(KindAdjustment))
			Expect(last.TotalCents).To(Equal(int64(5000)))
			Expect(SumItems(rec.Items)).To(Equal(rec.TotalCents))
		})
	})

	When("the total is below the sum", func() {
		It("labels the adjustment as unlisted promotions", func() {
			total := TotalsCandidate{AmountCents: 5000, SourceLine: "TOTAL 50.00"}
			rec := Reconcile(items, total, true, 50)

			last := rec.Items[len(rec.Items)-1]
			Expect(last.Kind).To(Equal(KindAdjustment))
			Expect(last.TotalCents).To(Equal(int64(-1350)))
			Expect(last.RawText).To(ContainSubstring("promociones"))
			Expect(SumItems(rec.Items)).To(Equal(int64(5000)))
		})
	})

	When("the footer declares more items than were read", func() {
		var seven []LineItem

		BeforeEach(func() {
			seven = make([]LineItem, 0, 7)
			for i := 0; i < 7; i++ {
				seven = append(seven, NewLineItem("ARTICULO 10.00", "", "", "10.00"))
			}
		})

		It("marks the missing lines with interleaved zero-valued placeholders", func() {
			total := TotalsCandidate{
				AmountCents:       7000,
				SourceLine:        "TOTAL 70.00",
				DeclaredItemCount: 10,
			}
			rec := Reconcile(seven, total, true, 50)

			Expect(rec.PlaceholderCount).To(Equal(3))
			Expect(rec.Items).To(HaveLen(10))
			Expect(rec.AdjustmentCents).To(BeZero())

			var placeholderIdx []int
			for i, it := range rec.Items {
				if it.Kind == KindPlaceholder {
					Expect(it.Illegible).To(BeTrue())
					Expect(it.TotalCents).To(BeZero())
					placeholderIdx = append(placeholderIdx, i)
				}
			}
			Expect(placeholderIdx).To(HaveLen(3))
			Expect(placeholderIdx[0]).To(BeNumerically(">", 0))
			Expect(placeholderIdx[len(placeholderIdx)-1]).To(BeNumerically("<", len(rec.Items)-1))
		})

		It("closes the money gap with one adjustment naming the placeholder count", func() {
			total := TotalsCandidate{
				AmountCents:       10000,
				SourceLine:        "TOTAL 100.00",
				DeclaredItemCount: 10,
			}
			rec := Reconcile(seven, total, true, 50)

			Expect(rec.PlaceholderCount).To(Equal(3))
			Expect(rec.Items).To(HaveLen(11))
			Expect(rec.AdjustmentCents).To(Equal(int64(3000)))
			Expect(SumItems(rec.Items)).To(Equal(int64(10000)))

			for _, it := range rec.Items {
				if it.Kind == KindPlaceholder {
					Expect(it.TotalCents).To(BeZero())
				}
			}
			last := rec.Items[len(rec.Items)-1]
			Expect(last.Kind).To(Equal(KindAdjustment))
			Expect(last.TotalCents).To(Equal(int64(3000)))
			Expect(last.RawText).To(ContainSubstring("3 renglones"))
		})

		It("inserts placeholders even when the totals already agree", func() {
			three := []LineItem{
				NewLineItem("ART UNO 10.00", "", "", "10.00"),
				NewLineItem("ART DOS 10.00", "", "", "10.00"),
				NewLineItem("ART TRES 10.00", "", "", "10.00"),
			}
			total := TotalsCandidate{
				AmountCents:       3020,
				SourceLine:        "TOTAL 30.20",
				DeclaredItemCount: 4,
			}
			rec := Reconcile(three, total, true, 50)

			Expect(rec.PlaceholderCount).To(Equal(1))
			Expect(rec.Items).To(HaveLen(4))
			Expect(rec.AdjustmentCents).To(BeZero())
		})
	})

	When("the total is trusted and the gap is large", func() {
		It("always makes the output sum to the declared total exactly", func() {
			cases := []struct {
				items []LineItem
				total int64
			}{
				{namedItems("A 1.00"), 99999},
				{namedItems("A 1.00", "B 2.00"), 51},
				{nil, 12345},
			}
			for _, tc := range cases {
				rec := Reconcile(tc.items, TotalsCandidate{AmountCents: tc.total, SourceLine: "TOTAL"}, true, 50)
				Expect(SumItems(rec.Items)).To(Equal(tc.total))
			}
		})
	})
})
