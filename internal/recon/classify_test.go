package recon

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ClassifyLine", func() {
	DescribeTable("keyword tables",
		func(line string, expected LineKind) {
			Expect(ClassifyLine(line)).To(Equal(expected))
		},
		Entry("plain item", "COCA COLA 2L 35.00", KindItem),
		Entry("lowercase item", "pan blanco 28.50", KindItem),
		Entry("discount", "DESCUENTO LEALTAD 10.00-", KindDiscount),
		Entry("abbreviated discount", "DSCTO CLIENTE 5.00", KindDiscount),
		Entry("coupon", "CUPON BIENVENIDA 20.00-", KindDiscount),
		Entry("promotion", "PROMOCION 3X2 17.50-", KindPriceChange),
		Entry("offer", "OFERTA SEMANAL 8.00-", KindPriceChange),
		Entry("cancellation", "CANCELADO LECHE ENTERA 24.00", KindCancel),
		Entry("void in spanish", "ANULACION ART 4 12.00", KindCancel),
		Entry("lowercase keywords still match", "descuento nomina 3.00", KindDiscount),
	)

	It("prefers cancellation when a cancelled discount line matches both", func() {
		Expect(ClassifyLine("CANCELADO DESCUENTO 10.00")).To(Equal(KindCancel))
	})
})

var _ = Describe("LineKind sign forcing", func() {
	It("forces reversal kinds negative", func() {
		Expect(KindDiscount.ForcesNegative()).To(BeTrue())
		Expect(KindPriceChange.ForcesNegative()).To(BeTrue())
		Expect(KindCancel.ForcesNegative()).To(BeTrue())
	})

	It("leaves items, placeholders and adjustments alone", func() {
		Expect(KindItem.ForcesNegative()).To(BeFalse())
		Expect(KindPlaceholder.ForcesNegative()).To(BeFalse())
		Expect(KindAdjustment.ForcesNegative()).To(BeFalse())
	})
})

var _ = Describe("NewLineItem", func() {
	It("parses the total and keeps the raw fields", func() {
		item := NewLineItem("COCA COLA 2L 2 17.50 35.00", "2", "17.50", "35.00")
		Expect(item.Kind).To(Equal(KindItem))
		Expect(item.TotalCents).To(Equal(int64(3500)))
		Expect(item.Illegible).To(BeFalse())
	})

	It("flips a positive total on a discount line", func() {
		item := NewLineItem("DESCUENTO LEALTAD 10.00", "", "", "10.00")
		Expect(item.Kind).To(Equal(KindDiscount))
		Expect(item.TotalCents).To(Equal(int64(-1000)))
	})

	It("keeps an already negative discount total", func() {
		item := NewLineItem("DESCUENTO LEALTAD 10.00-", "", "", "10.00-")
		Expect(item.TotalCents).To(Equal(int64(-1000)))
	})

	It("marks an unreadable total illegible with zero contribution", func() {
		item := NewLineItem("ARROZ PRECOCIDO 1KG no legible", "", "", "no legible")
		Expect(item.TotalCents).To(BeZero())
		Expect(item.Illegible).To(BeTrue())
	})

	It("does not mark a printed zero illegible", func() {
		item := NewLineItem("BOLSA REUSABLE 0.00", "", "", "0.00")
		Expect(item.TotalCents).To(BeZero())
		Expect(item.Illegible).To(BeFalse())
	})
})

var _ = Describe("ItemsFromTranscript", func() {
	transcript := `WALMART SUPERCENTER
COCA COLA 2L 35.00
PAN BLANCO 28.50
DESCUENTO LEALTAD 10.00-
SUBTOTAL 53.50
TOTAL 53.50
GRACIAS POR SU COMPRA`

	It("keeps amount-bearing item lines and drops noise", func() {
		items := ItemsFromTranscript(transcript)
		Expect(items).To(HaveLen(3))
		Expect(items[0].RawText).To(Equal("COCA COLA 2L 35.00"))
		Expect(items[1].TotalCents).To(Equal(int64(2850)))
		Expect(items[2].Kind).To(Equal(KindDiscount))
		Expect(items[2].TotalCents).To(Equal(int64(-1000)))
	})

	It("returns nothing for an empty transcript", func() {
		Expect(ItemsFromTranscript("")).To(BeEmpty())
	})
})
