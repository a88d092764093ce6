package recon

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func namedItems(lines ...string) []LineItem {
	items := make([]LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, NewLineItem(line, "", "", ""))
	}
	return items
}

var _ = Describe("MergeSegments", func() {
	It("removes the line duplicated by the overlap cut", func() {
		seg1 := []LineItem{
			NewLineItem("LECHE ENTERA 1L 24.00", "", "", "24.00"),
			NewLineItem("COCA COLA 2L 35.00", "", "", "35.00"),
		}
		seg2 := []LineItem{
			NewLineItem("COCA COLA 2L 35.00", "", "", "35.00"),
			NewLineItem("PAN BLANCO 28.50", "", "", "28.50"),
		}

		merged, removed := MergeSegments([][]LineItem{seg1, seg2})
		Expect(merged).To(HaveLen(3))
		Expect(removed).To(Equal(1))
		Expect(merged[1].RawText).To(Equal("COCA COLA 2L 35.00"))
		Expect(merged[2].RawText).To(Equal("PAN BLANCO 28.50"))
	})

	It("is idempotent when a segment is merged with itself", func() {
		seg := []LineItem{
			NewLineItem("COCA COLA 2L 35.00", "", "", "35.00"),
			NewLineItem("PAN BLANCO 28.50", "", "", "28.50"),
			NewLineItem("LECHE ENTERA 1L 24.00", "", "", "24.00"),
		}

		merged, removed := MergeSegments([][]LineItem{seg, seg})
		Expect(merged).To(HaveLen(len(seg)))
		Expect(removed).To(Equal(len(seg)))
		for i := range seg {
			Expect(merged[i].RawText).To(Equal(seg[i].RawText))
		}
	})

	It("accepts noisy rereads of the same line as duplicates", func() {
		seg1 := []LineItem{NewLineItem("GALLETAS MARIA GAMESA 500G 32.90", "", "", "32.90")}
		seg2 := []LineItem{
			NewLineItem("GALLETAS MARIA GAMESA 500G. 32.90", "", "", "32.90"),
			NewLineItem("QUESO PANELA 400G 58.00", "", "", "58.00"),
		}

		merged, removed := MergeSegments([][]LineItem{seg1, seg2})
		Expect(merged).To(HaveLen(2))
		Expect(removed).To(Equal(1))
	})

	It("rejects a similar line whose amount moved too far", func() {
		seg1 := []LineItem{NewLineItem("JAMON VIRGINIA 250G 45.00", "", "", "45.00")}
		seg2 := []LineItem{NewLineItem("JAMON VIRGINIA 250G 95.00", "", "", "95.00")}

		merged, removed := MergeSegments([][]LineItem{seg1, seg2})
		Expect(merged).To(HaveLen(2))
		Expect(removed).To(BeZero())
	})

	It("keeps genuine repeat purchases outside the head window", func() {
		var seg2 []LineItem
		for i := 0; i < dedupHeadWindow; i++ {
			seg2 = append(seg2, NewLineItem(fmt.Sprintf("PRODUCTO %03d 10.00", i), "", "", "10.00"))
		}
		repeat := NewLineItem("COCA COLA 2L 35.00", "", "", "35.00")
		seg2 = append(seg2, repeat)

		seg1 := []LineItem{NewLineItem("COCA COLA 2L 35.00", "", "", "35.00")}
		merged, removed := MergeSegments([][]LineItem{seg1, seg2})

		Expect(merged).To(HaveLen(1 + len(seg2)))
		Expect(removed).To(BeZero())
		Expect(merged[len(merged)-1].RawText).To(Equal(repeat.RawText))
	})

	It("preserves segment order", func() {
		seg1 := namedItems("A UNO 1.00", "B DOS 2.00")
		seg2 := namedItems("C TRES 3.00", "D CUATRO 4.00")

		merged, removed := MergeSegments([][]LineItem{seg1, seg2})
		Expect(merged).To(HaveLen(4))
		Expect(removed).To(BeZero())
		Expect(merged[0].RawText).To(Equal("A UNO 1.00"))
		Expect(merged[3].RawText).To(Equal("D CUATRO 4.00"))
	})
})

var _ = Describe("lineSimilarity", func() {
	It("is 1.0 for identical strings", func() {
		Expect(lineSimilarity("COCACOLA2L3500", "COCACOLA2L3500")).To(Equal(1.0))
	})

	It("is high for a one-character misread", func() {
		Expect(lineSimilarity("GALLETASMARIA500G", "GALLETASMARIA5O0G")).To(BeNumerically(">=", 0.90))
	})

	It("is low for unrelated lines", func() {
		Expect(lineSimilarity("COCACOLA2L", "QUESOPANELA400G")).To(BeNumerically("<", 0.5))
	})
})

var _ = Describe("amountsComparable", func() {
	It("accepts within the flat tolerance", func() {
		Expect(amountsComparable(3500, 3450)).To(BeTrue())
	})

	It("accepts within the percentage tolerance on large amounts", func() {
		Expect(amountsComparable(100000, 102500)).To(BeTrue())
	})

	It("rejects beyond both tolerances", func() {
		Expect(amountsComparable(4500, 9500)).To(BeFalse())
	})
})
