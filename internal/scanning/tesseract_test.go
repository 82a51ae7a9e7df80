package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("guessFromText", func() {
	var (
		text string
		raw  *RawExtraction
	)

	JustBeforeEach(func() {
		raw = guessFromText(text, DefaultSuppliers)
	})

	When("the label has a ship-to block", func() {
		BeforeEach(func() {
			text = "FedEx Ground\nTRK# 7712 3456 9012\nSHIP TO:\nAngela Lee\n100 Harbour St Unit 1911\nToronto ON\nPACKAGE"
		})

		It("should find the supplier", func() {
			Expect(raw.Fields[FieldSupplier].Text).To(Equal("FedEx"))
		})

		It("should find the name after the marker", func() {
			Expect(raw.Fields[FieldResidentName].Text).To(Equal("Angela Lee"))
		})

		It("should find the unit", func() {
			Expect(raw.Fields[FieldUnit].Text).To(Equal("1911"))
		})

		It("should find the parcel type", func() {
			Expect(raw.Fields[FieldParcelType].Text).To(Equal("package"))
		})
	})

	When("the name is on the marker line", func() {
		BeforeEach(func() {
			text = "Canada Post\nTo: J. Smith\nApt 4b"
		})

		It("should read the name and unit", func() {
			Expect(raw.Fields[FieldSupplier].Text).To(Equal("Canada Post"))
			Expect(raw.Fields[FieldResidentName].Text).To(Equal("J. Smith"))
			Expect(raw.Fields[FieldUnit].Text).To(Equal("4B"))
		})
	})

	When("a supplier name only appears inside another word", func() {
		BeforeEach(func() {
			text = "Support Groups Newsletter\nunited way"
		})

		It("should not match the supplier", func() {
			Expect(raw.Fields).NotTo(HaveKey(FieldSupplier))
		})

		It("should classify the newsletter as no known type", func() {
			Expect(raw.Fields).NotTo(HaveKey(FieldParcelType))
		})
	})

	When("the text has nothing recognisable", func() {
		BeforeEach(func() {
			text = "12345"
		})

		It("should report every field missing", func() {
			Expect(raw.Missing()).To(Equal(Fields))
		})
	})
})
