package parcel_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/parcel-desk/internal/parcel"
	"github.com/zombor/parcel-desk/internal/scanning"
)

var _ = Describe("CleanText", func() {
	DescribeTable("cleans OCR readings",
		func(input, expected string) {
			Expect(parcel.CleanText(input)).To(Equal(expected))
		},
		Entry("trims whitespace", "  FedEx  ", "FedEx"),
		Entry("collapses inner whitespace", "J.\t Smith", "J. Smith"),
		Entry("preserves casing", "McDONALD", "McDONALD"),
		Entry("drops border artifacts", "|| Angela Lee ||", "Angela Lee"),
		Entry("collapses repeated punctuation", "J.. Smith--Jones", "J. Smith-Jones"),
		Entry("trims stray punctuation", ",;Amazon!!", "Amazon"),
		Entry("keeps an abbreviation dot", "Acme Inc.", "Acme Inc."),
		Entry("removes zero-width characters", "Sm\u200bith", "Smith"),
		Entry("folds fullwidth characters", "\uff35\uff30\uff33", "UPS"),
		Entry("turns artifacts into nothing", "***", ""),
	)

	DescribeTable("is convergent",
		func(input string) {
			once := parcel.CleanText(input)
			Expect(parcel.CleanText(once)).To(Equal(once))
		},
		Entry("plain", "FedEx"),
		Entry("noisy", " ~~J.. Smith,, |"),
		Entry("trailing dots", "Inc. ."),
		Entry("mixed scripts", "\uff33\uff4d\uff49\uff54\uff48\u200d 4B\u2014"),
		Entry("artifacts between punctuation", "a-|-b"),
		Entry("only punctuation", "...,,,"),
	)
})

var _ = Describe("Normalizer", func() {
	var normalizer *parcel.Normalizer

	BeforeEach(func() {
		normalizer = parcel.NewNormalizer(parcel.DefaultVocabulary())
	})

	Describe("ParcelType", func() {
		DescribeTable("matches case-insensitively",
			func(input, expected string) {
				Expect(normalizer.ParcelType(parcel.CleanText(input))).To(Equal(expected))
			},
			Entry("title case", "Package", "package"),
			Entry("upper case with space", "PACKAGE ", "package"),
			Entry("lower case", "package", "package"),
			Entry("keyword inside a phrase", "small brown parcel", "package"),
			Entry("letter", "Envelope", "letter"),
			Entry("food delivery", "Food Delivery", "food delivery"),
			Entry("unmatched box", "box", "other"),
			Entry("unmatched gift basket", "gift basket", "other"),
			Entry("the fallback itself", "other", "other"),
		)

		It("should be idempotent", func() {
			for _, rule := range parcel.DefaultVocabulary().ParcelTypes {
				Expect(normalizer.ParcelType(rule.Name)).To(Equal(rule.Name))
			}
		})
	})

	Describe("Supplier", func() {
		DescribeTable("canonicalizes known couriers on word boundaries",
			func(input, expected string) {
				Expect(normalizer.Supplier(parcel.CleanText(input))).To(Equal(expected))
			},
			Entry("exact", "FedEx", "FedEx"),
			Entry("different case", "FEDEX GROUND", "FedEx"),
			Entry("alias", "Federal Express", "FedEx"),
			Entry("multi-word", "canada post", "Canada Post"),
			Entry("not inside other words", "Groups Unlimited", "Groups Unlimited"),
			Entry("unknown supplier kept", "Bob's Flowers", "Bob's Flowers"),
		)
	})

	Describe("Clean unit", func() {
		DescribeTable("strips unit prefixes",
			func(input, expected string) {
				Expect(normalizer.Clean(scanning.FieldUnit, input)).To(Equal(expected))
			},
			Entry("bare", "4B", "4B"),
			Entry("unit word", "Unit 4B", "4B"),
			Entry("apt with dot", "Apt. 1911", "1911"),
			Entry("hash", "#310", "310"),
			Entry("suite and hash", "Suite #12", "12"),
			Entry("repeated prefix", "Unit Unit 7", "7"),
			Entry("prefix only", "Unit", ""),
			Entry("name starting with ste", "Stevens", "Stevens"),
		)

		It("should be idempotent", func() {
			for _, in := range []string{"Unit #4B", "Apt. 1911", " # 7 ", "Suite"} {
				once := normalizer.Clean(scanning.FieldUnit, in)
				Expect(normalizer.Clean(scanning.FieldUnit, once)).To(Equal(once))
			}
		})
	})

	Describe("Normalize", func() {
		var (
			raw   *scanning.RawExtraction
			entry *parcel.Entry
			err   error
		)

		BeforeEach(func() {
			raw = rawOf(map[scanning.Field]string{
				scanning.FieldSupplier:     " fedex ",
				scanning.FieldResidentName: "J. Smith",
				scanning.FieldUnit:         "Unit 4B",
				scanning.FieldParcelType:   "PACKAGE",
			})
		})

		JustBeforeEach(func() {
			entry, err = normalizer.Normalize(raw)
		})

		When("every field is valid", func() {
			It("should populate every field", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(entry.Supplier).To(Equal("FedEx"))
				Expect(entry.ResidentName).To(Equal("J. Smith"))
				Expect(entry.Unit).To(Equal("4B"))
				Expect(entry.ParcelType).To(Equal("package"))
				Expect(entry.ParcelTypeRaw).To(Equal("PACKAGE"))
			})

			It("should be stable when normalized again", func() {
				again, againErr := normalizer.Normalize(rawOf(map[scanning.Field]string{
					scanning.FieldSupplier:     entry.Supplier,
					scanning.FieldResidentName: entry.ResidentName,
					scanning.FieldUnit:         entry.Unit,
					scanning.FieldParcelType:   entry.ParcelType,
				}))
				Expect(againErr).NotTo(HaveOccurred())
				Expect(again.Supplier).To(Equal(entry.Supplier))
				Expect(again.ResidentName).To(Equal(entry.ResidentName))
				Expect(again.Unit).To(Equal(entry.Unit))
				Expect(again.ParcelType).To(Equal(entry.ParcelType))
			})
		})

		When("fields hold placeholders", func() {
			BeforeEach(func() {
				raw.Set(scanning.FieldResidentName, "UNKNOWN", nil)
				raw.Set(scanning.FieldParcelType, " N/A ", nil)
			})

			It("names exactly those fields", func() {
				Expect(err).To(MatchError(parcel.ErrExtractionIncomplete))
				Expect(parcel.MissingFields(err)).To(Equal([]scanning.Field{
					scanning.FieldResidentName,
					scanning.FieldParcelType,
				}))
			})
		})

		When("a real value reads like an abbreviation", func() {
			BeforeEach(func() {
				raw.Set(scanning.FieldResidentName, "Na", nil)
				raw.Set(scanning.FieldUnit, "NA", nil)
			})

			It("keeps the value", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(entry.ResidentName).To(Equal("Na"))
				Expect(entry.Unit).To(Equal("NA"))
			})
		})

		When("fields are absent or only noise", func() {
			BeforeEach(func() {
				delete(raw.Fields, scanning.FieldUnit)
				raw.Set(scanning.FieldSupplier, "|||", nil)
			})

			It("names exactly those fields in canonical order", func() {
				Expect(parcel.MissingFields(err)).To(Equal([]scanning.Field{
					scanning.FieldSupplier,
					scanning.FieldUnit,
				}))
			})
		})

		When("a minimum confidence is configured", func() {
			BeforeEach(func() {
				vocab := parcel.DefaultVocabulary()
				vocab.MinConfidence = 0.5
				normalizer = parcel.NewNormalizer(vocab)
				low, high := 0.2, 0.9
				raw.Set(scanning.FieldUnit, "4B", &low)
				raw.Set(scanning.FieldSupplier, "FedEx", &high)
			})

			It("treats low-confidence guesses as missing", func() {
				Expect(parcel.MissingFields(err)).To(Equal([]scanning.Field{scanning.FieldUnit}))
			})
		})

		When("no minimum confidence is configured", func() {
			BeforeEach(func() {
				low := 0.01
				raw.Set(scanning.FieldUnit, "4B", &low)
			})

			It("accepts the guess", func() {
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})
})
