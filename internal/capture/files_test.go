package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/parcel-desk/internal/parcel"
	"github.com/zombor/parcel-desk/internal/scanning"
)

var _ = Describe("FileDevice", func() {
	It("should read the file and infer the type from its extension", func() {
		path := filepath.Join(GinkgoT().TempDir(), "label.JPG")
		Expect(os.WriteFile(path, []byte("jpeg data"), 0644)).To(Succeed())

		frame, err := NewFileDevice(path).Frame(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(string(frame.Data)).To(Equal("jpeg data"))
		Expect(frame.ContentType).To(Equal("image/jpeg"))
		Expect(path).To(BeAnExistingFile())
	})

	It("returns the error for a missing file", func() {
		_, err := NewFileDevice("/nonexistent/label.png").Frame(context.Background())
		Expect(err).To(MatchError(ContainSubstring("reading file")))
	})
})

var _ = Describe("InboxDevice", func() {
	var (
		tmpDir string
		inbox  *InboxDevice
	)

	put := func(name, content string, age time.Duration) {
		path := filepath.Join(tmpDir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		stamp := time.Now().Add(-age)
		Expect(os.Chtimes(path, stamp, stamp)).To(Succeed())
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		inbox, err = NewInboxDevice(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	When("the inbox is empty", func() {
		It("returns ErrInboxEmpty", func() {
			_, err := inbox.Frame(context.Background())
			Expect(err).To(MatchError(ErrInboxEmpty))
		})
	})

	When("images are waiting", func() {
		BeforeEach(func() {
			put("newer.png", "second", time.Minute)
			put("older.heic", "first", time.Hour)
			put("notes.txt", "ignored", 2*time.Hour)
			put(".hidden.jpg", "ignored", 3*time.Hour)
		})

		It("should list only images, oldest first", func() {
			names, err := inbox.Pending()
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"older.heic", "newer.png"}))
		})

		It("should take the oldest image and keep it until released", func() {
			frame, err := inbox.Frame(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(frame.Data)).To(Equal("first"))
			Expect(frame.ContentType).To(Equal("image/heic"))
			Expect(frame.Source).To(Equal(filepath.Join(tmpDir, "older.heic")))
			Expect(frame.Source).To(BeAnExistingFile())

			Expect(inbox.Release(frame.Source, nil)).To(Succeed())
			Expect(frame.Source).NotTo(BeAnExistingFile())

			frame, err = inbox.Frame(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(frame.Data)).To(Equal("second"))
			Expect(inbox.Release(frame.Source, nil)).To(Succeed())

			_, err = inbox.Frame(context.Background())
			Expect(err).To(MatchError(ErrInboxEmpty))
		})
	})

	Describe("Release", func() {
		var path string

		BeforeEach(func() {
			put("label.jpg", "photo", time.Minute)
			path = filepath.Join(tmpDir, "label.jpg")
		})

		DescribeTable("keeps the photo only when a later run can succeed with it",
			func(runErr error, kept bool) {
				Expect(inbox.Release(path, runErr)).To(Succeed())
				if kept {
					Expect(path).To(BeAnExistingFile())
				} else {
					Expect(path).NotTo(BeAnExistingFile())
				}
			},
			Entry("logged", nil, false),
			Entry("ledger unavailable", parcel.NewLedgerUnavailable(errors.New("503")), true),
			Entry("ledger rejected", parcel.NewLedgerRejected(errors.New("400")), true),
			Entry("extraction service", parcel.NewExtractionServiceError(errors.New("timeout")), true),
			Entry("extraction incomplete", parcel.NewExtractionIncomplete([]scanning.Field{scanning.FieldUnit}), false),
			Entry("unreadable image", parcel.NewCaptureError(errors.New("unknown format")), false),
		)

		It("should ignore a photo that is already gone", func() {
			Expect(os.Remove(path)).To(Succeed())
			Expect(inbox.Release(path, nil)).To(Succeed())
		})

		It("should refuse paths outside the inbox", func() {
			outside := filepath.Join(GinkgoT().TempDir(), "label.jpg")
			Expect(os.WriteFile(outside, []byte("photo"), 0644)).To(Succeed())
			Expect(inbox.Release(outside, nil)).To(MatchError(ContainSubstring("not in inbox")))
			Expect(outside).To(BeAnExistingFile())
		})
	})

	Describe("NewInboxDevice", func() {
		It("should create the directory", func() {
			path := filepath.Join(GinkgoT().TempDir(), "inbox")
			_, err := NewInboxDevice(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeADirectory())
		})
	})
})
