package scanning

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("prepareImageData", func() {
	var (
		input       []byte
		contentType string
		maxDim      int
		output      []byte
		converted   bool
		err         error
	)

	BeforeEach(func() {
		maxDim = 64
	})

	JustBeforeEach(func() {
		output, converted, err = prepareImageData(input, contentType, maxDim)
	})

	When("the image is a small PNG", func() {
		BeforeEach(func() {
			input = testPNG(32, 16)
			contentType = "image/png"
		})

		It("should return the data as-is", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(output).To(Equal(input))
		})
	})

	When("the image is a large PNG", func() {
		BeforeEach(func() {
			input = testPNG(256, 128)
			contentType = "image/png"
		})

		It("should downscale to the longest edge", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
			cfg, format, decErr := image.DecodeConfig(bytes.NewReader(output))
			Expect(decErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
			Expect(cfg.Width).To(Equal(64))
			Expect(cfg.Height).To(Equal(32))
		})
	})

	When("the image is a JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 20)), nil)).To(Succeed())
			input = buf.Bytes()
			contentType = " IMAGE/JPEG "
		})

		It("should convert to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
			_, format, decErr := image.DecodeConfig(bytes.NewReader(output))
			Expect(decErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			input = []byte("definitely not an image")
			contentType = "image/jpeg"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})

		It("should mark the data as unreadable", func() {
			Expect(err).To(MatchError(ErrUnreadableImage))
		})
	})

	When("the image is a WebP", func() {
		BeforeEach(func() {
			var readErr error
			input, readErr = os.ReadFile(filepath.Join("testdata", "label.webp"))
			Expect(readErr).NotTo(HaveOccurred())
			contentType = "image/webp"
			maxDim = 0
		})

		It("should convert to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
			_, format, decErr := image.DecodeConfig(bytes.NewReader(output))
			Expect(decErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect the heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("should reject short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})
