package capture

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CommandDevice", func() {
	var (
		cfg    CommandConfig
		device *CommandDevice
		frame  *Frame
		err    error
	)

	BeforeEach(func() {
		cfg = CommandConfig{Command: "echo label"}
	})

	JustBeforeEach(func() {
		var newErr error
		device, newErr = NewCommandDevice(cfg)
		Expect(newErr).NotTo(HaveOccurred())
		frame, err = device.Frame(context.Background())
	})

	When("the command writes an image", func() {
		It("should return stdout", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(frame.Data)).To(Equal("label\n"))
			Expect(frame.Source).To(Equal("echo"))
		})
	})

	When("the command fails", func() {
		BeforeEach(func() {
			cfg.Command = "false"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("running false")))
		})
	})

	When("the command writes nothing", func() {
		BeforeEach(func() {
			cfg.Command = "true"
		})

		It("returns ErrEmptyFrame", func() {
			Expect(err).To(MatchError(ErrEmptyFrame))
		})
	})

	When("a lock path is configured", func() {
		var lockPath string

		BeforeEach(func() {
			lockPath = filepath.Join(GinkgoT().TempDir(), "camera.lock")
			cfg.LockPath = lockPath
		})

		It("should release the lock after capturing", func() {
			Expect(err).NotTo(HaveOccurred())

			other := flock.New(lockPath)
			ok, lockErr := other.TryLock()
			Expect(lockErr).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(other.Unlock()).To(Succeed())
		})
	})

	When("another process holds the lock", func() {
		var held *flock.Flock

		BeforeEach(func() {
			lockPath := filepath.Join(GinkgoT().TempDir(), "camera.lock")
			cfg.LockPath = lockPath
			cfg.LockTimeout = 250 * time.Millisecond

			held = flock.New(lockPath)
			ok, lockErr := held.TryLock()
			Expect(lockErr).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			DeferCleanup(held.Unlock)
		})

		It("returns ErrDeviceBusy", func() {
			Expect(err).To(MatchError(ErrDeviceBusy))
			Expect(frame).To(BeNil())
		})
	})
})

var _ = Describe("NewCommandDevice", func() {
	It("rejects an empty command", func() {
		_, err := NewCommandDevice(CommandConfig{Command: "   "})
		Expect(err).To(MatchError("capture command is required"))
	})
})
