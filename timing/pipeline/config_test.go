package pipeline_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/minorsim/timing/pipeline"
)

var _ = Describe("Config", func() {
	Describe("DefaultConfig", func() {
		It("should validate", func() {
			config := pipeline.DefaultConfig()
			Expect(config.Validate()).To(Succeed())
		})

		It("should use single-cycle buffer delays", func() {
			config := pipeline.DefaultConfig()
			Expect(config.Fetch1ToFetch2Delay).To(Equal(1))
			Expect(config.ExecuteBranchDelay).To(Equal(1))
		})
	})

	Describe("Validate", func() {
		It("should name the offending buffer for a bad delay", func() {
			config := pipeline.DefaultConfig()
			config.DecodeToExecuteDelay = 0
			err := config.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("dToE"))
		})

		It("should reject zero threads", func() {
			config := pipeline.DefaultConfig()
			config.NumThreads = 0
			Expect(config.Validate()).To(HaveOccurred())
		})

		It("should reject zero widths", func() {
			config := pipeline.DefaultConfig()
			config.DecodeWidth = 0
			Expect(config.Validate()).To(HaveOccurred())

			config = pipeline.DefaultConfig()
			config.IssueWidth = 0
			Expect(config.Validate()).To(HaveOccurred())
		})

		It("should reject an unknown fault channel", func() {
			config := pipeline.DefaultConfig()
			config.FaultInjection = &pipeline.FaultConfig{Channel: "nope"}
			err := config.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("nope"))
		})

		It("should accept every declared channel name", func() {
			for _, name := range pipeline.ChannelNames {
				config := pipeline.DefaultConfig()
				config.FaultInjection = &pipeline.FaultConfig{Channel: name}
				Expect(config.Validate()).To(Succeed())
			}
		})
	})

	Describe("LoadConfig", func() {
		It("should overlay file values on the defaults", func() {
			path := filepath.Join(GinkgoT().TempDir(), "config.json")
			content := `{"decode_to_execute_delay": 3, "enable_idling": true}`
			Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

			config, err := pipeline.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(config.DecodeToExecuteDelay).To(Equal(3))
			Expect(config.EnableIdling).To(BeTrue())
			// Untouched fields keep their defaults.
			Expect(config.Fetch1ToFetch2Delay).To(Equal(1))
			Expect(config.LineWords).To(Equal(4))
		})

		It("should fail on a missing file", func() {
			_, err := pipeline.LoadConfig("/does/not/exist.json")
			Expect(err).To(HaveOccurred())
		})

		It("should fail on malformed JSON", func() {
			path := filepath.Join(GinkgoT().TempDir(), "bad.json")
			Expect(os.WriteFile(path, []byte("{"), 0o644)).To(Succeed())

			_, err := pipeline.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})

		It("should fail on an invalid loaded value", func() {
			path := filepath.Join(GinkgoT().TempDir(), "invalid.json")
			content := `{"fetch2_to_fetch1_delay": 0}`
			Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

			_, err := pipeline.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
