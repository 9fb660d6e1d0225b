package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// Buffer names, in declaration order. Fault injection and diagnostics
// address buffers by these names.
const (
	ChannelF1ToF2 = "f1ToF2"
	ChannelF2ToF1 = "f2ToF1"
	ChannelF2ToD  = "f2ToD"
	ChannelDToE   = "dToE"
	ChannelEToF1  = "eToF1"
)

// ChannelNames lists every inter-stage buffer in declaration order.
var ChannelNames = []string{
	ChannelF1ToF2, ChannelF2ToF1, ChannelF2ToD, ChannelDToE, ChannelEToF1,
}

// FaultConfig schedules a one-shot bit flip in a named buffer.
type FaultConfig struct {
	// Channel is one of the ChannelNames.
	Channel string `json:"channel"`
	// Cycle is the evaluation cycle the flip fires on.
	Cycle uint64 `json:"cycle"`
	// Slot selects the buffer slot, 0 being the output end.
	Slot int `json:"slot"`
	// Bit is the bit position to flip within the payload.
	Bit int `json:"bit"`
}

// Config holds the pipeline timing parameters.
type Config struct {
	// Inter-stage buffer delays, in cycles. Each must be at least 1;
	// a zero-delay buffer would make stage evaluation order-dependent.
	Fetch1ToFetch2Delay  int `json:"fetch1_to_fetch2_delay"`
	Fetch2ToFetch1Delay  int `json:"fetch2_to_fetch1_delay"`
	Fetch2ToDecodeDelay  int `json:"fetch2_to_decode_delay"`
	DecodeToExecuteDelay int `json:"decode_to_execute_delay"`
	ExecuteBranchDelay   int `json:"execute_branch_delay"`

	// EnableIdling lets the pipeline stop ticking when no stage has
	// work and no buffer carries data.
	EnableIdling bool `json:"enable_idling"`

	// NumThreads is the number of hardware threads fetch1 arbitrates
	// between.
	NumThreads int `json:"num_threads"`

	// LineWords is the fetch line width in 32-bit words.
	LineWords int `json:"line_words"`

	// DecodeWidth bounds instructions per group leaving fetch2 and
	// decode. IssueWidth bounds instructions executed per cycle.
	DecodeWidth int `json:"decode_width"`
	IssueWidth  int `json:"issue_width"`

	// FaultInjection, when set, arms a single bit flip.
	FaultInjection *FaultConfig `json:"fault_injection,omitempty"`
}

// DefaultConfig returns single-cycle buffer delays and a narrow
// dual-issue front end.
func DefaultConfig() Config {
	return Config{
		Fetch1ToFetch2Delay:  1,
		Fetch2ToFetch1Delay:  1,
		Fetch2ToDecodeDelay:  1,
		DecodeToExecuteDelay: 1,
		ExecuteBranchDelay:   1,
		EnableIdling:         false,
		NumThreads:           1,
		LineWords:            4,
		DecodeWidth:          2,
		IssueWidth:           2,
	}
}

// LoadConfig reads a JSON config file, overlaying it on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("reading config file: %w", err)
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	delays := []struct {
		name  string
		value int
	}{
		{ChannelF1ToF2, c.Fetch1ToFetch2Delay},
		{ChannelF2ToF1, c.Fetch2ToFetch1Delay},
		{ChannelF2ToD, c.Fetch2ToDecodeDelay},
		{ChannelDToE, c.DecodeToExecuteDelay},
		{ChannelEToF1, c.ExecuteBranchDelay},
	}
	for _, d := range delays {
		if d.value < 1 {
			return fmt.Errorf("buffer %s: delay must be at least 1 cycle, got %d",
				d.name, d.value)
		}
	}

	if c.NumThreads < 1 {
		return fmt.Errorf("num_threads must be at least 1, got %d", c.NumThreads)
	}
	if c.LineWords < 1 {
		return fmt.Errorf("line_words must be at least 1, got %d", c.LineWords)
	}
	if c.DecodeWidth < 1 {
		return fmt.Errorf("decode_width must be at least 1, got %d", c.DecodeWidth)
	}
	if c.IssueWidth < 1 {
		return fmt.Errorf("issue_width must be at least 1, got %d", c.IssueWidth)
	}

	if f := c.FaultInjection; f != nil {
		valid := false
		for _, name := range ChannelNames {
			if f.Channel == name {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("fault_injection: unknown channel %q", f.Channel)
		}
		if f.Bit < 0 {
			return fmt.Errorf("fault_injection: bit must be non-negative, got %d", f.Bit)
		}
		if f.Slot < 0 {
			return fmt.Errorf("fault_injection: slot must be non-negative, got %d", f.Slot)
		}
	}

	return nil
}
