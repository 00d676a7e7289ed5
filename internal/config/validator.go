package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Swind/go-forkjoin/core"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // config key, e.g. "sum.block_size"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogFormats returns the accepted logging.format values.
func ValidLogFormats() []string {
	return []string{"json", "console"}
}

// Validate checks c and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Threads < core.KAll {
		errors = append(errors, ValidationError{
			Field:   "threads",
			Value:   c.Threads,
			Message: "must be -1 (all) or non-negative",
		})
	}

	if _, err := core.ParseLogLevel(c.Logging.Level); err != nil {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of: debug, info, warn, error",
		})
	}
	if !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	if c.Metrics.PollInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "metrics.poll_interval",
			Value:   c.Metrics.PollInterval,
			Message: "must be positive",
		})
	}

	errors = append(errors, nonNegative("sum.n", c.Sum.N)...)
	errors = append(errors, positive("sum.block_size", c.Sum.BlockSize)...)
	errors = append(errors, nonNegative("grid.width", c.Grid.Width)...)
	errors = append(errors, nonNegative("grid.height", c.Grid.Height)...)
	errors = append(errors, nonNegative("nested.depth", c.Nested.Depth)...)
	errors = append(errors, positive("nested.fanout", c.Nested.Fanout)...)
	errors = append(errors, positive("history.capacity", c.History.Capacity)...)

	return errors
}

func positive(field string, v int) []ValidationError {
	if v > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
}

func nonNegative(field string, v int) []ValidationError {
	if v >= 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be non-negative"}}
}
