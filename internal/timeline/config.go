package timeline

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the timing and paging knobs of the store.
type Config struct {
	// RevealCap is how many replies of the initial round are visible at once.
	RevealCap int `yaml:"reveal_cap" mapstructure:"reveal_cap"`

	// RevealMin and RevealMax bound the delay between two reveals.
	RevealMin time.Duration `yaml:"reveal_min" mapstructure:"reveal_min"`
	RevealMax time.Duration `yaml:"reveal_max" mapstructure:"reveal_max"`

	// QuoteDelayMin and QuoteDelayMax bound the wait before a quote-repost
	// attempt.
	QuoteDelayMin time.Duration `yaml:"quote_delay_min" mapstructure:"quote_delay_min"`
	QuoteDelayMax time.Duration `yaml:"quote_delay_max" mapstructure:"quote_delay_max"`

	// QuoteOffset is added to the creation instant of a quote-repost.
	QuoteOffset time.Duration `yaml:"quote_offset" mapstructure:"quote_offset"`

	PageSize      int `yaml:"page_size" mapstructure:"page_size"`
	PageIncrement int `yaml:"page_increment" mapstructure:"page_increment"`

	// RecentContextPosts is how many of the user's latest posts are sent
	// along as tone context.
	RecentContextPosts int `yaml:"recent_context_posts" mapstructure:"recent_context_posts"`
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		RevealCap:          2,
		RevealMin:          2 * time.Second,
		RevealMax:          5 * time.Second,
		QuoteDelayMin:      7 * time.Second,
		QuoteDelayMax:      15 * time.Second,
		QuoteOffset:        100 * time.Millisecond,
		PageSize:           5,
		PageIncrement:      5,
		RecentContextPosts: 2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.RevealCap < 0 {
		errs = append(errs, errors.New("reveal_cap must be >= 0"))
	}
	if c.RevealMin < 0 || c.RevealMax < c.RevealMin {
		errs = append(errs, fmt.Errorf("reveal window %s..%s is invalid", c.RevealMin, c.RevealMax))
	}
	if c.QuoteDelayMin < 0 || c.QuoteDelayMax < c.QuoteDelayMin {
		errs = append(errs, fmt.Errorf("quote delay window %s..%s is invalid", c.QuoteDelayMin, c.QuoteDelayMax))
	}
	if c.QuoteOffset < 0 {
		errs = append(errs, errors.New("quote_offset must be >= 0"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page_size must be positive"))
	}
	if c.PageIncrement <= 0 {
		errs = append(errs, errors.New("page_increment must be positive"))
	}
	if c.RecentContextPosts < 0 {
		errs = append(errs, errors.New("recent_context_posts must be >= 0"))
	}
	return errors.Join(errs...)
}
