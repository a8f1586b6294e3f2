package retry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Default values for policy configuration
const (
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultRateLimitBurst    = 1
)

// Backoff types accepted in BackoffConfig.Type
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
	BackoffFibonacci   = "fibonacci"
)

// Jitter types accepted in BackoffConfig.Jitter
const (
	JitterNone  = "none"
	JitterFull  = "full"
	JitterEqual = "equal"
)

// Duration is a time.Duration written as a Go duration string ("250ms", "1m") in YAML
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the value as a time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config describes a retry policy declaratively
type Config struct {
	// MaxRetries is the maximum number of retries per session.
	// Default is 3; a negative value disables the limit.
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// MaxElapsed stops retrying once a session has run this long.
	// Zero means no limit.
	MaxElapsed Duration `yaml:"maxElapsed,omitempty"`

	// Backoff configures the wait between retries. Nil means no wait.
	Backoff *BackoffConfig `yaml:"backoff,omitempty"`

	// RateLimit bounds the retry rate across sessions. Nil means unlimited.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// BackoffConfig configures a backoff strategy
type BackoffConfig struct {
	// Type is one of fixed, exponential, linear or fibonacci.
	// Default is exponential.
	Type string `yaml:"type,omitempty"`

	// Initial is the first delay. Default is 100ms.
	Initial Duration `yaml:"initial,omitempty"`

	// Max caps every delay. Default is 30s.
	Max Duration `yaml:"max,omitempty"`

	// Multiplier is the growth factor of exponential backoff. Default is 2.
	Multiplier float64 `yaml:"multiplier,omitempty"`

	// Increment is the step of linear backoff. Default is Initial.
	Increment Duration `yaml:"increment,omitempty"`

	// Jitter is one of none, full or equal. Default is none.
	Jitter string `yaml:"jitter,omitempty"`
}

// RateLimitConfig configures a token bucket shared by all sessions of a policy
type RateLimitConfig struct {
	// RPS is the sustained number of retries per second
	RPS float64 `yaml:"rps"`

	// Burst is the bucket size. Default is 1.
	Burst int `yaml:"burst,omitempty"`
}

// ParseConfig parses a YAML policy configuration
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse retry config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads and parses a YAML policy configuration file
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path is empty")
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read retry config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.MaxElapsed < 0 {
		return fmt.Errorf("maxElapsed must not be negative, got %s", c.MaxElapsed.Duration())
	}
	if b := c.Backoff; b != nil {
		switch b.Type {
		case "", BackoffFixed, BackoffExponential, BackoffLinear, BackoffFibonacci:
		default:
			return fmt.Errorf("unknown backoff type %q", b.Type)
		}
		switch b.Jitter {
		case "", JitterNone, JitterFull, JitterEqual:
		default:
			return fmt.Errorf("unknown jitter type %q", b.Jitter)
		}
		if b.Initial < 0 || b.Max < 0 || b.Increment < 0 {
			return errors.New("backoff durations must not be negative")
		}
		if b.Multiplier < 0 {
			return fmt.Errorf("backoff multiplier must not be negative, got %v", b.Multiplier)
		}
	}
	if r := c.RateLimit; r != nil {
		if r.RPS <= 0 {
			return fmt.Errorf("rateLimit rps must be positive, got %v", r.RPS)
		}
		if r.Burst < 0 {
			return fmt.Errorf("rateLimit burst must not be negative, got %d", r.Burst)
		}
	}
	return nil
}

// GetMaxRetries returns the effective max retries
func (c *Config) GetMaxRetries() int {
	if c == nil || c.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// GetMaxElapsed returns the effective session time limit
func (c *Config) GetMaxElapsed() time.Duration {
	if c == nil {
		return 0
	}
	return c.MaxElapsed.Duration()
}

// GetType returns the effective backoff type
func (c *BackoffConfig) GetType() string {
	if c == nil || c.Type == "" {
		return BackoffExponential
	}
	return c.Type
}

// GetInitial returns the effective initial delay
func (c *BackoffConfig) GetInitial() time.Duration {
	if c == nil || c.Initial <= 0 {
		return DefaultInitialBackoff
	}
	return c.Initial.Duration()
}

// GetMax returns the effective maximum delay
func (c *BackoffConfig) GetMax() time.Duration {
	if c == nil || c.Max <= 0 {
		return DefaultMaxBackoff
	}
	return c.Max.Duration()
}

// GetMultiplier returns the effective exponential multiplier
func (c *BackoffConfig) GetMultiplier() float64 {
	if c == nil || c.Multiplier <= 0 {
		return DefaultBackoffMultiplier
	}
	return c.Multiplier
}

// GetIncrement returns the effective linear increment
func (c *BackoffConfig) GetIncrement() time.Duration {
	if c == nil || c.Increment <= 0 {
		return c.GetInitial()
	}
	return c.Increment.Duration()
}

// GetJitter returns the jitter function, nil when jitter is disabled
func (c *BackoffConfig) GetJitter() JitterFunc {
	if c == nil {
		return nil
	}
	switch c.Jitter {
	case JitterFull:
		return FullJitter
	case JitterEqual:
		return EqualJitter
	default:
		return nil
	}
}

// Build creates the configured backoff strategy
func (c *BackoffConfig) Build() Backoff {
	opts := []BackoffStrategyOption{WithBackoffMaxDelay(c.GetMax())}
	if jitter := c.GetJitter(); jitter != nil {
		opts = append(opts, WithBackoffJitter(jitter))
	}

	switch c.GetType() {
	case BackoffFixed:
		return NewFixedBackoff(c.GetInitial(), opts...)
	case BackoffLinear:
		return NewLinearBackoff(c.GetInitial(), c.GetIncrement(), opts...)
	case BackoffFibonacci:
		return NewFibonacciBackoff(c.GetInitial(), opts...)
	default:
		opts = append(opts, WithBackoffMultiplier(c.GetMultiplier()))
		return NewExponentialBackoff(c.GetInitial(), opts...)
	}
}

// GetBurst returns the effective bucket size
func (c *RateLimitConfig) GetBurst() int {
	if c == nil || c.Burst <= 0 {
		return DefaultRateLimitBurst
	}
	return c.Burst
}

// Limiter creates the configured token bucket
func (c *RateLimitConfig) Limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(c.RPS), c.GetBurst())
}

// PolicyFromConfig bounds base with the limits of cfg.
//
// The retry limit is checked first, then the rate limit and the backoff wait
// are applied to every retry base triggers. MaxElapsed completes the policy
// once the session has run that long. A nil cfg applies the defaults.
func PolicyFromConfig[T any](cfg *Config, base Policy[T]) (Policy[T], error) {
	if base == nil {
		return nil, errors.New("base policy is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := base
	if cfg != nil && cfg.Backoff != nil {
		p = WithBackoff(p, cfg.Backoff.Build())
	}
	if cfg != nil && cfg.RateLimit != nil {
		p = RateLimited(p, cfg.RateLimit.Limiter())
	}
	p = MaxRetries(cfg.GetMaxRetries(), p)
	if d := cfg.GetMaxElapsed(); d > 0 {
		p = Within(d, p)
	}
	return p, nil
}
