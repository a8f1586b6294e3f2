package retry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jzx17/goretry/internal/testutils"
)

const sampleConfig = `
maxRetries: 5
maxElapsed: 2m
backoff:
  type: linear
  initial: 100ms
  max: 1s
  increment: 250ms
  jitter: none
rateLimit:
  rps: 50
  burst: 10
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.GetMaxRetries())
	assert.Equal(t, 2*time.Minute, cfg.GetMaxElapsed())

	require.NotNil(t, cfg.Backoff)
	assert.Equal(t, BackoffLinear, cfg.Backoff.GetType())
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff.GetInitial())
	assert.Equal(t, time.Second, cfg.Backoff.GetMax())
	assert.Equal(t, 250*time.Millisecond, cfg.Backoff.GetIncrement())
	assert.Nil(t, cfg.Backoff.GetJitter())

	require.NotNil(t, cfg.RateLimit)
	assert.Equal(t, 50.0, cfg.RateLimit.RPS)
	assert.Equal(t, 10, cfg.RateLimit.GetBurst())

	b := cfg.Backoff.Build()
	assert.Equal(t, 100*time.Millisecond, b.NextDelay(1))
	assert.Equal(t, 350*time.Millisecond, b.NextDelay(2))
	assert.Equal(t, time.Second, b.NextDelay(10))
}

func TestConfigDefaults(t *testing.T) {
	var cfg *Config
	assert.Equal(t, DefaultMaxRetries, cfg.GetMaxRetries())
	assert.Equal(t, time.Duration(0), cfg.GetMaxElapsed())

	var b *BackoffConfig
	assert.Equal(t, BackoffExponential, b.GetType())
	assert.Equal(t, DefaultInitialBackoff, b.GetInitial())
	assert.Equal(t, DefaultMaxBackoff, b.GetMax())
	assert.Equal(t, DefaultBackoffMultiplier, b.GetMultiplier())
	assert.Equal(t, DefaultInitialBackoff, b.GetIncrement())

	var r *RateLimitConfig
	assert.Equal(t, DefaultRateLimitBurst, r.GetBurst())

	exp := (&BackoffConfig{}).Build()
	assert.Equal(t, 100*time.Millisecond, exp.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, exp.NextDelay(2))
}

func TestConfigBackoffTypes(t *testing.T) {
	tests := []struct {
		name string
		cfg  BackoffConfig
		want []time.Duration
	}{
		{
			name: "fixed",
			cfg:  BackoffConfig{Type: BackoffFixed, Initial: Duration(time.Second)},
			want: []time.Duration{time.Second, time.Second, time.Second},
		},
		{
			name: "exponential",
			cfg:  BackoffConfig{Type: BackoffExponential, Initial: Duration(time.Second), Multiplier: 3},
			want: []time.Duration{time.Second, 3 * time.Second, 9 * time.Second},
		},
		{
			name: "fibonacci",
			cfg:  BackoffConfig{Type: BackoffFibonacci, Initial: Duration(time.Second)},
			want: []time.Duration{time.Second, time.Second, 2 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.cfg.Build()
			for i, want := range tt.want {
				assert.Equal(t, want, b.NextDelay(i+1), "retry %d", i+1)
			}
		})
	}
}

func TestConfigJitter(t *testing.T) {
	for _, jitter := range []string{JitterFull, JitterEqual} {
		cfg := &BackoffConfig{Type: BackoffFixed, Initial: Duration(time.Second), Jitter: jitter}
		require.NotNil(t, cfg.GetJitter(), jitter)

		b := cfg.Build()
		for i := 0; i < 20; i++ {
			d := b.NextDelay(1)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, time.Second)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown backoff", yaml: "backoff:\n  type: random\n"},
		{name: "unknown jitter", yaml: "backoff:\n  jitter: lots\n"},
		{name: "negative multiplier", yaml: "backoff:\n  multiplier: -1\n"},
		{name: "negative elapsed", yaml: "maxElapsed: -1s\n"},
		{name: "zero rps", yaml: "rateLimit:\n  rps: 0\n"},
		{name: "negative burst", yaml: "rateLimit:\n  rps: 1\n  burst: -1\n"},
		{name: "bad duration", yaml: "maxElapsed: soon\n"},
		{name: "not yaml", yaml: "maxRetries: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxRetries)

	_, err = LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDurationYAML(t *testing.T) {
	out, err := yaml.Marshal(Config{MaxElapsed: Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.Contains(t, string(out), "maxElapsed: 1m30s")

	var cfg Config
	require.NoError(t, yaml.Unmarshal(out, &cfg))
	assert.Equal(t, 90*time.Second, cfg.MaxElapsed.Duration())
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := &Config{
		MaxRetries: 2,
		Backoff:    &BackoffConfig{Type: BackoffFixed, Initial: Duration(time.Millisecond)},
		RateLimit:  &RateLimitConfig{RPS: 1000, Burst: 10},
	}

	policy, err := PolicyFromConfig(cfg, Always[error]())
	require.NoError(t, err)

	script := testutils.Errors[int](errTimeout)
	_, err = InvokeOnError(testutils.Context(t), NewEngine(), script.Op, policy)

	assert.Same(t, errTimeout, err)
	assert.Equal(t, 3, script.Calls())
}

func TestPolicyFromConfig_Defaults(t *testing.T) {
	policy, err := PolicyFromConfig(nil, While(lessThan(100)))
	require.NoError(t, err)

	script := testutils.Values(1, 2, 3, 4, 5, 6)
	result, err := Invoke(testutils.Context(t), NewEngine(), script.Op, policy)

	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries+1, script.Calls())
	assert.Equal(t, DefaultMaxRetries+1, result)
}

func TestPolicyFromConfig_Errors(t *testing.T) {
	_, err := PolicyFromConfig[int](&Config{}, nil)
	assert.Error(t, err)

	_, err = PolicyFromConfig(&Config{Backoff: &BackoffConfig{Type: "random"}}, Always[int]())
	assert.Error(t, err)
}
