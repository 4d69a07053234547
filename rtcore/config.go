package rtcore

import (
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/achilleasa/rtcore/prim"
)

// ByteSize is a byte count that can be written in human readable form
// ("512MiB", "2 GB") in configuration files and strings.
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := humanize.ParseBytes(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(v)
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Config holds the device settings.
type Config struct {
	// The acceleration structure used for triangle meshes.
	TriAccel string `toml:"tri_accel"`

	// The acceleration structure used for hair geometry.
	HairAccel string `toml:"hair_accel"`

	// Log verbosity; 0 keeps the current level.
	Verbose int `toml:"verbose"`

	// Require a minimum instruction set. Empty selects the native one.
	ISA string `toml:"isa"`

	// Reject allocations that would exceed this many live bytes. Zero
	// disables the limit.
	MemoryLimit ByteSize `toml:"memory_limit"`

	// The maximum number of primitives per leaf block.
	MaxLeafSize int `toml:"max_leaf_size"`

	// The maximum number of goroutines used by the builder. Zero places
	// no limit.
	BuildThreads int `toml:"build_threads"`

	// If set, memory metrics are registered here.
	Registerer prometheus.Registerer `toml:"-"`
}

// Get the default device configuration.
func DefaultConfig() Config {
	return Config{
		TriAccel:    prim.KindTriangle4.String(),
		HairAccel:   prim.KindBezier4.String(),
		MaxLeafSize: prim.N,
	}
}

// Parse an initialization string of comma separated key=value pairs such as
// "tri_accel=bvh4.triangle4,verbose=2,isa=sse4.2" on top of the defaults.
func ParseConfig(cfg string) (Config, error) {
	return DefaultConfig().Override(cfg)
}

// Apply the settings of an initialization string on top of c.
func (c Config) Override(cfg string) (Config, error) {
	for _, pair := range strings.Split(cfg, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, value, found := strings.Cut(pair, "=")
		if !found {
			return c, newError(InvalidArgument, "malformed config entry %q", pair)
		}
		if err := c.set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return c, err
		}
	}
	return c, c.validate()
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "tri_accel":
		c.TriAccel = value
	case "hair_accel":
		c.HairAccel = value
	case "isa":
		c.ISA = value
	case "verbose":
		c.Verbose, err = strconv.Atoi(value)
	case "max_leaf_size":
		c.MaxLeafSize, err = strconv.Atoi(value)
	case "build_threads", "threads":
		c.BuildThreads, err = strconv.Atoi(value)
	case "memory_limit":
		err = c.MemoryLimit.UnmarshalText([]byte(value))
	default:
		return newError(InvalidArgument, "unknown config key %q", key)
	}
	if err != nil {
		return newError(InvalidArgument, "invalid value %q for config key %q: %v", value, key, err)
	}
	return nil
}

// Load a TOML configuration file on top of the defaults. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return c, newError(InvalidArgument, "could not parse config file %q: %v", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return c, newError(InvalidArgument, "unknown config key %q in %q", undecoded[0].String(), path)
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	if kind, err := prim.ParseKind(c.TriAccel); err != nil || kind != prim.KindTriangle4 {
		return newError(InvalidArgument, "unsupported triangle acceleration structure %q", c.TriAccel)
	}
	if kind, err := prim.ParseKind(c.HairAccel); err != nil || kind != prim.KindBezier4 {
		return newError(InvalidArgument, "unsupported hair acceleration structure %q", c.HairAccel)
	}
	if c.Verbose < 0 {
		return newError(InvalidArgument, "verbose must be non-negative; got %d", c.Verbose)
	}
	if c.MaxLeafSize < 0 || c.MaxLeafSize > prim.N {
		return newError(InvalidArgument, "max_leaf_size must be in [0, %d]; got %d", prim.N, c.MaxLeafSize)
	}
	if c.BuildThreads < 0 {
		return newError(InvalidArgument, "build_threads must be non-negative; got %d", c.BuildThreads)
	}
	if c.MemoryLimit < 0 {
		return newError(InvalidArgument, "memory_limit must be non-negative")
	}
	return checkISA(c.ISA)
}

// Instruction sets that can be requested and the CPU features they need.
var isaFeatures = map[string][]cpuid.FeatureID{
	"sse2":   {cpuid.SSE2},
	"sse3":   {cpuid.SSE2, cpuid.SSE3},
	"ssse3":  {cpuid.SSE2, cpuid.SSE3, cpuid.SSSE3},
	"sse4.1": {cpuid.SSE2, cpuid.SSE3, cpuid.SSSE3, cpuid.SSE4},
	"sse4.2": {cpuid.SSE2, cpuid.SSE3, cpuid.SSSE3, cpuid.SSE4, cpuid.SSE42},
	"avx":    {cpuid.SSE42, cpuid.AVX},
	"avx2":   {cpuid.SSE42, cpuid.AVX, cpuid.AVX2},
	"avx512": {cpuid.AVX2, cpuid.AVX512F},
}

// Get the instruction set names accepted by the isa key.
func SupportedISAs() []string {
	names := make([]string, 0, len(isaFeatures))
	for _, name := range []string{"sse2", "sse3", "ssse3", "sse4.1", "sse4.2", "avx", "avx2", "avx512"} {
		if cpuid.CPU.Supports(isaFeatures[name]...) {
			names = append(names, name)
		}
	}
	return names
}

func checkISA(isa string) error {
	if isa == "" {
		return nil
	}
	features, known := isaFeatures[strings.ToLower(isa)]
	if !known {
		return newError(InvalidArgument, "unknown instruction set %q", isa)
	}
	if !cpuid.CPU.Supports(features...) {
		return newError(UnsupportedHardware, "CPU %q does not support instruction set %q", cpuid.CPU.BrandName, isa)
	}
	return nil
}
