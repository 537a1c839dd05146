package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

// Version is the peerprobe release, overridable at link time.
var Version = "0.1.0"

// ErrUsage is returned by Load when the caller asked for help or version
// output instead of a session.
var ErrUsage = errors.New("usage requested")

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Dialing
	DialTimeout time.Duration

	// Probing
	ProbeTimeout  time.Duration
	ProbeCount    int
	ProbeInterval time.Duration
	Session       time.Duration

	// Identity
	KeyType      string
	Seed         string
	IdentityFile string

	// Network
	Listen      string
	MetricsAddr string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args (the target multiaddress)
	Args []string

	set map[string]bool
}

// ParseFlags parses command-line flags from args (without the program name).
func ParseFlags(args []string, usageOut io.Writer) (*Flags, error) {
	f := &Flags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("peerprobe", flag.ContinueOnError)
	fs.SetOutput(usageOut)

	// Commands
	fs.BoolVarP(&f.Help, "help", "h", false, "Show help message")
	fs.BoolVarP(&f.Version, "version", "v", false, "Show version information")

	// Dialing
	fs.DurationVar(&f.DialTimeout, "dial-timeout", 0, "Connection establishment timeout")

	// Probing
	fs.DurationVar(&f.ProbeTimeout, "probe-timeout", 0, "Per-probe timeout")
	fs.IntVarP(&f.ProbeCount, "count", "n", 0, "Number of probes (0 = until interrupted)")
	fs.DurationVarP(&f.ProbeInterval, "interval", "i", 0, "Delay between probes")
	fs.DurationVar(&f.Session, "session", 0, "Keep the connection open this long after the last probe")

	// Identity
	fs.StringVar(&f.KeyType, "key-type", "", "Local identity key type (ed25519 or secp256k1)")
	fs.StringVar(&f.Seed, "identity-seed", "", "Derive a stable local identity from this seed")
	fs.StringVar(&f.IdentityFile, "identity-file", "", "Load or create a persisted local identity key ($"+PassphraseEnv+" encrypts it)")

	// Network
	fs.StringVar(&f.Listen, "listen", "", "Listen multiaddrs, comma-separated (default: not dialable)")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this host:port")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() { printUsage(usageOut, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	f.Args = fs.Args()

	if f.Help {
		printUsage(usageOut, fs)
	}
	return f, nil
}

// IsSet reports whether the named flag was given explicitly.
func (f *Flags) IsSet(name string) bool {
	return f.set[name]
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if len(f.Args) > 0 {
		cfg.Target = f.Args[0]
	}

	// Dialing
	if f.DialTimeout != 0 {
		cfg.Dial.Timeout = f.DialTimeout
	}

	// Probing
	if f.ProbeTimeout != 0 {
		cfg.Probe.Timeout = f.ProbeTimeout
	}
	if f.IsSet("count") {
		cfg.Probe.Count = f.ProbeCount
	}
	if f.IsSet("interval") {
		cfg.Probe.Interval = f.ProbeInterval
	}
	if f.IsSet("session") {
		cfg.Session = f.Session
	}

	// Identity
	if f.KeyType != "" {
		cfg.Identity.KeyType = f.KeyType
	}
	if f.Seed != "" {
		cfg.Identity.Seed = f.Seed
	}
	if f.IdentityFile != "" {
		cfg.Identity.File = f.IdentityFile
	}

	// Network
	if f.Listen != "" {
		cfg.Listen = parseStringList(f.Listen)
	}
	if f.MetricsAddr != "" {
		cfg.Metrics.Addr = f.MetricsAddr
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.IsSet("log-json") {
		cfg.Log.JSON = f.LogJSON
	}
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `peerprobe - dial a libp2p peer and measure round-trip latency

Usage:
  peerprobe [options] <multiaddr>

The multiaddr must end with the remote identity, for example:
  /dns4/example.com/tcp/4001/p2p/12D3KooW...
  /ip4/127.0.0.1/udp/4001/quic-v1/p2p/12D3KooW...

Options:
%s
Examples:
  # Probe once
  peerprobe /ip4/192.0.2.10/tcp/4001/p2p/12D3KooW...

  # Probe ten times, half a second apart, then watch inbound activity for 5s
  peerprobe -n 10 -i 500ms --session 5s /ip4/192.0.2.10/tcp/4001/p2p/12D3KooW...
`, fs.FlagUsages())
}

// Load builds the session config with the following precedence:
// 1. Default values
// 2. Command-line flags
// 3. Environment (identity passphrase only)
//
// It returns ErrUsage when --help or --version was given; the usage text
// has already been written to usageOut in that case.
func Load(args []string, usageOut io.Writer) (*Config, *Flags, error) {
	flags, err := ParseFlags(args, usageOut)
	if err != nil {
		return nil, nil, err
	}
	if flags.Help {
		return nil, flags, ErrUsage
	}
	if flags.Version {
		fmt.Fprintf(usageOut, "peerprobe version %s\n", Version)
		return nil, flags, ErrUsage
	}
	if len(flags.Args) > 1 {
		return nil, nil, fmt.Errorf("expected one target multiaddress, got %d arguments", len(flags.Args))
	}

	cfg := Default()
	ApplyFlags(cfg, flags)
	cfg.Identity.Passphrase = os.Getenv(PassphraseEnv)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, flags, nil
}
