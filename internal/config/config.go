package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/javanstorm/perftune/internal/distro"
)

// EnvPrefix prefixes every environment variable: PERFTUNE_HOST, PERFTUNE_GUEST_COUNT, ...
const EnvPrefix = "PERFTUNE"

// Config holds all perftune configuration.
type Config struct {
	// StorageRoot is the directory on the target where applied changes are recorded.
	StorageRoot string `mapstructure:"storage_root"`

	// Host is the machine to tune. Empty or "localhost" tunes the local machine.
	Host string `mapstructure:"host"`

	// SSHUser is the user for SSH connections to the host and guests.
	SSHUser string `mapstructure:"ssh_user"`

	// SSHPort is the SSH port of the host.
	SSHPort int `mapstructure:"ssh_port"`

	// SSHKeyPath is the private key; empty uses the key pair in the data dir.
	SSHKeyPath string `mapstructure:"ssh_key_path"`

	// SSHKnownHosts enables host key checking of the host when set.
	SSHKnownHosts string `mapstructure:"ssh_known_hosts"`

	// GuestDistro is the distribution guests are built from.
	GuestDistro string `mapstructure:"guest_distro"`

	// GuestArch is the guest architecture.
	GuestArch string `mapstructure:"guest_arch"`

	// GuestCount is the number of guests the libvirt profiles start.
	GuestCount int `mapstructure:"guest_count"`

	// GuestCPUs is the number of virtual CPUs per guest.
	GuestCPUs int `mapstructure:"guest_cpus"`

	// GuestMemoryMB is the RAM per guest in megabytes.
	GuestMemoryMB int `mapstructure:"guest_memory_mb"`

	// GuestNetwork is the libvirt network guests attach to.
	GuestNetwork string `mapstructure:"guest_network"`

	// ImageDir holds base images and guest disks on the host.
	ImageDir string `mapstructure:"image_dir"`

	// TunedProfile is the profile the TunedAdm variant switches to.
	TunedProfile string `mapstructure:"tuned_profile"`

	// HostTunedProfile is the host profile of TunedLibvirt.
	HostTunedProfile string `mapstructure:"host_tuned_profile"`

	// GuestTunedProfile is the profile TunedLibvirt applies in guests.
	GuestTunedProfile string `mapstructure:"guest_tuned_profile"`

	// HostGrubArgs are kernel arguments TunedLibvirt adds on the host.
	// The environment variable takes them comma separated.
	HostGrubArgs []string `mapstructure:"host_grub_args"`

	// RCLocalPath is the boot-time script on the host.
	RCLocalPath string `mapstructure:"rc_local_path"`

	// PollInterval is the first delay between readiness checks.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// PollMaxInterval caps the delay between readiness checks.
	PollMaxInterval time.Duration `mapstructure:"poll_max_interval"`

	// PollTimeout bounds waiting for a reboot or a guest (0 = unbounded).
	PollTimeout time.Duration `mapstructure:"poll_timeout"`

	// LogLevel is info, debug or trace.
	LogLevel string `mapstructure:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StorageRoot:       "/var/lib/perftune",
		Host:              "localhost",
		SSHUser:           "root",
		SSHPort:           22,
		GuestDistro:       string(distro.Default),
		GuestArch:         "amd64",
		GuestCount:        1,
		GuestCPUs:         2,
		GuestMemoryMB:     2048,
		GuestNetwork:      "default",
		ImageDir:          "/var/lib/libvirt/images/perftune",
		TunedProfile:      "throughput-performance",
		HostTunedProfile:  "virtual-host",
		GuestTunedProfile: "virtual-guest",
		HostGrubArgs:      []string{"intel_iommu=on", "iommu=pt"},
		RCLocalPath:       "/etc/rc.d/rc.local",
		PollInterval:      2 * time.Second,
		PollMaxInterval:   30 * time.Second,
		PollTimeout:       0,
		LogLevel:          "info",
	}
}

// setDefaults registers every default so viper knows all keys, which
// AutomaticEnv needs to bind environment variables on Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("storage_root", d.StorageRoot)
	v.SetDefault("host", d.Host)
	v.SetDefault("ssh_user", d.SSHUser)
	v.SetDefault("ssh_port", d.SSHPort)
	v.SetDefault("ssh_key_path", d.SSHKeyPath)
	v.SetDefault("ssh_known_hosts", d.SSHKnownHosts)
	v.SetDefault("guest_distro", d.GuestDistro)
	v.SetDefault("guest_arch", d.GuestArch)
	v.SetDefault("guest_count", d.GuestCount)
	v.SetDefault("guest_cpus", d.GuestCPUs)
	v.SetDefault("guest_memory_mb", d.GuestMemoryMB)
	v.SetDefault("guest_network", d.GuestNetwork)
	v.SetDefault("image_dir", d.ImageDir)
	v.SetDefault("tuned_profile", d.TunedProfile)
	v.SetDefault("host_tuned_profile", d.HostTunedProfile)
	v.SetDefault("guest_tuned_profile", d.GuestTunedProfile)
	v.SetDefault("host_grub_args", d.HostGrubArgs)
	v.SetDefault("rc_local_path", d.RCLocalPath)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("poll_max_interval", d.PollMaxInterval)
	v.SetDefault("poll_timeout", d.PollTimeout)
	v.SetDefault("log_level", d.LogLevel)
}

// Loader reads configuration from flags, environment, a config file and
// defaults, in that order of precedence.
type Loader struct {
	// ConfigFile is an explicit config file. When empty, config.yaml is
	// looked up in the config and data dirs and may be missing.
	ConfigFile string

	// Flags are bound by name; a flag "guest-count" sets guest_count.
	Flags *pflag.FlagSet

	v *viper.Viper
}

// Load returns the merged configuration.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	l.v = v
	setDefaults(v)

	if l.ConfigFile != "" {
		v.SetConfigFile(l.ConfigFile)
	} else {
		paths, err := GetPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to determine paths: %w", err)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(paths.ConfigDir)
		v.AddConfigPath(paths.DataDir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if l.Flags != nil {
		var bindErr error
		l.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnownKey(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the path of the config file read by Load, if any.
func (l *Loader) ConfigFileUsed() string {
	if l.v == nil {
		return ""
	}
	return l.v.ConfigFileUsed()
}

// Load reads the configuration without flags.
func Load() (*Config, error) {
	return (&Loader{}).Load()
}

func isKnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Keys lists every configuration key.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// IsLocal reports whether the configured host is the local machine.
func (c *Config) IsLocal() bool {
	return c.Host == "" || c.Host == "localhost" || c.Host == "127.0.0.1"
}
