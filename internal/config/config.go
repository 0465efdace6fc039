// Package config loads the supervisor's tunables the way a
// cobra/viper CLI layers them: flags override environment variables,
// which override a YAML file, which overrides the built-in defaults.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable spec.md §4.4 and §9 name as pool
// construction parameters.
type Config struct {
	WksNum      int     `mapstructure:"wks_num"`
	AfnStep     int     `mapstructure:"afn_step"`
	CoreThreads int     `mapstructure:"core_threads"`
	Nodes       int     `mapstructure:"nodes"`
	CrossNodes  bool    `mapstructure:"cross_nodes"`
	VMLimitGB   float64 `mapstructure:"vm_limit_gb"`
	LatencyS    float64 `mapstructure:"latency_s"`
	Alpha       float64 `mapstructure:"alpha"`
	GraceS      float64 `mapstructure:"grace_s"`
	ListenAddr  string  `mapstructure:"listen_addr"`
	Debug       bool    `mapstructure:"debug"`
}

// defaults mirror spec.md's stated defaults (wks_num sized to the
// embedder, 2.5s latency, alpha 0.5, no vm limit unless configured).
func defaults() Config {
	return Config{
		WksNum:      4,
		AfnStep:     1,
		CoreThreads: 1,
		Nodes:       1,
		CrossNodes:  false,
		VMLimitGB:   0,
		LatencyS:    2.5,
		Alpha:       0.5,
		GraceS:      3,
		ListenAddr:  ":8080",
		Debug:       false,
	}
}

// Load builds a Config from, in increasing priority: built-in
// defaults, a YAML file at configPath (if non-empty and present),
// EXECPOOL_* environment variables, and finally v's bound flags (the
// caller binds cobra's pflag.FlagSet into v before calling Load).
func Load(v *viper.Viper, configPath string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	d := defaults()
	v.SetDefault("wks_num", d.WksNum)
	v.SetDefault("afn_step", d.AfnStep)
	v.SetDefault("core_threads", d.CoreThreads)
	v.SetDefault("nodes", d.Nodes)
	v.SetDefault("cross_nodes", d.CrossNodes)
	v.SetDefault("vm_limit_gb", d.VMLimitGB)
	v.SetDefault("latency_s", d.LatencyS)
	v.SetDefault("alpha", d.Alpha)
	v.SetDefault("grace_s", d.GraceS)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("debug", d.Debug)

	v.SetEnvPrefix("execpool")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return Config{}, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
