// Package config loads the analysis run configuration from a TOML
// file, covering every logical option of spec §6's command surface.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full set of named options the core recognizes. Field
// names follow the spec's logical option names; the TOML keys match
// them verbatim so a config file reads as documentation of itself.
type Config struct {
	Components struct {
		Observer        bool `toml:"enable_observer"`
		Predictor       bool `toml:"enable_predictor"`
		Sinst           bool `toml:"enable_sinst"`
		ChessScheduler  bool `toml:"enable_chess_scheduler"`
		RandomScheduler bool `toml:"enable_random_scheduler"`
	} `toml:"components"`

	UnitSize uint32 `toml:"unit_size"`

	Observer struct {
		VulnerabilityWindow uint32 `toml:"vw"`
		Type1               bool   `toml:"type1"`
		Type2               bool   `toml:"type2"`
		Type3               bool   `toml:"type3"`
		Type4               bool   `toml:"type4"`
		Type5               bool   `toml:"type5"`
	} `toml:"observer"`

	Predictor struct {
		VulnerabilityWindow uint32 `toml:"vw"`
		SyncOnly            bool   `toml:"sync_only"`
		ComplexIdioms       bool   `toml:"complex_idioms"`
		RacyOnly            bool   `toml:"racy_only"`
		PredictDeadlock     bool   `toml:"predict_deadlock"`
	} `toml:"predictor"`

	Scheduler struct {
		PB           bool `toml:"pb"`
		PBLimit      int  `toml:"pb_limit"`
		Fair         bool `toml:"fair"`
		POR          bool `toml:"por"`
		AbortDiverge bool `toml:"abort_diverge"`
	} `toml:"scheduler"`

	Paths struct {
		SearchIn     string `toml:"search_in"`
		SearchOut    string `toml:"search_out"`
		PORInfoPath  string `toml:"por_info_path"`
		ProgramIn    string `toml:"program_in"`
		ProgramOut   string `toml:"program_out"`
		IRootIn      string `toml:"iroot_in"`
		IRootOut     string `toml:"iroot_out"`
		MemoIn       string `toml:"memo_in"`
		MemoOut      string `toml:"memo_out"`
		StaticInfoIn string `toml:"sinfo_in"`
		SinfoOut     string `toml:"sinfo_out"`
		RaceIn       string `toml:"race_in"`
		RaceOut      string `toml:"race_out"`
	} `toml:"paths"`

	Sysinfo struct {
		CPU              int  `toml:"cpu"`
		RealtimePriority bool `toml:"realtime_priority"`
	} `toml:"sysinfo"`
}

// Default returns the config's built-in defaults, matching the
// observer/predictor/scheduler package defaults except that
// complex_idioms is off, so the predictor looks for Idiom-1 only.
func Default() Config {
	var c Config
	c.Components.Observer = true
	c.Components.Predictor = true
	c.Components.Sinst = true
	c.UnitSize = 8
	c.Observer.VulnerabilityWindow = 1000
	c.Observer.Type1, c.Observer.Type2, c.Observer.Type3, c.Observer.Type4, c.Observer.Type5 = true, true, true, true, true
	c.Predictor.VulnerabilityWindow = 1000
	c.Scheduler.PB = true
	c.Scheduler.PBLimit = 2
	c.Scheduler.Fair = true
	c.Scheduler.POR = true
	c.Sysinfo.CPU = -1
	return c
}

// Load reads and parses a TOML config file at path, starting from
// Default() so an absent file key keeps its default value. Per spec
// §7's persistence error taxonomy, a missing file is not an error —
// the caller gets Default() back.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
