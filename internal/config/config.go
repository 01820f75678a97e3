package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"ognbase/internal/freqplan"
	"ognbase/internal/protocol"
	"ognbase/internal/radio"
)

type Config struct {
	Radio        RadioConfig        `yaml:"radio"`
	GPS          GPSConfig          `yaml:"gps"`
	Beacon       BeaconConfig       `yaml:"beacon"`
	Plausibility PlausibilityConfig `yaml:"plausibility"`
	PNET         PNETConfig         `yaml:"pnet"`
	Traffic      TrafficConfig      `yaml:"traffic"`
	UDP          UDPConfig          `yaml:"udp"`
	Web          WebConfig          `yaml:"web"`
	Record       RecordConfig       `yaml:"record"`
	Replay       ReplayConfig       `yaml:"replay"`
	Log          LogConfig          `yaml:"log"`
	Sim          SimConfig          `yaml:"sim"`
}

// RadioConfig selects and tunes the transceiver. Pins are BCM numbers; 0
// means not wired.
type RadioConfig struct {
	Chip        string        `yaml:"chip"`
	SPIDevice   string        `yaml:"spi_device"`
	SPISpeedHz  uint32        `yaml:"spi_speed_hz"`
	ResetPin    int           `yaml:"reset_pin"`
	BusyPin     int           `yaml:"busy_pin"`
	Protocol    string        `yaml:"protocol"`
	TxPower     string        `yaml:"tx_power"`
	FreqCorrKHz int           `yaml:"freq_corr_khz"`
	Band        string        `yaml:"band"`
	TxTimeout   time.Duration `yaml:"tx_timeout"`

	ProtocolID protocol.ID     `yaml:"-"`
	TxPowerSet radio.TxPower   `yaml:"-"`
	Region     freqplan.Region `yaml:"-"`
}

type GPSConfig struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	PPSPin int    `yaml:"pps_pin"`
}

// BeaconConfig describes the station's own transmitted position report.
type BeaconConfig struct {
	Enable       bool   `yaml:"enable"`
	Addr         string `yaml:"addr"`
	AddrType     string `yaml:"addr_type"`
	AircraftType uint8  `yaml:"aircraft_type"`

	AddrValue    uint32            `yaml:"-"`
	AddrTypeEnum protocol.AddrType `yaml:"-"`
}

type PlausibilityConfig struct {
	HistorySize         int  `yaml:"history_size"`
	TestMode            bool `yaml:"test_mode"`
	AcceptFirstSighting bool `yaml:"accept_first_sighting"`
}

// PNETConfig enables the FANET private network. Empty paths use the
// built-in key and IV.
type PNETConfig struct {
	Enable  bool   `yaml:"enable"`
	KeyFile string `yaml:"key_file"`
	IVFile  string `yaml:"iv_file"`
}

type TrafficConfig struct {
	MaxTargets int           `yaml:"max_targets"`
	TTL        time.Duration `yaml:"ttl"`
	QueueSize  int           `yaml:"queue_size"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`

	LevelValue log.Level `yaml:"-"`
}

type SimConfig struct {
	Ownship  OwnshipSimConfig  `yaml:"ownship"`
	Traffic  TrafficSimConfig  `yaml:"traffic"`
	Scenario ScenarioSimConfig `yaml:"scenario"`
}

// OwnshipSimConfig replaces the GNSS receiver with a fixed station fix.
type OwnshipSimConfig struct {
	Enable bool    `yaml:"enable"`
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
	AltM   float64 `yaml:"alt_m"`
}

type TrafficSimConfig struct {
	Enable   bool          `yaml:"enable"`
	Count    int           `yaml:"count"`
	RadiusNm float64       `yaml:"radius_nm"`
	GroundKt float64       `yaml:"ground_kt"`
	Interval time.Duration `yaml:"interval"`
	RSSI     int           `yaml:"rssi"`
}

type ScenarioSimConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
	Loop   bool   `yaml:"loop"`
}

var chips = []string{"auto", "sx1276", "sx1262", "loopback"}

var addrTypes = map[string]protocol.AddrType{
	"random": protocol.AddrRandom,
	"icao":   protocol.AddrICAO,
	"flarm":  protocol.AddrFLARM,
	"ogn":    protocol.AddrOGN,
	"p3i":    protocol.AddrP3I,
	"fanet":  protocol.AddrFANET,
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse unmarshals b, applies defaults and validates the result.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyRadio(); err != nil {
		return Config{}, err
	}
	if err := cfg.applyBeacon(); err != nil {
		return Config{}, err
	}
	if err := cfg.applyIO(); err != nil {
		return Config{}, err
	}
	if err := cfg.applySim(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyRadio() error {
	r := &cfg.Radio
	r.Chip = strings.ToLower(strings.TrimSpace(r.Chip))
	if r.Chip == "" {
		r.Chip = "auto"
	}
	if !slices.Contains(chips, r.Chip) {
		return fmt.Errorf("radio.chip must be one of %s", strings.Join(chips, ", "))
	}
	if r.SPIDevice == "" {
		r.SPIDevice = "/dev/spidev0.0"
	}
	if r.SPISpeedHz == 0 {
		r.SPISpeedHz = 8_000_000
	}
	if r.ResetPin < 0 || r.BusyPin < 0 {
		return fmt.Errorf("radio pins must be >= 0")
	}
	if r.TxTimeout <= 0 {
		r.TxTimeout = radio.DefaultTxTimeout
	}

	var err error
	if r.Protocol == "" {
		r.Protocol = protocol.Legacy.String()
	}
	if r.ProtocolID, err = protocol.ParseID(r.Protocol); err != nil {
		return fmt.Errorf("radio.protocol: %w", err)
	}
	if r.TxPowerSet, err = radio.ParseTxPower(strings.ToLower(r.TxPower)); err != nil {
		return fmt.Errorf("radio.tx_power: %w", err)
	}
	if r.Region, err = freqplan.ParseRegion(r.Band); err != nil {
		return fmt.Errorf("radio.band: %w", err)
	}
	if r.Band == "" {
		r.Band = r.Region.String()
	}

	if cfg.GPS.Baud <= 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.PPSPin < 0 {
		return fmt.Errorf("gps.pps_pin must be >= 0")
	}

	if cfg.Plausibility.HistorySize <= 0 {
		cfg.Plausibility.HistorySize = 100
	}
	return nil
}

func (cfg *Config) applyBeacon() error {
	b := &cfg.Beacon
	if b.AddrType == "" {
		b.AddrType = "ogn"
	}
	t, ok := addrTypes[strings.ToLower(b.AddrType)]
	if !ok {
		return fmt.Errorf("beacon.addr_type %q is not recognized", b.AddrType)
	}
	b.AddrTypeEnum = t
	if b.AircraftType == 0 {
		b.AircraftType = protocol.AircraftStatic
	}
	if b.AircraftType > 15 {
		return fmt.Errorf("beacon.aircraft_type must be 0-15")
	}
	if !b.Enable {
		return nil
	}
	if b.Addr == "" {
		return fmt.Errorf("beacon.addr is required when beacon.enable is true")
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(b.Addr), "0X"), 16, 24)
	if err != nil {
		return fmt.Errorf("beacon.addr must be 6 hex digits")
	}
	b.AddrValue = uint32(v)
	return nil
}

func (cfg *Config) applyIO() error {
	if cfg.PNET.Enable && cfg.Radio.ProtocolID != protocol.FANET {
		return fmt.Errorf("pnet.enable requires radio.protocol=fanet")
	}

	if cfg.Traffic.MaxTargets <= 0 {
		cfg.Traffic.MaxTargets = 50
	}
	if cfg.Traffic.TTL <= 0 {
		cfg.Traffic.TTL = 30 * time.Second
	}
	if cfg.Traffic.QueueSize <= 0 {
		cfg.Traffic.QueueSize = 64
	}

	if cfg.UDP.Enable && cfg.UDP.Dest == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Record.Enable && cfg.Record.Path == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}
	if cfg.Replay.Enable {
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when replay.enable is true")
		}
		if cfg.Replay.Speed == 0 {
			cfg.Replay.Speed = 1
		}
		if cfg.Replay.Speed < 0 {
			return fmt.Errorf("replay.speed must be > 0")
		}
	}
	if cfg.Record.Enable && cfg.Replay.Enable {
		return fmt.Errorf("record and replay cannot both be enabled")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	lvl, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	cfg.Log.LevelValue = lvl
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 28
	}
	return nil
}

func (cfg *Config) applySim() error {
	// Simulator defaults (safe even if disabled).
	t := &cfg.Sim.Traffic
	if t.Count <= 0 {
		t.Count = 3
	}
	if t.RadiusNm <= 0 {
		t.RadiusNm = 1.0
	}
	if t.GroundKt <= 0 {
		t.GroundKt = 60
	}
	if t.Interval <= 0 {
		t.Interval = time.Second
	}
	if t.RSSI == 0 {
		t.RSSI = -80
	}

	if cfg.Sim.Scenario.Enable && cfg.Sim.Scenario.Path == "" {
		return fmt.Errorf("sim.scenario.path is required when sim.scenario.enable is true")
	}
	if (t.Enable || cfg.Sim.Scenario.Enable) && cfg.Radio.Chip != "loopback" {
		return fmt.Errorf("sim traffic requires radio.chip=loopback")
	}
	if cfg.Sim.Ownship.Enable && cfg.GPS.Enable {
		return fmt.Errorf("sim.ownship and gps cannot both be enabled")
	}
	return nil
}
