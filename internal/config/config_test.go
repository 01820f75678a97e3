package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"ognbase/internal/freqplan"
	"ognbase/internal/protocol"
	"ognbase/internal/radio"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "radio: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Radio.Chip != "auto" || cfg.Radio.SPIDevice != "/dev/spidev0.0" || cfg.Radio.SPISpeedHz != 8_000_000 {
		t.Fatalf("radio defaults: %+v", cfg.Radio)
	}
	if cfg.Radio.ProtocolID != protocol.Legacy || cfg.Radio.Protocol != "legacy" {
		t.Fatalf("protocol=%v want legacy", cfg.Radio.ProtocolID)
	}
	if cfg.Radio.TxPowerSet != radio.TxPowerFull {
		t.Fatalf("tx power=%v want full", cfg.Radio.TxPowerSet)
	}
	if cfg.Radio.Region != freqplan.Auto || cfg.Radio.Band != "auto" {
		t.Fatalf("band=%q want auto", cfg.Radio.Band)
	}
	if cfg.Radio.TxTimeout != 500*time.Millisecond {
		t.Fatalf("tx timeout=%s want 500ms", cfg.Radio.TxTimeout)
	}
	if cfg.GPS.Baud != 9600 {
		t.Fatalf("gps baud=%d want 9600", cfg.GPS.Baud)
	}
	if cfg.Plausibility.HistorySize != 100 || cfg.Plausibility.TestMode || cfg.Plausibility.AcceptFirstSighting {
		t.Fatalf("plausibility defaults: %+v", cfg.Plausibility)
	}
	if cfg.Traffic.MaxTargets != 50 || cfg.Traffic.TTL != 30*time.Second || cfg.Traffic.QueueSize != 64 {
		t.Fatalf("traffic defaults: %+v", cfg.Traffic)
	}
	if cfg.Web.Listen != ":8080" {
		t.Fatalf("web listen=%q", cfg.Web.Listen)
	}
	if cfg.Log.LevelValue != log.InfoLevel || cfg.Log.MaxSizeMB != 10 {
		t.Fatalf("log defaults: %+v", cfg.Log)
	}
	if cfg.Beacon.AddrTypeEnum != protocol.AddrOGN || cfg.Beacon.AircraftType != protocol.AircraftStatic {
		t.Fatalf("beacon defaults: %+v", cfg.Beacon)
	}

	// Simulator defaults should be populated even if sim is absent.
	st := cfg.Sim.Traffic
	if st.Count <= 0 || st.RadiusNm <= 0 || st.GroundKt <= 0 || st.Interval <= 0 || st.RSSI == 0 {
		t.Fatalf("expected traffic sim defaults applied: %+v", st)
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeTempConfig(t, `
radio:
  chip: SX1262
  protocol: fanet
  tx_power: low
  band: us
  freq_corr_khz: -5
pnet:
  enable: true
beacon:
  enable: true
  addr: "0xdd1234"
  addr_type: flarm
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Radio.Chip != "sx1262" {
		t.Fatalf("chip=%q", cfg.Radio.Chip)
	}
	if cfg.Radio.ProtocolID != protocol.FANET || cfg.Radio.TxPowerSet != radio.TxPowerLow || cfg.Radio.Region != freqplan.US {
		t.Fatalf("radio: %+v", cfg.Radio)
	}
	if cfg.Radio.FreqCorrKHz != -5 {
		t.Fatalf("freq corr=%d", cfg.Radio.FreqCorrKHz)
	}
	if cfg.Beacon.AddrValue != 0xDD1234 || cfg.Beacon.AddrTypeEnum != protocol.AddrFLARM {
		t.Fatalf("beacon: %+v", cfg.Beacon)
	}
	if cfg.Log.LevelValue != log.DebugLevel {
		t.Fatalf("log level=%v", cfg.Log.LevelValue)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "UnknownChip",
			yaml: "radio:\n  chip: cc1101\n",
			want: "radio.chip must be one of auto, sx1276, sx1262, loopback",
		},
		{
			name: "UnknownProtocol",
			yaml: "radio:\n  protocol: adsb\n",
			want: `radio.protocol: unknown protocol "adsb"`,
		},
		{
			name: "UnknownTxPower",
			yaml: "radio:\n  tx_power: max\n",
			want: `radio.tx_power: unknown tx power "max"`,
		},
		{
			name: "UnknownBand",
			yaml: "radio:\n  band: mars\n",
			want: `radio.band: unknown band "mars"`,
		},
		{
			name: "NegativePin",
			yaml: "radio:\n  reset_pin: -1\n",
			want: "radio pins must be >= 0",
		},
		{
			name: "BeaconNeedsAddr",
			yaml: "beacon:\n  enable: true\n",
			want: "beacon.addr is required when beacon.enable is true",
		},
		{
			name: "BeaconBadAddr",
			yaml: "beacon:\n  enable: true\n  addr: \"1234567\"\n",
			want: "beacon.addr must be 6 hex digits",
		},
		{
			name: "BeaconBadAddrType",
			yaml: "beacon:\n  addr_type: mode-s\n",
			want: `beacon.addr_type "mode-s" is not recognized`,
		},
		{
			name: "PNETNeedsFANET",
			yaml: "pnet:\n  enable: true\n",
			want: "pnet.enable requires radio.protocol=fanet",
		},
		{
			name: "UDPNeedsDest",
			yaml: "udp:\n  enable: true\n",
			want: "udp.dest is required when udp.enable is true",
		},
		{
			name: "RecordNeedsPath",
			yaml: "record:\n  enable: true\n",
			want: "record.path is required when record.enable is true",
		},
		{
			name: "ReplayNeedsPath",
			yaml: "replay:\n  enable: true\n",
			want: "replay.path is required when replay.enable is true",
		},
		{
			name: "ReplayNegativeSpeed",
			yaml: "replay:\n  enable: true\n  path: x.log\n  speed: -2\n",
			want: "replay.speed must be > 0",
		},
		{
			name: "RecordAndReplay",
			yaml: "record:\n  enable: true\n  path: a.log\nreplay:\n  enable: true\n  path: b.log\n",
			want: "record and replay cannot both be enabled",
		},
		{
			name: "SimNeedsLoopback",
			yaml: "sim:\n  traffic:\n    enable: true\n",
			want: "sim traffic requires radio.chip=loopback",
		},
		{
			name: "ScenarioNeedsPath",
			yaml: "radio:\n  chip: loopback\nsim:\n  scenario:\n    enable: true\n",
			want: "sim.scenario.path is required when sim.scenario.enable is true",
		},
		{
			name: "OwnshipAndGPS",
			yaml: "gps:\n  enable: true\nsim:\n  ownship:\n    enable: true\n",
			want: "sim.ownship and gps cannot both be enabled",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.yaml)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_BadLogLevel(t *testing.T) {
	path := writeTempConfig(t, "log:\n  level: loud\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestLoad_ReplaySpeedDefault(t *testing.T) {
	path := writeTempConfig(t, "replay:\n  enable: true\n  path: frames.log\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Replay.Speed != 1 {
		t.Fatalf("replay speed=%v want 1", cfg.Replay.Speed)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "ognbase.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Radio.Region != freqplan.Auto || cfg.Radio.ProtocolID != protocol.Legacy {
		t.Fatalf("radio=%+v", cfg.Radio)
	}
	if cfg.GPS.PPSPin != 18 || !cfg.Web.Enable {
		t.Fatalf("gps=%+v web=%+v", cfg.GPS, cfg.Web)
	}
	if cfg.Log.LevelValue != log.InfoLevel {
		t.Fatalf("level=%v want info", cfg.Log.LevelValue)
	}
}
