package main

import (
	"os"
	"path/filepath"
	"testing"
)

const wirelessFixture = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
  eth1: 0000   12.  -91.  -256        0      0      0      0      0        0
 wlan0: 0000   51.  -59.  -256        0      0      0      3     12        0
`

func TestParseWireless(t *testing.T) {
	rssi, err := parseWireless([]byte(wirelessFixture), "wlan0")
	if err != nil || rssi != -59 {
		t.Fatalf("got %d, %v", rssi, err)
	}
	if _, err := parseWireless([]byte(wirelessFixture), "wlan1"); err == nil {
		t.Fatal("missing interface accepted")
	}
}

func TestParseMemAvailable(t *testing.T) {
	data := []byte("MemTotal:        3884376 kB\nMemFree:          208448 kB\nMemAvailable:    2245676 kB\n")
	got, err := parseMemAvailable(data)
	if err != nil || got != 2245676*1024 {
		t.Fatalf("got %d, %v", got, err)
	}
	if _, err := parseMemAvailable([]byte("MemTotal: 1 kB\n")); err == nil {
		t.Fatal("missing MemAvailable accepted")
	}
}

func writeFixture(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLinuxSysInfoFixtureTree(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "proc/net/wireless", wirelessFixture)
	writeFixture(t, root, "sys/class/thermal/thermal_zone0/temp", "51234\n")
	writeFixture(t, root, "proc/meminfo", "MemAvailable:    1000 kB\n")

	s := newLinuxSysInfo("wlan0", ReasonPowerOn)
	s.root = root

	if rssi, err := s.RSSI(); err != nil || rssi != -59 {
		t.Fatalf("rssi %d, %v", rssi, err)
	}
	if c, err := s.CoreTemp(); err != nil || c != 51.234 {
		t.Fatalf("core %v, %v", c, err)
	}
	free, minFree, err := s.Memory()
	if err != nil || free != 1000*1024 || minFree != free {
		t.Fatalf("memory %d/%d, %v", free, minFree, err)
	}

	writeFixture(t, root, "proc/meminfo", "MemAvailable:    3000 kB\n")
	free, minFree, _ = s.Memory()
	if free != 3000*1024 || minFree != 1000*1024 {
		t.Fatalf("minimum not tracked: %d/%d", free, minFree)
	}
	if s.StartReason() != ReasonPowerOn {
		t.Fatal("start reason")
	}
}
