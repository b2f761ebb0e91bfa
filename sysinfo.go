package main

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SystemInfo supplies the host facts that go into the telemetry record.
type SystemInfo interface {
	IPAddress() string
	RSSI() (int, error)
	CoreTemp() (float64, error)
	Uptime() time.Duration
	StartReason() string
	// Memory returns the currently available memory and the lowest value
	// observed since start, both in bytes.
	Memory() (free, minFree uint64, err error)
}

// linuxSysInfo reads procfs and sysfs.  root is prepended to every path so
// tests can point it at a fixture tree.
type linuxSysInfo struct {
	root    string
	iface   string
	started time.Time
	reason  string
	minFree uint64
}

func newLinuxSysInfo(iface, startReason string) *linuxSysInfo {
	return &linuxSysInfo{root: "/", iface: iface, started: time.Now(), reason: startReason}
}

func (s *linuxSysInfo) path(p string) string { return filepath.Join(s.root, p) }

// IPAddress returns the first IPv4 address of the wireless interface, or of
// any non-loopback interface when that one has none.
func (s *linuxSysInfo) IPAddress() string {
	if ifi, err := net.InterfaceByName(s.iface); err == nil {
		if ip := firstIPv4(ifi); ip != "" {
			return ip
		}
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagLoopback != 0 || ifaces[i].Flags&net.FlagUp == 0 {
			continue
		}
		if ip := firstIPv4(&ifaces[i]); ip != "" {
			return ip
		}
	}
	return ""
}

func firstIPv4(ifi *net.Interface) string {
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok {
			if v4 := n.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return ""
}

// RSSI returns the signal level in dBm from /proc/net/wireless.
func (s *linuxSysInfo) RSSI() (int, error) {
	data, err := os.ReadFile(s.path("proc/net/wireless"))
	if err != nil {
		return 0, err
	}
	return parseWireless(data, s.iface)
}

// parseWireless extracts the level column for iface.  The first two lines of
// the file are headers.
func parseWireless(data []byte, iface string) (int, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 0; sc.Scan(); line++ {
		if line < 2 {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || strings.TrimSuffix(fields[0], ":") != iface {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("wireless level %q: %w", fields[3], err)
		}
		return int(v), nil
	}
	return 0, fmt.Errorf("interface %s not in wireless stats", iface)
}

// CoreTemp returns the SoC temperature in degrees Celsius.
func (s *linuxSysInfo) CoreTemp() (float64, error) {
	data, err := os.ReadFile(s.path("sys/class/thermal/thermal_zone0/temp"))
	if err != nil {
		return 0, err
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("thermal zone: %w", err)
	}
	return float64(milli) / 1000, nil
}

func (s *linuxSysInfo) Uptime() time.Duration { return time.Since(s.started) }

func (s *linuxSysInfo) StartReason() string { return s.reason }

// Memory reads MemAvailable from /proc/meminfo.  It is only called from the
// control loop, which makes the minimum tracking safe without a lock.
func (s *linuxSysInfo) Memory() (uint64, uint64, error) {
	data, err := os.ReadFile(s.path("proc/meminfo"))
	if err != nil {
		return 0, 0, err
	}
	free, err := parseMemAvailable(data)
	if err != nil {
		return 0, 0, err
	}
	if s.minFree == 0 || free < s.minFree {
		s.minFree = free
	}
	return free, s.minFree, nil
}

func parseMemAvailable(data []byte) (uint64, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != "MemAvailable:" {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("MemAvailable: %w", err)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found")
}
