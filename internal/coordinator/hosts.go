package coordinator

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
)

// HostEntry is one line of an include/exclude file: (ipAddress,
// hostNamePrefix, port). Port 0 means "any".
type HostEntry struct {
	IPAddress      string
	HostNamePrefix string
	Port           int
}

// matches reports whether the entry covers (ipAddr, hostName, port).
func (e HostEntry) matches(ipAddr, hostName string, port int) bool {
	if e.Port != 0 && e.Port != port {
		return false
	}
	if e.IPAddress != "" && e.IPAddress == ipAddr {
		return true
	}
	if e.HostNamePrefix != "" && strings.HasPrefix(hostName, e.HostNamePrefix) {
		return true
	}
	return false
}

// HostFileReader is the external collaborator that parses include/exclude
// files and exposes membership queries. IO errors on refresh are logged and
// tolerated — the previously loaded policy stays in effect (spec §7).
type HostFileReader interface {
	IsIncluded(ipAddr, hostName string, port int) bool
	IsExcluded(ipAddr, hostName string, port int) bool
	HasIncludes() bool
	Includes() []HostEntry
	Excludes() []HostEntry
	Refresh() error
}

// FileHostReader implements HostFileReader against two flat text files, one
// entry per line in "ip_or_host[:port]" form, blank lines and lines
// starting with "#" ignored.
type FileHostReader struct {
	mu               sync.RWMutex
	includesPath     string
	excludesPath     string
	includes         []HostEntry
	excludes         []HostEntry
}

// NewFileHostReader builds a reader over the given paths and performs an
// initial load. Either path may be empty, meaning "no file, empty list".
func NewFileHostReader(includesPath, excludesPath string) (*FileHostReader, error) {
	r := &FileHostReader{includesPath: includesPath, excludesPath: excludesPath}
	return r, r.Refresh()
}

func parseHostFile(path string) ([]HostEntry, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []HostEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host := line
		port := 0
		if idx := strings.LastIndex(line, ":"); idx >= 0 {
			if p, err := strconv.Atoi(line[idx+1:]); err == nil {
				host = line[:idx]
				port = p
			}
		}
		e := HostEntry{Port: port}
		if looksLikeIP(host) {
			e.IPAddress = host
		} else {
			e.HostNamePrefix = host
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func looksLikeIP(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

// Refresh reloads both files. On IO error the previously loaded lists are
// kept in place.
func (r *FileHostReader) Refresh() error {
	includes, err := parseHostFile(r.includesPath)
	if err != nil {
		return err
	}
	excludes, err := parseHostFile(r.excludesPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.includes = includes
	r.excludes = excludes
	r.mu.Unlock()
	return nil
}

func (r *FileHostReader) IsIncluded(ipAddr, hostName string, port int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.includes) == 0 {
		return true
	}
	for _, e := range r.includes {
		if e.matches(ipAddr, hostName, port) {
			return true
		}
	}
	return false
}

func (r *FileHostReader) IsExcluded(ipAddr, hostName string, port int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.excludes {
		if e.matches(ipAddr, hostName, port) {
			return true
		}
	}
	return false
}

func (r *FileHostReader) HasIncludes() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.includes) > 0
}

func (r *FileHostReader) Includes() []HostEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HostEntry, len(r.includes))
	copy(out, r.includes)
	return out
}

func (r *FileHostReader) Excludes() []HostEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HostEntry, len(r.excludes))
	copy(out, r.excludes)
	return out
}
