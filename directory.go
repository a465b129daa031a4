package zsock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	DirectoryFileName = "zsock_directory.msgpack"
	DiscoveryTimeout  = 5 * time.Second
	discoveryInterval = 100 * time.Millisecond
)

var ErrServiceNotFound = errors.New("service not found")

// ServiceInfo holds service registration data
type ServiceInfo struct {
	Endpoint  string    `msgpack:"endpoint"`
	PID       int       `msgpack:"pid"`
	StartTime time.Time `msgpack:"start_time"`
}

// Directory maps service names to endpoints through a msgpack file shared by
// the processes on one host. It lets a Rep or Router socket bound to a
// wildcard port be found by name.
type Directory struct {
	mu       sync.RWMutex
	services map[string]ServiceInfo
	path     string

	// serializes load-modify-save within the process
	write sync.Mutex
}

// DefaultDirectoryPath is the shared file under the temp directory.
func DefaultDirectoryPath() string {
	return filepath.Join(os.TempDir(), DirectoryFileName)
}

// NewDirectory opens the directory stored at path, or at
// DefaultDirectoryPath when path is empty. A missing file is an empty
// directory.
func NewDirectory(path string) (*Directory, error) {
	if path == "" {
		path = DefaultDirectoryPath()
	}
	d := &Directory{services: make(map[string]ServiceInfo), path: path}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the backing file.
func (d *Directory) Path() string { return d.path }

func (d *Directory) load() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	services := make(map[string]ServiceInfo)
	if len(data) > 0 {
		if err := msgpack.Unmarshal(data, &services); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.services = services
	d.mu.Unlock()
	return nil
}

// save writes through a temp file so readers never see a partial file.
func (d *Directory) save() error {
	d.mu.RLock()
	data, err := msgpack.Marshal(d.services)
	d.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, d.path)
}

// Register records endpoint under name for the current process.
func (d *Directory) Register(name, endpoint string) error {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	if ep.IsWildcard() || (ep.Transport == TCP && ep.Host == "*") {
		return &Error{Kind: KindInvalidEndpoint, Op: "register", Endpoint: endpoint, Reason: "register the resolved endpoint"}
	}
	d.write.Lock()
	defer d.write.Unlock()
	if err := d.load(); err != nil {
		return err
	}

	d.mu.Lock()
	d.services[name] = ServiceInfo{
		Endpoint:  endpoint,
		PID:       os.Getpid(),
		StartTime: time.Now(),
	}
	d.mu.Unlock()

	return d.save()
}

// Unregister removes name.
func (d *Directory) Unregister(name string) error {
	d.write.Lock()
	defer d.write.Unlock()
	if err := d.load(); err != nil {
		return err
	}

	d.mu.Lock()
	delete(d.services, name)
	d.mu.Unlock()

	return d.save()
}

// Discover waits up to timeout for name to be registered by a live process
// and returns its endpoint. Entries left by dead processes are removed.
func (d *Directory) Discover(name string, timeout time.Duration) (string, error) {
	if timeout == 0 {
		timeout = DiscoveryTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := d.load(); err == nil {
			d.mu.RLock()
			info, exists := d.services[name]
			d.mu.RUnlock()

			if exists {
				if isProcessAlive(info.PID) {
					return info.Endpoint, nil
				}
				_ = d.Unregister(name)
			}
		}

		if !time.Now().Before(deadline) {
			return "", ErrServiceNotFound
		}
		time.Sleep(discoveryInterval)
	}
}

// List returns a copy of every registered service.
func (d *Directory) List() (map[string]ServiceInfo, error) {
	if err := d.load(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make(map[string]ServiceInfo, len(d.services))
	for k, v := range d.services {
		result[k] = v
	}
	return result, nil
}

// Clear removes every service.
func (d *Directory) Clear() error {
	d.write.Lock()
	defer d.write.Unlock()
	d.mu.Lock()
	d.services = make(map[string]ServiceInfo)
	d.mu.Unlock()

	return d.save()
}

// isProcessAlive sends signal 0 to pid.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, os.ErrPermission)
}

// BindService binds s to endpoint and registers the resolved address under
// name.
func (s *Socket) BindService(dir *Directory, name, endpoint string) error {
	if err := s.Bind(endpoint); err != nil {
		return err
	}
	if err := dir.Register(name, s.LastEndpoint()); err != nil {
		_ = s.Unbind(s.LastEndpoint())
		return err
	}
	return nil
}

// ConnectService looks name up in dir and connects to it.
func (s *Socket) ConnectService(dir *Directory, name string, timeout time.Duration) error {
	endpoint, err := dir.Discover(name, timeout)
	if err != nil {
		return err
	}
	return s.Connect(endpoint)
}
