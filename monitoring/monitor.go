// Package monitoring serves the state of ATA channels over HTTP.
package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/atapio/ata"
	"github.com/sarchlab/atapio/sim"
)

// maxSectorsPerRequest bounds the sectors moved by one sector API call.
const maxSectorsPerRequest = 256

// Monitor turns a set of channels into a server that can inspect them and
// access their sectors.
type Monitor struct {
	lock        sync.Mutex
	components  []sim.Named
	channels    []*ata.Channel
	portNumber  int
	openBrowser bool
	server      *http.Server

	barsMu sync.Mutex
	bars   []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port the monitor listens on. Privileged ports and
// zero select a free port.
func (m *Monitor) WithPortNumber(port int) *Monitor {
	if port != 0 && port <= 1000 {
		fmt.Fprintf(os.Stderr,
			"monitor: port %d is reserved, listening on a free port\n", port)
		port = 0
	}

	m.portNumber = port

	return m
}

// WithBrowser makes StartServer open the monitor in a web browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterComponent registers an object whose fields can be inspected.
func (m *Monitor) RegisterComponent(c sim.Named) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.components = append(m.components, c)
}

// RegisterChannel registers a channel. Channels are also components.
func (m *Monitor) RegisterChannel(ch *ata.Channel) {
	m.RegisterComponent(ch)

	m.lock.Lock()
	defer m.lock.Unlock()

	m.channels = append(m.channels, ch)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		id:    sim.GetIDGenerator().Generate(),
		name:  name,
		start: time.Now(),
		total: total,
	}

	m.barsMu.Lock()
	m.bars = append(m.bars, bar)
	m.barsMu.Unlock()

	return bar
}

// CompleteProgressBar stops reporting a bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.barsMu.Lock()
	defer m.barsMu.Unlock()

	m.bars = slices.DeleteFunc(m.bars, func(b *ProgressBar) bool {
		return b == pb
	})
}

// Router returns the HTTP handler of the monitor.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.inspectComponent)
	r.HandleFunc("/api/field/{json}", m.inspectField)
	r.HandleFunc("/api/channels", m.listChannels)
	r.HandleFunc("/api/stats/{name}", m.channelStats)
	r.HandleFunc("/api/identify/{name}/{drive}", m.identify).
		Methods(http.MethodGet)
	r.HandleFunc("/api/flush/{name}/{drive}", m.flush).
		Methods(http.MethodPost)
	r.HandleFunc("/api/sector/{name}/{drive}/{lba}", m.readSectors).
		Methods(http.MethodGet)
	r.HandleFunc("/api/sector/{name}/{drive}/{lba}", m.writeSectors).
		Methods(http.MethodPut)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(m.portNumber)))
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://localhost:%d", port)

	fmt.Fprintf(os.Stderr, "Monitoring ATA channels with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url + "/api/channels"); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	return port
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) sim.Named {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	http.Error(w, "Component not found", http.StatusNotFound)

	return nil
}

func (m *Monitor) findChannelOr404(
	w http.ResponseWriter,
	name string,
) *ata.Channel {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, ch := range m.channels {
		if ch.Name() == name {
			return ch
		}
	}

	http.Error(w, "Channel not found", http.StatusNotFound)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.barsMu.Lock()
	defer m.barsMu.Unlock()

	if m.bars == nil {
		writeJSON(w, []*ProgressBar{})
		return
	}

	writeJSON(w, m.bars)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	dieOnErr(json.NewEncoder(w).Encode(v))
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
