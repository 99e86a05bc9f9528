package monitoring

import (
	"bytes"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"sort"
	"time"

	"github.com/google/pprof/profile"
	"github.com/shirou/gopsutil/process"
)

// Longest profile the monitor agrees to collect.
const maxProfileDuration = 30 * time.Second

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
	Goroutines int     `json:"goroutines"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	self, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := self.CPUPercent()
	dieOnErr(err)

	mem, err := self.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: mem.RSS,
		Goroutines: runtime.NumGoroutine(),
	})
}

type profileEntry struct {
	Function string  `json:"function"`
	Samples  int64   `json:"samples"`
	Percent  float64 `json:"percent"`
}

type profileRsp struct {
	Duration string         `json:"duration"`
	Samples  int64          `json:"samples"`
	Top      []profileEntry `json:"top"`
}

// collectProfile runs the CPU profiler for a while and reports the functions
// that were on CPU most often. Busy polling shows up here.
func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if s := r.URL.Query().Get("duration"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 || d > maxProfileDuration {
			http.Error(w, "invalid duration "+s, http.StatusBadRequest)
			return
		}

		duration = d
	}

	buf := new(bytes.Buffer)
	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	select {
	case <-time.After(duration):
	case <-r.Context().Done():
	}

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, summarizeProfile(prof, duration, 20))
}

func summarizeProfile(
	prof *profile.Profile,
	duration time.Duration,
	n int,
) profileRsp {
	rsp := profileRsp{Duration: duration.String(), Top: []profileEntry{}}
	flat := make(map[string]int64)

	for _, s := range prof.Sample {
		if len(s.Value) == 0 {
			continue
		}

		rsp.Samples += s.Value[0]
		flat[leafFunction(s)] += s.Value[0]
	}

	for fn, samples := range flat {
		rsp.Top = append(rsp.Top, profileEntry{
			Function: fn,
			Samples:  samples,
			Percent:  100 * float64(samples) / float64(rsp.Samples),
		})
	}

	sort.Slice(rsp.Top, func(i, j int) bool {
		if rsp.Top[i].Samples != rsp.Top[j].Samples {
			return rsp.Top[i].Samples > rsp.Top[j].Samples
		}

		return rsp.Top[i].Function < rsp.Top[j].Function
	})

	if len(rsp.Top) > n {
		rsp.Top = rsp.Top[:n]
	}

	return rsp
}

func leafFunction(s *profile.Sample) string {
	if len(s.Location) == 0 || len(s.Location[0].Line) == 0 ||
		s.Location[0].Line[0].Function == nil {
		return "unknown"
	}

	return s.Location[0].Line[0].Function.Name
}
