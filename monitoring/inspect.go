package monitoring

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/syifan/goseth"
)

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

// A Snapshotter is inspected through a copy of its state rather than through
// its live fields, which its own goroutines may be changing.
type Snapshotter interface {
	Snapshot() any
}

// inspectComponent dumps the fields of a component, such as the counters of
// a channel or the registers of a simulated device.
func (m *Monitor) inspectComponent(w http.ResponseWriter, r *http.Request) {
	m.inspect(w, mux.Vars(r)["name"], "")
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

// inspectField dumps one field of a component. The field is a dot separated
// path, for example "Stats.SectorsRead".
func (m *Monitor) inspectField(w http.ResponseWriter, r *http.Request) {
	var req fieldReq
	if err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.inspect(w, req.CompName, req.FieldName)
}

func (m *Monitor) inspect(w http.ResponseWriter, name, field string) {
	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	var root any = component
	if s, ok := component.(Snapshotter); ok {
		root = s.Snapshot()
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(root)
	serializer.SetMaxDepth(1)

	if field != "" {
		err := serializer.SetEntryPoint(strings.Split(field, "."))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	dieOnErr(serializer.Serialize(w))
}
