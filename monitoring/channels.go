package monitoring

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sarchlab/atapio/ata"
)

type channelRsp struct {
	Name       string `json:"name"`
	Base       uint16 `json:"base"`
	Control    uint16 `json:"control"`
	Addressing string `json:"addressing"`
}

func (m *Monitor) listChannels(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	rsp := make([]channelRsp, 0, len(m.channels))
	for _, ch := range m.channels {
		rsp = append(rsp, channelRsp{
			Name:       ch.Name(),
			Base:       ch.Base(),
			Control:    ch.Control(),
			Addressing: ch.Addressing().String(),
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) channelStats(w http.ResponseWriter, r *http.Request) {
	ch := m.findChannelOr404(w, mux.Vars(r)["name"])
	if ch == nil {
		return
	}

	writeJSON(w, ch.Stats())
}

func (m *Monitor) identify(w http.ResponseWriter, r *http.Request) {
	ch, drive, ok := m.parseChannelAndDrive(w, r)
	if !ok {
		return
	}

	id, err := ch.Identify(r.Context(), drive)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	writeJSON(w, id)
}

func (m *Monitor) flush(w http.ResponseWriter, r *http.Request) {
	ch, drive, ok := m.parseChannelAndDrive(w, r)
	if !ok {
		return
	}

	if err := ch.Flush(r.Context(), drive); err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) readSectors(w http.ResponseWriter, r *http.Request) {
	ch, drive, ok := m.parseChannelAndDrive(w, r)
	if !ok {
		return
	}

	lba, ok := parseLBA(w, r)
	if !ok {
		return
	}

	count := uint64(1)
	if s := r.URL.Query().Get("count"); s != "" {
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil || n > maxSectorsPerRequest {
			http.Error(w, fmt.Sprintf("invalid count %q", s),
				http.StatusBadRequest)
			return
		}

		count = n
	}

	data, err := ch.ReadSectors(r.Context(), drive, lba, uint16(count))
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, err = w.Write(data)
	dieOnErr(err)
}

func (m *Monitor) writeSectors(w http.ResponseWriter, r *http.Request) {
	ch, drive, ok := m.parseChannelAndDrive(w, r)
	if !ok {
		return
	}

	lba, ok := parseLBA(w, r)
	if !ok {
		return
	}

	limit := int64(maxSectorsPerRequest*ata.SectorSize + 1)
	data, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(data) == 0 || len(data)%ata.SectorSize != 0 ||
		len(data) > maxSectorsPerRequest*ata.SectorSize {
		http.Error(w,
			fmt.Sprintf("body must be 1 to %d whole sectors, got %d bytes",
				maxSectorsPerRequest, len(data)),
			http.StatusBadRequest)
		return
	}

	count := uint16(len(data) / ata.SectorSize)

	err = ch.WriteSectors(r.Context(), drive, lba, count, data)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) parseChannelAndDrive(
	w http.ResponseWriter,
	r *http.Request,
) (*ata.Channel, ata.Drive, bool) {
	vars := mux.Vars(r)

	ch := m.findChannelOr404(w, vars["name"])
	if ch == nil {
		return nil, 0, false
	}

	drive, err := ata.ParseDrive(vars["drive"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, 0, false
	}

	return ch, drive, true
}

func parseLBA(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	s := mux.Vars(r)["lba"]

	lba, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid lba %q", s), http.StatusBadRequest)
		return 0, false
	}

	return lba, true
}

// statusOf maps driver errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ata.ErrInvalidCount),
		errors.Is(err, ata.ErrInvalidDrive),
		errors.Is(err, ata.ErrLBAOutOfRange),
		errors.Is(err, ata.ErrBufferLength):
		return http.StatusBadRequest
	case errors.Is(err, ata.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
