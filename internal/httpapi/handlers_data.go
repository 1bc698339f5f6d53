package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sensorhost/sensorhost/internal/apperr"
	"github.com/sensorhost/sensorhost/internal/query"
	"github.com/sensorhost/sensorhost/internal/registry"
	"github.com/sensorhost/sensorhost/internal/store"
)

// maxSensorDataLimit bounds an unbounded or absurd client-supplied limit
// on get-sensor-data, so one request can't force a full table scan.
const maxSensorDataLimit = 10000

type cursorDTO struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

type getSensorDataRequest struct {
	DeviceID uint32    `json:"device_id"`
	Sensor   string    `json:"sensor"`
	Fields   []string  `json:"fields"`
	SortCol  string    `json:"sort_column"`
	SortDesc bool      `json:"sort_desc"`
	From     *cursorDTO `json:"from,omitempty"`
	To       *cursorDTO `json:"to,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

// handleGetSensorData godoc
//
//	@Summary	Cursor-paginate a sensor's data table
//	@Tags		data
//	@Accept		json
//	@Produce	json
//	@Param		body	body	getSensorDataRequest	true	"query"
//	@Success	200	{array}	map[string]any
//	@Failure	400	{object}	Problem
//	@Failure	404	{object}	Problem
//	@Router		/api/v1/get-sensor-data [post]
func (s *Server) handleGetSensorData(w http.ResponseWriter, r *http.Request) {
	var req getSensorDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}
	if len(req.Fields) == 0 {
		BadRequest(w, "fields must be non-empty", r.URL.Path)
		return
	}

	sensors, err := s.controller.DeviceSensors(registry.DeviceID(req.DeviceID))
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}
	var tableName string
	for _, sn := range sensors {
		if sn.Name == req.Sensor {
			tableName = sn.TableName
			break
		}
	}
	if tableName == "" {
		WriteError(w, apperr.New(apperr.NotFound, "sensor not bound to device"), r.URL.Path)
		return
	}
	if err := store.ValidateIdentifier(tableName); err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}

	sortCol := req.SortCol
	if sortCol == "" {
		sortCol = req.Fields[0]
	}

	filter := query.SensorDataFilter{CursorColumn: sortCol, Descending: req.SortDesc}
	if req.From != nil {
		filter.From = req.From.Value
		filter.HasFrom = true
	}
	if req.To != nil {
		filter.To = req.To.Value
		filter.HasTo = true
	}
	limit := req.Limit
	if limit <= 0 || limit > maxSensorDataLimit {
		limit = maxSensorDataLimit
	}
	filter.Limit = limit
	filter.HasLimit = true

	b := query.LowerSensorDataFilter(query.Select(store.QuoteIdentifier(tableName)).Columns(req.Fields...), filter)
	sqlStr, args, err := b.Build()
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}

	rows, err := s.store.DB().QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		WriteError(w, apperr.Wrap(apperr.IO, "query sensor data", err), r.URL.Path)
		return
	}
	defer rows.Close()

	out, err := scanGenericRows(rows, req.Fields)
	if err != nil {
		WriteError(w, apperr.Wrap(apperr.IO, "scan sensor data", err), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// scanGenericRows scans rows into one map per row, keyed by fields, using
// database/sql's ability to scan arbitrary column types into *any.
// []byte results (text/jsonb columns) are converted to string so they
// marshal as JSON strings rather than base64.
func scanGenericRows(rows *sql.Rows, fields []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0)
	for rows.Next() {
		vals := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f] = normalizeScanned(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeScanned(v any) any {
	switch tv := v.(type) {
	case []byte:
		return string(tv)
	case time.Time:
		return tv.Format(time.RFC3339Nano)
	default:
		return v
	}
}

type monitorConfDTO struct {
	ID       uint32          `json:"id,omitempty"`
	DeviceID uint32          `json:"device_id"`
	Sensor   string          `json:"sensor"`
	Typ      string          `json:"typ"`
	Config   json.RawMessage `json:"config"`
}

// handleSaveMonitorConf godoc
//
//	@Summary	Create or replace a monitoring configuration row
//	@Tags		data
//	@Accept		json
//	@Produce	json
//	@Param		body	body	monitorConfDTO	true	"monitor configuration"
//	@Success	200	{object}	monitorConfDTO
//	@Failure	400	{object}	Problem
//	@Router		/api/v1/save-monitor-conf [post]
func (s *Server) handleSaveMonitorConf(w http.ResponseWriter, r *http.Request) {
	var req monitorConfDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}
	if req.Sensor == "" || req.Typ == "" || len(req.Config) == 0 {
		BadRequest(w, "sensor, typ, and config are required", r.URL.Path)
		return
	}

	var sqlStr string
	var args []any
	var err error
	if req.ID == 0 {
		sqlStr, args, err = query.Insert("monitor_conf").
			Columns("device_id", "sensor", "typ", "config").
			Values(req.DeviceID, req.Sensor, req.Typ, []byte(req.Config)).
			Suffix("RETURNING id").
			Build()
	} else {
		sqlStr, args, err = query.Update("monitor_conf").
			Set("device_id", req.DeviceID).
			Set("sensor", req.Sensor).
			Set("typ", req.Typ).
			Set("config", []byte(req.Config)).
			Where(query.Eq("id", req.ID)).
			Build()
	}
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}

	if req.ID == 0 {
		row := s.store.DB().QueryRowContext(r.Context(), sqlStr, args...)
		if err := row.Scan(&req.ID); err != nil {
			WriteError(w, apperr.Wrap(apperr.IO, "insert monitor conf", err), r.URL.Path)
			return
		}
	} else if err := s.store.Exec(r.Context(), sqlStr, args...); err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

type getMonitorConfListRequest struct {
	DeviceID uint32 `json:"device_id"`
}

// handleGetMonitorConfList godoc
//
//	@Summary	List monitoring configuration rows for a device
//	@Tags		data
//	@Accept		json
//	@Produce	json
//	@Param		body	body	getMonitorConfListRequest	true	"device id"
//	@Success	200	{array}	monitorConfDTO
//	@Router		/api/v1/get-monitor-conf-list [post]
func (s *Server) handleGetMonitorConfList(w http.ResponseWriter, r *http.Request) {
	var req getMonitorConfListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed JSON body", r.URL.Path)
		return
	}

	sqlStr, args, err := query.Select("monitor_conf").
		Columns("id", "device_id", "sensor", "typ", "config").
		Where(query.Eq("device_id", req.DeviceID)).
		Build()
	if err != nil {
		WriteError(w, err, r.URL.Path)
		return
	}

	out := make([]monitorConfDTO, 0)
	scanErr := s.store.Select(r.Context(), sqlStr, args, func(rows *sql.Rows) error {
		var m monitorConfDTO
		var cfg []byte
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.Sensor, &m.Typ, &cfg); err != nil {
			return err
		}
		m.Config = cfg
		out = append(out, m)
		return nil
	})
	if scanErr != nil {
		WriteError(w, scanErr, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
