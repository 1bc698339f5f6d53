// Package lifecycle is the Device Lifecycle Controller: the only
// component that composes the Module, Registry, and Persistence layers.
// It owns the device state machine (spec.md §4.D): start_device_init,
// connect_device, obtain_device_conf_info, configure_device, and
// interrupt_device_init, plus the startup reconstruction pass that
// rebuilds in-memory Device cells from persisted rows.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sensorhost/sensorhost/internal/apperr"
	"github.com/sensorhost/sensorhost/internal/handler"
	"github.com/sensorhost/sensorhost/internal/module"
	"github.com/sensorhost/sensorhost/internal/query"
	"github.com/sensorhost/sensorhost/internal/registry"
	"github.com/sensorhost/sensorhost/internal/store"
)

// Loader loads a driver binary at path, handing it dataDir as its scratch
// space. Production wiring points this at module.Load; tests point it at
// a factory returning moduletest.Fake so no native code loads.
type Loader func(path, dataDir string) (module.Driver, error)

// Controller composes registry.Registry, store.Store, and a Loader into
// the device lifecycle state machine.
type Controller struct {
	reg         *registry.Registry
	store       *store.Store
	logger      *zap.Logger
	load        Loader
	broadcaster handler.Broadcaster
}

// New builds a Controller. load is usually module.Load adapted to the
// Loader signature. broadcaster may be nil; when set (internal/httpapi's
// websocket hub), every device's Message Handler fans its stream out to
// it in addition to persisting.
func New(reg *registry.Registry, st *store.Store, logger *zap.Logger, load Loader, broadcaster handler.Broadcaster) *Controller {
	return &Controller{reg: reg, store: st, logger: logger, load: load, broadcaster: broadcaster}
}

const maxDisplayNameLen = 255

// validateDisplayName enforces spec.md §4.D step 1: printable,
// length-bounded, and containing at least one word character (so names
// made entirely of whitespace or punctuation are rejected).
func validateDisplayName(name string) error {
	if len(name) == 0 || len(name) > maxDisplayNameLen {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("display name must be 1-%d characters", maxDisplayNameLen))
	}
	hasWordChar := false
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return apperr.New(apperr.InvalidInput, "display name must be printable")
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			hasWordChar = true
		}
	}
	if !hasWordChar {
		return apperr.New(apperr.InvalidInput, "display name must contain at least one word character")
	}
	return nil
}

// StartDeviceInit begins a device's two-phase lifecycle: it allocates an
// ID, materializes its directory tree and driver binary, persists its
// device row, loads the driver, and asks it for connection parameters.
// Any failure after directory creation rolls back everything already
// committed.
func (c *Controller) StartDeviceInit(ctx context.Context, displayName string, binary io.Reader) (registry.DeviceID, []module.ConnParamDescriptor, error) {
	if err := validateDisplayName(displayName); err != nil {
		return 0, nil, err
	}
	canonical := registry.Canonicalize(displayName)
	if canonical == "" {
		return 0, nil, apperr.New(apperr.InvalidInput, "display name has no usable characters for a canonical name")
	}

	id := c.reg.NextID()

	if err := c.reg.CreateDeviceDirs(id, canonical); err != nil {
		return 0, nil, err
	}

	libPath := c.reg.LibraryPath(id, canonical)
	if err := writeBinary(libPath, binary); err != nil {
		c.reg.RemoveDeviceDirs(id, canonical)
		return 0, nil, err
	}

	moduleDir := c.reg.ModuleDir(id, canonical)
	dataDir := c.reg.DataDir(id, canonical)

	if err := c.insertDeviceRow(ctx, id, canonical, displayName, moduleDir, dataDir); err != nil {
		c.reg.RemoveDeviceDirs(id, canonical)
		return 0, nil, err
	}

	instance, err := c.load(libPath, dataDir)
	if err != nil {
		c.deleteDeviceRow(ctx, id)
		c.reg.RemoveDeviceDirs(id, canonical)
		return 0, nil, err
	}

	descriptors, err := instance.ObtainDeviceConnInfo(ctx)
	if err != nil {
		instance.Close()
		c.deleteDeviceRow(ctx, id)
		c.reg.RemoveDeviceDirs(id, canonical)
		return 0, nil, err
	}

	c.reg.Put(&registry.Device{
		ID:            id,
		DisplayName:   displayName,
		CanonicalName: canonical,
		ModuleDir:     moduleDir,
		DataDir:       dataDir,
		InitState:     registry.StateDevice,
		Instance:      instance,
		Sensors:       map[string]registry.Sensor{},
	})

	return id, descriptors, nil
}

func writeBinary(path string, binary io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.IO, "create driver binary", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, binary); err != nil {
		return apperr.Wrap(apperr.IO, "write driver binary", err)
	}
	return nil
}

func (c *Controller) insertDeviceRow(ctx context.Context, id registry.DeviceID, canonical, displayName, moduleDir, dataDir string) error {
	sql, args, err := query.Insert("device").
		Columns("id", "name", "display_name", "module_dir", "data_dir", "init_state").
		Values(uint32(id), canonical, displayName, moduleDir, dataDir, registry.StateDevice.String()).
		Build()
	if err != nil {
		return err
	}
	return c.store.Exec(ctx, sql, args...)
}

func (c *Controller) deleteDeviceRow(ctx context.Context, id registry.DeviceID) {
	sql, args, err := query.Delete("device").Where(query.Eq("id", uint32(id))).Build()
	if err != nil {
		return
	}
	if err := c.store.Exec(ctx, sql, args...); err != nil {
		c.logger.Error("rollback device row", zap.Uint32("device_id", uint32(id)), zap.Error(err))
	}
}

// lockedDevice resolves id and acquires its per-device lock, returning an
// unlock func the caller must defer.
func (c *Controller) lockedDevice(id registry.DeviceID) (*registry.Device, func(), error) {
	d, ok := c.reg.Get(id)
	if !ok {
		return nil, nil, apperr.New(apperr.NotFound, fmt.Sprintf("device %d not found", uint32(id)))
	}
	d.Lock()
	return d, d.Unlock, nil
}

// ConnectDevice applies user-supplied connection values. No state
// transition occurs; a non-OK ComError is surfaced to the caller as-is.
func (c *Controller) ConnectDevice(ctx context.Context, id registry.DeviceID, values []module.ConfEntry) (module.ComError, error) {
	d, unlock, err := c.lockedDevice(id)
	if err != nil {
		return module.ComUnknown, err
	}
	defer unlock()
	return d.Instance.ConnectDevice(ctx, values)
}

// ObtainDeviceConfInfo is a driver passthrough under the device lock.
func (c *Controller) ObtainDeviceConfInfo(ctx context.Context, id registry.DeviceID) ([]module.ConfigInfo, error) {
	d, unlock, err := c.lockedDevice(id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return d.Instance.ObtainDeviceConfInfo(ctx)
}

// ConfigureDevice applies configuration, binds every reported sensor to
// its own table in a single transaction, and — on commit — transitions
// the device to Sensors and starts streaming (spec.md §4.D). A failure
// in Start after the transaction commits is logged, not returned: the
// row already says Sensors, so the next reconstruction pass retries it.
func (c *Controller) ConfigureDevice(ctx context.Context, id registry.DeviceID, entries []module.ConfEntry) (module.ComError, error) {
	d, unlock, err := c.lockedDevice(id)
	if err != nil {
		return module.ComUnknown, err
	}
	defer unlock()

	comErr, err := d.Instance.ConfigureDevice(ctx, entries)
	if err != nil || comErr != module.ComOK {
		return comErr, err
	}

	sensorInfos, err := d.Instance.ObtainSensorTypeInfos(ctx)
	if err != nil {
		return module.ComOK, err
	}

	sensors := make(map[string]registry.Sensor, len(sensorInfos))
	tableByName := make(map[string]string, len(sensorInfos))
	for _, info := range sensorInfos {
		tableName := sensorTableName(id, info.Name)
		sensors[info.Name] = registry.Sensor{
			Name:      info.Name,
			Columns:   info.Columns,
			TableName: tableName,
			BindingID: uuid.New().String(),
		}
		tableByName[info.Name] = tableName
	}

	txErr := c.store.Tx(ctx, func(tx *sql.Tx) error {
		for _, info := range sensorInfos {
			tbl := store.Table{Name: sensors[info.Name].TableName, Columns: store.ColumnsFromSensorType(info)}
			ddl, err := tbl.DDL()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, ddl); err != nil {
				return apperr.Wrap(apperr.IO, "create sensor table", err)
			}

			sql, args, err := query.Insert("device_sensor").
				Columns("binding_id", "device_id", "sensor_name", "sensor_table_name").
				Values(sensors[info.Name].BindingID, uint32(id), info.Name, sensors[info.Name].TableName).
				Build()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, sql, args...); err != nil {
				return apperr.Wrap(apperr.IO, "bind sensor table", err)
			}
		}

		sql, args, err := query.Update("device").
			Set("init_state", registry.StateSensors.String()).
			Where(query.Eq("id", uint32(id))).
			Build()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sql, args...); err != nil {
			return apperr.Wrap(apperr.IO, "transition device to sensors", err)
		}
		return nil
	})
	if txErr != nil {
		return module.ComOK, txErr
	}

	d.InitState = registry.StateSensors
	d.Sensors = sensors
	h := handler.New(uint32(id), tableByName, c.store, c.broadcaster, c.logger)
	d.Handler = h

	if err := d.Instance.Start(h.Sink); err != nil {
		c.logger.Error("start device after configure", zap.Uint32("device_id", uint32(id)), zap.Error(err))
	}

	return module.ComOK, nil
}

func sensorTableName(id registry.DeviceID, sensorName string) string {
	return fmt.Sprintf("%d__%s", uint32(id), sensorName)
}

// InterruptDeviceInit aborts a device still in the Device init phase:
// deletes its row, removes its directory tree, and drops the Device cell.
// Fails with FailedPrecondition once sensors are bound.
func (c *Controller) InterruptDeviceInit(ctx context.Context, id registry.DeviceID) error {
	d, unlock, err := c.lockedDevice(id)
	if err != nil {
		return err
	}
	defer unlock()

	if d.InitState != registry.StateDevice {
		return apperr.New(apperr.FailedPrecondition, "device already has sensors bound")
	}

	txErr := c.store.Tx(ctx, func(tx *sql.Tx) error {
		sql, args, err := query.Delete("device").Where(query.Eq("id", uint32(id))).Build()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, sql, args...)
		return err
	})
	if txErr != nil {
		return apperr.Wrap(apperr.IO, "delete device row", txErr)
	}

	if err := c.reg.RemoveDeviceDirs(id, d.CanonicalName); err != nil {
		return err
	}
	if err := d.Instance.Close(); err != nil {
		c.logger.Warn("close driver instance on interrupt", zap.Uint32("device_id", uint32(id)), zap.Error(err))
	}
	c.reg.Delete(id)
	return nil
}

// DeviceListing is the external-facing summary of one registered device.
type DeviceListing struct {
	ID          registry.DeviceID
	DisplayName string
	InitState   registry.InitState
}

// ListDevices returns every Sensors-state device (spec.md §3: devices
// still mid-init are not surfaced to external listings).
func (c *Controller) ListDevices() []DeviceListing {
	all := c.reg.All()
	out := make([]DeviceListing, 0, len(all))
	for _, d := range all {
		if d.InitState != registry.StateSensors {
			continue
		}
		out = append(out, DeviceListing{ID: d.ID, DisplayName: d.DisplayName, InitState: d.InitState})
	}
	return out
}

// DeviceSensors returns the sensors bound to id.
func (c *Controller) DeviceSensors(id registry.DeviceID) ([]registry.Sensor, error) {
	d, ok := c.reg.Get(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("device %d not found", uint32(id)))
	}
	d.Lock()
	defer d.Unlock()
	out := make([]registry.Sensor, 0, len(d.Sensors))
	for _, s := range d.Sensors {
		out = append(out, s)
	}
	return out, nil
}

// Store exposes the underlying persistence facade for read-heavy external
// endpoints (sensor data queries, monitor configuration) that don't need
// the device state machine.
func (c *Controller) Store() *store.Store {
	return c.store
}

// Shutdown drives every registered device through stop -> destroy ->
// unload (spec.md §5), in whatever order Registry.All returns them.
// Per-device failures are logged; Shutdown always returns nil so one
// stuck driver doesn't block the rest of the process from exiting.
func (c *Controller) Shutdown(ctx context.Context) error {
	for _, d := range c.reg.All() {
		d.Lock()
		if d.Handler != nil {
			d.Handler.Stop()
		}
		if err := d.Instance.Close(); err != nil {
			c.logger.Error("close driver on shutdown", zap.Uint32("device_id", uint32(d.ID)), zap.Error(err))
		}
		d.Unlock()
	}
	return nil
}

type deviceRow struct {
	ID          uint32
	Name        string
	DisplayName string
	ModuleDir   string
	DataDir     string
	InitState   string
}

func (c *Controller) selectDeviceRows(ctx context.Context) ([]deviceRow, error) {
	sql, args, err := query.Select("device").
		Columns("id", "name", "display_name", "module_dir", "data_dir", "init_state").
		Build()
	if err != nil {
		return nil, err
	}

	var rows []deviceRow
	err = c.store.Select(ctx, sql, args, func(r *sql.Rows) error {
		var row deviceRow
		if err := r.Scan(&row.ID, &row.Name, &row.DisplayName, &row.ModuleDir, &row.DataDir, &row.InitState); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// Reconstruct rebuilds every persisted device's in-memory cell at
// startup: loads its driver, and — if it's already in the Sensors state
// — re-binds its sensor tables and restarts streaming. One device's
// failure is logged and skipped; it never blocks the rest (spec.md
// §4.C's partial-operation policy).
func (c *Controller) Reconstruct(ctx context.Context) error {
	rows, err := c.selectDeviceRows(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, row := range rows {
		row := row
		g.Go(func() error {
			if err := c.reconstructOne(ctx, row); err != nil {
				c.logger.Error("reconstruct device", zap.Uint32("device_id", row.ID), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Controller) reconstructOne(ctx context.Context, row deviceRow) error {
	libPath := filepath.Join(row.ModuleDir, "lib"+registry.LibraryExt())
	instance, err := c.load(libPath, row.DataDir)
	if err != nil {
		return err
	}

	d := &registry.Device{
		ID:            registry.DeviceID(row.ID),
		DisplayName:   row.DisplayName,
		CanonicalName: row.Name,
		ModuleDir:     row.ModuleDir,
		DataDir:       row.DataDir,
		Instance:      instance,
		Sensors:       map[string]registry.Sensor{},
	}

	if row.InitState != registry.StateSensors.String() {
		d.InitState = registry.StateDevice
		c.reg.Put(d)
		return nil
	}
	d.InitState = registry.StateSensors

	sensors, tableByName, err := c.loadSensorBindings(ctx, row.ID)
	if err != nil {
		instance.Close()
		return err
	}
	d.Sensors = sensors

	h := handler.New(row.ID, tableByName, c.store, c.broadcaster, c.logger)
	d.Handler = h
	c.reg.Put(d)

	if err := instance.Start(h.Sink); err != nil {
		c.logger.Error("restart device stream", zap.Uint32("device_id", row.ID), zap.Error(err))
	}
	return nil
}

func (c *Controller) loadSensorBindings(ctx context.Context, deviceID uint32) (map[string]registry.Sensor, map[string]string, error) {
	sql, args, err := query.Select("device_sensor").
		Columns("sensor_name", "sensor_table_name", "binding_id").
		Where(query.Eq("device_id", deviceID)).
		Build()
	if err != nil {
		return nil, nil, err
	}

	type binding struct {
		name, table, bindingID string
	}
	var bindings []binding
	err = c.store.Select(ctx, sql, args, func(r *sql.Rows) error {
		var b binding
		if err := r.Scan(&b.name, &b.table, &b.bindingID); err != nil {
			return err
		}
		bindings = append(bindings, b)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sensors := map[string]registry.Sensor{}
	tableByName := map[string]string{}
	for _, b := range bindings {
		columns, err := c.loadSensorColumns(ctx, b.table)
		if err != nil {
			return nil, nil, err
		}
		sensors[b.name] = registry.Sensor{Name: b.name, Columns: columns, TableName: b.table, BindingID: b.bindingID}
		tableByName[b.name] = b.table
	}
	return sensors, tableByName, nil
}

// loadSensorColumns rebuilds a sensor table's column list by introspecting
// information_schema.columns, reversing the type mapping configure_device
// applied when the table was created. An unrecognized udt_name (a column
// that didn't come from sqlType's mapping — e.g. a manually-altered column)
// is a hard error per spec.md §4.F, which causes the whole device to be
// skipped and logged by reconstructOne rather than reconstructed with a
// silently incomplete schema.
func (c *Controller) loadSensorColumns(ctx context.Context, tableName string) ([]module.Column, error) {
	sql, args, err := query.Select("information_schema.columns").
		Columns("column_name", "udt_name").
		Where(query.Eq("table_name", tableName)).
		OrderBy("ordinal_position", "ASC").
		Build()
	if err != nil {
		return nil, err
	}

	var columns []module.Column
	err = c.store.Select(ctx, sql, args, func(r *sql.Rows) error {
		var colName, udtName string
		if err := r.Scan(&colName, &udtName); err != nil {
			return err
		}
		dataType, err := store.SensorTypeFromUDTName(udtName)
		if err != nil {
			return apperr.Wrap(apperr.Internal, fmt.Sprintf("sensor table %q column %q", tableName, colName), err)
		}
		columns = append(columns, module.Column{Name: colName, Type: dataType})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}
