package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sensorhost/sensorhost/internal/apperr"
	"github.com/sensorhost/sensorhost/internal/module"
)

// identifierPattern enforces spec.md I6: snake_case, <=255 chars,
// [A-Za-z0-9]+ segments joined by single underscores.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9]+(_[A-Za-z0-9]+)*$`)

// sensorTableNamePattern matches the mandatory <device_id>__<sensor_name>
// sensor table name (spec.md §4.F): a numeric device id, a literal double
// underscore, then a sensor name that itself satisfies identifierPattern.
// The double underscore has no alnum run between its two underscores, so
// identifierPattern alone rejects every such name; this pattern is checked
// as an alternative, not a replacement.
var sensorTableNamePattern = regexp.MustCompile(`^[0-9]+__[A-Za-z0-9]+(_[A-Za-z0-9]+)*$`)

// ValidateIdentifier checks a table or column name against invariant I6,
// additionally accepting the composed sensor-table form.
func ValidateIdentifier(name string) error {
	if len(name) == 0 || len(name) > 255 {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("identifier %q must be 1-255 chars", name))
	}
	if !identifierPattern.MatchString(name) && !sensorTableNamePattern.MatchString(name) {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("identifier %q must be snake_case", name))
	}
	return nil
}

// QuoteIdentifier double-quotes an already-validated identifier. Table
// names like "1__temperature" contain digits and a double-underscore
// separator, which is exactly why they're always emitted quoted rather
// than bare (spec.md §4.F). Exported so callers outside this package
// (internal/handler's sensor insert, internal/httpapi's get-sensor-data
// read) quote dynamic sensor table names the same way DDL does.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sqlType maps a SensorDataType to its Postgres column type (spec.md
// §4.F's type mapping table).
func sqlType(t module.SensorDataType) (string, error) {
	switch t {
	case module.TypeInt16:
		return "int2", nil
	case module.TypeInt32:
		return "int4", nil
	case module.TypeInt64:
		return "int8", nil
	case module.TypeFloat32:
		return "float4", nil
	case module.TypeFloat64:
		return "float8", nil
	case module.TypeTimestamp:
		return "timestamp", nil
	case module.TypeString:
		return "text", nil
	case module.TypeJSON:
		return "jsonb", nil
	default:
		return "", apperr.New(apperr.InvalidInput, fmt.Sprintf("unknown sensor data type %v", t))
	}
}

// SensorTypeFromUDTName reverses sqlType for catalog introspection
// (information_schema.columns.udt_name). An unrecognized udt_name is a
// hard error per spec.md §4.F.
func SensorTypeFromUDTName(udtName string) (module.SensorDataType, error) {
	switch udtName {
	case "int2":
		return module.TypeInt16, nil
	case "int4":
		return module.TypeInt32, nil
	case "int8":
		return module.TypeInt64, nil
	case "float4":
		return module.TypeFloat32, nil
	case "float8":
		return module.TypeFloat64, nil
	case "timestamp":
		return module.TypeTimestamp, nil
	case "text":
		return module.TypeString, nil
	case "jsonb":
		return module.TypeJSON, nil
	default:
		return 0, apperr.New(apperr.Internal, fmt.Sprintf("unknown catalog udt_name %q", udtName))
	}
}

// Column is one column in a Table, with the options the spec's §4.F Table
// description allows: primary key, unique, not null, auto-increment
// (valid only on Int32/Int64).
type Column struct {
	Name          string
	Type          module.SensorDataType
	PrimaryKey    bool
	Unique        bool
	NotNull       bool
	AutoIncrement bool
}

// Table is a structured description of a table to create, used for the
// per-sensor tables synthesized from driver-reported type metadata.
type Table struct {
	Name    string
	Columns []Column
}

// DDL renders the CREATE TABLE statement for t, validating every
// identifier first.
func (t Table) DDL() (string, error) {
	if err := ValidateIdentifier(t.Name); err != nil {
		return "", err
	}
	if len(t.Columns) == 0 {
		return "", apperr.New(apperr.InvalidInput, fmt.Sprintf("table %q has no columns", t.Name))
	}

	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return "", err
		}
		if c.AutoIncrement && c.Type != module.TypeInt32 && c.Type != module.TypeInt64 {
			return "", apperr.New(apperr.InvalidInput, fmt.Sprintf("column %q: auto-increment only valid on Int32/Int64", c.Name))
		}

		var colType string
		if c.AutoIncrement {
			if c.Type == module.TypeInt64 {
				colType = "bigserial"
			} else {
				colType = "serial"
			}
		} else {
			sqt, err := sqlType(c.Type)
			if err != nil {
				return "", err
			}
			colType = sqt
		}

		def := fmt.Sprintf("%s %s", QuoteIdentifier(c.Name), colType)
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		if c.Unique && !c.PrimaryKey {
			def += " UNIQUE"
		}
		if c.NotNull && !c.PrimaryKey {
			def += " NOT NULL"
		}
		parts = append(parts, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", QuoteIdentifier(t.Name), strings.Join(parts, ", ")), nil
}

// CreateTable executes t's DDL.
func (s *Store) CreateTable(ctx context.Context, t Table) error {
	ddl, err := t.DDL()
	if err != nil {
		return err
	}
	return s.Exec(ctx, ddl)
}

// ColumnsFromSensorType converts a driver-reported sensor type's columns
// into store Columns, marking every data column NOT NULL per spec.md §6.
func ColumnsFromSensorType(info module.SensorTypeInfo) []Column {
	cols := make([]Column, len(info.Columns))
	for i, c := range info.Columns {
		cols[i] = Column{Name: c.Name, Type: c.Type, NotNull: true}
	}
	return cols
}
