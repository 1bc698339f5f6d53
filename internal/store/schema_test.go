package store

import (
	"strings"
	"testing"

	"github.com/sensorhost/sensorhost/internal/module"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"temperature", "1__temperature", "a_b_c", "ts"}
	for _, id := range valid {
		if err := ValidateIdentifier(id); err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "bad name", "bad-name", "__leading", "trailing_", strings.Repeat("a", 256)}
	for _, id := range invalid {
		if err := ValidateIdentifier(id); err == nil {
			t.Errorf("ValidateIdentifier(%q) = nil, want error", id)
		}
	}
}

func TestSensorTypeFromUDTName_RoundTrip(t *testing.T) {
	cases := map[string]module.SensorDataType{
		"int2":      module.TypeInt16,
		"int4":      module.TypeInt32,
		"int8":      module.TypeInt64,
		"float4":    module.TypeFloat32,
		"float8":    module.TypeFloat64,
		"timestamp": module.TypeTimestamp,
		"text":      module.TypeString,
		"jsonb":     module.TypeJSON,
	}
	for udt, want := range cases {
		got, err := SensorTypeFromUDTName(udt)
		if err != nil {
			t.Fatalf("SensorTypeFromUDTName(%q) error = %v", udt, err)
		}
		if got != want {
			t.Errorf("SensorTypeFromUDTName(%q) = %v, want %v", udt, got, want)
		}
	}
}

func TestSensorTypeFromUDTName_Unknown(t *testing.T) {
	if _, err := SensorTypeFromUDTName("geography"); err == nil {
		t.Error("expected error for unknown udt_name")
	}
}

func TestTableDDL(t *testing.T) {
	tbl := Table{
		Name: "1__temperature",
		Columns: []Column{
			{Name: "ts", Type: module.TypeTimestamp, NotNull: true},
			{Name: "value", Type: module.TypeFloat32, NotNull: true},
		},
	}
	ddl, err := tbl.DDL()
	if err != nil {
		t.Fatalf("DDL() error = %v", err)
	}
	for _, want := range []string{`"1__temperature"`, `"ts" timestamp NOT NULL`, `"value" float4 NOT NULL`} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL() = %q, want substring %q", ddl, want)
		}
	}
}

func TestTableDDL_RejectsInvalidAutoIncrement(t *testing.T) {
	tbl := Table{
		Name: "bad",
		Columns: []Column{
			{Name: "x", Type: module.TypeFloat32, AutoIncrement: true},
		},
	}
	if _, err := tbl.DDL(); err == nil {
		t.Error("expected error for auto-increment on a float column")
	}
}
