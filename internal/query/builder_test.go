package query

import "testing"

func TestSelectBuild(t *testing.T) {
	sql, args, err := Select("device").
		Columns("id", "name").
		Where(Eq("init_state", "SENSORS")).
		OrderBy("id", "ASC").
		Limit(10).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := `SELECT id, name FROM device WHERE init_state = $1 ORDER BY id ASC LIMIT 10`
	if sql != want {
		t.Errorf("Build() sql = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != "SENSORS" {
		t.Errorf("Build() args = %v, want [SENSORS]", args)
	}
}

func TestSelectBuild_NoColumns(t *testing.T) {
	if _, _, err := Select("device").Build(); err == nil {
		t.Error("expected error for select with no columns")
	}
}

func TestInsertBuild_MultiRow(t *testing.T) {
	sql, args, err := Insert("device_sensor").
		Columns("device_id", "sensor_name", "sensor_table_name").
		Values(1, "temp", "1__temp").
		Values(1, "humidity", "1__humidity").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := `INSERT INTO device_sensor (device_id, sensor_name, sensor_table_name) VALUES ($1, $2, $3), ($4, $5, $6)`
	if sql != want {
		t.Errorf("Build() sql = %q, want %q", sql, want)
	}
	if len(args) != 6 || args[3] != 1 || args[4] != "humidity" {
		t.Errorf("Build() args = %v", args)
	}
}

func TestInsertBuild_ArityMismatch(t *testing.T) {
	_, _, err := Insert("device").Columns("id", "name").Values(1).Build()
	if err == nil {
		t.Error("expected error for value tuple arity mismatch")
	}
}

func TestUpdateBuild(t *testing.T) {
	sql, args, err := Update("device").
		Set("display_name", "new name").
		Set("init_state", "SENSORS").
		Where(Eq("id", 1)).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := `UPDATE device SET display_name = $1, init_state = $2 WHERE id = $3`
	if sql != want {
		t.Errorf("Build() sql = %q, want %q", sql, want)
	}
	if len(args) != 3 || args[2] != 1 {
		t.Errorf("Build() args = %v", args)
	}
}

func TestDeleteBuild(t *testing.T) {
	sql, args, err := Delete("device").Where(Eq("id", 3)).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if sql != `DELETE FROM device WHERE id = $1` {
		t.Errorf("Build() sql = %q", sql)
	}
	if len(args) != 1 || args[0] != 3 {
		t.Errorf("Build() args = %v", args)
	}
}

func TestWhereIn(t *testing.T) {
	sql, args, err := Select("device").Columns("id").Where(In("id", 1, 2, 3)).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if sql != `SELECT id FROM device WHERE id IN ($1, $2, $3)` {
		t.Errorf("Build() sql = %q", sql)
	}
	if len(args) != 3 {
		t.Errorf("Build() args = %v", args)
	}
}

func TestWhereIn_Empty(t *testing.T) {
	sql, args, err := Select("device").Columns("id").Where(In("id")).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if sql != `SELECT id FROM device WHERE 1 = 0` {
		t.Errorf("Build() sql = %q", sql)
	}
	if len(args) != 0 {
		t.Errorf("Build() args = %v, want none", args)
	}
}

func TestSuffix(t *testing.T) {
	sql, _, err := Select("device").Columns("id").Where(Eq("id", 1)).Suffix("FOR UPDATE").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if sql != `SELECT id FROM device WHERE id = $1 FOR UPDATE` {
		t.Errorf("Build() sql = %q", sql)
	}
}

func TestLowerSensorDataFilter_Ascending(t *testing.T) {
	b := Select("1__temperature").Columns("ts", "value")
	sql, args, err := LowerSensorDataFilter(b, SensorDataFilter{
		CursorColumn: "ts",
		From:         100,
		HasFrom:      true,
		Limit:        50,
		HasLimit:     true,
	}).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := `SELECT ts, value FROM 1__temperature WHERE ts > $1 ORDER BY ts ASC LIMIT 50`
	if sql != want {
		t.Errorf("Build() sql = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != 100 {
		t.Errorf("Build() args = %v", args)
	}
}

func TestLowerSensorDataFilter_Descending(t *testing.T) {
	b := Select("1__temperature").Columns("ts", "value")
	sql, _, err := LowerSensorDataFilter(b, SensorDataFilter{
		CursorColumn: "ts",
		From:         100,
		HasFrom:      true,
		Descending:   true,
	}).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := `SELECT ts, value FROM 1__temperature WHERE ts < $1 ORDER BY ts DESC`
	if sql != want {
		t.Errorf("Build() sql = %q, want %q", sql, want)
	}
}
