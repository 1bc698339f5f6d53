package query

// SensorDataFilter is the lowered form of a get-sensor-data request
// (spec.md §4.G): an optional cursor bound, a sort direction, and a row
// limit. LowerSensorDataFilter applies it to a SELECT builder so that
// ascending queries resume with "> from" and descending queries resume
// with "< from" — the cursor inequality flips with sort direction
// because paging always moves away from the last-seen row.
type SensorDataFilter struct {
	CursorColumn string
	From         any
	HasFrom      bool
	To           any
	HasTo        bool
	Descending   bool
	Limit        int
	HasLimit     bool
}

// LowerSensorDataFilter applies f's cursor/bound/limit onto b, returning
// b for chaining.
func LowerSensorDataFilter(b *Builder, f SensorDataFilter) *Builder {
	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}

	if f.HasFrom {
		if f.Descending {
			b.Where(Lt(f.CursorColumn, f.From))
		} else {
			b.Where(Gt(f.CursorColumn, f.From))
		}
	}
	if f.HasTo {
		if f.Descending {
			b.Where(Gt(f.CursorColumn, f.To))
		} else {
			b.Where(Lt(f.CursorColumn, f.To))
		}
	}

	b.OrderBy(f.CursorColumn, dir)
	if f.HasLimit {
		b.Limit(f.Limit)
	}
	return b
}
