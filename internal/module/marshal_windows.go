//go:build windows

package module

import (
	"syscall"
	"time"
	"unsafe"
)

// The structs below mirror bridge.h field-for-field (same order, same
// widths) so a driver DLL built against the C header and one built against
// this Go-visible layout exchange identical bytes. Windows drivers get no
// cgo-generated marshalling, so the layout equivalence is load-bearing.

type wConfValue struct {
	Kind       uint8
	_          [7]byte // pad to 8-byte alignment before the int64 fields
	I64        int64
	I64Range   [2]int64
	F64        float64
	F64Range   [2]float64
	Str        uintptr
	ChoiceIdx  uint32
	_          [4]byte
}

type wConfEntry struct {
	ID       uint32
	HasValue uint8
	_        [3]byte
	Value    wConfValue
}

type wConfList struct {
	Entries uintptr
	Len     uintptr
}

type wConnParamDesc struct {
	Name uintptr
	Type uint8
	_    [7]byte
}

type wConnParamList struct {
	Items uintptr
	Len   uintptr
}

type wConfigLeaf struct {
	ID           uint32
	Kind         uint8
	Required     uint8
	HasDefault   uint8
	_            [1]byte // pad to 8-byte alignment before Default
	Default      wConfValue
	HasMin       uint8
	HasMax       uint8
	HasNeq       uint8
	_2           [5]byte
	Min          wConfValue
	Max          wConfValue
	Neq          wConfValue
	MatchRegex   uintptr
	Choices      uintptr
	ChoicesLen   uintptr
}

type wConfigNode struct {
	Name         uintptr
	Children     uintptr
	ChildrenLen  uintptr
	Leaf         wConfigLeaf
}

type wConfigTree struct {
	Items uintptr
	Len   uintptr
}

type wColumn struct {
	Name uintptr
	Type uint8
	_    [7]byte
}

type wSensorTypeInfo struct {
	Name       uintptr
	Columns    uintptr
	ColumnsLen uintptr
}

type wSensorTypeList struct {
	Items uintptr
	Len   uintptr
}

type wSensorValue struct {
	Name        uintptr
	Type        uint8
	_           [7]byte
	I64         int64
	F64         float64
	Str         uintptr
	UnixSeconds int64
}

type wMessage struct {
	Kind       uint8
	_          [7]byte
	SensorName uintptr
	Data       uintptr
	DataLen    uintptr
	Level      uint8
	_2         [7]byte
	Text       uintptr
}

func wGoString(p uintptr) string {
	if p == 0 {
		return ""
	}
	return windowsCString(p)
}

// windowsCString reads a NUL-terminated byte string out of driver memory.
// Must run before the callback that produced p returns, same ownership
// rule as the POSIX path (spec.md M2).
func windowsCString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var buf []byte
	for i := uintptr(0); ; i++ {
		b := *(*byte)(unsafe.Pointer(p + i))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

func decodeWindowsConnParamList(p uintptr) []ConnParamDescriptor {
	if p == 0 {
		return nil
	}
	list := (*wConnParamList)(unsafe.Pointer(p))
	if list.Len == 0 {
		return nil
	}
	items := unsafe.Slice((*wConnParamDesc)(unsafe.Pointer(list.Items)), int(list.Len))
	out := make([]ConnParamDescriptor, len(items))
	for i, it := range items {
		out[i] = ConnParamDescriptor{Name: wGoString(it.Name), Type: SensorDataType(it.Type)}
	}
	return out
}

func decodeWindowsConfValue(kind LeafKind, v wConfValue) ConfValue {
	return ConfValue{
		Kind:       kind,
		Int:        v.I64,
		IntRange:   v.I64Range,
		Float:      v.F64,
		FloatRange: v.F64Range,
		Str:        wGoString(v.Str),
		JSON:       wGoString(v.Str),
		ChoiceIdx:  v.ChoiceIdx,
	}
}

func decodeWindowsConfigLeaf(leaf wConfigLeaf) *ConfigLeaf {
	kind := LeafKind(leaf.Kind)
	out := &ConfigLeaf{ID: leaf.ID, Kind: kind, Required: leaf.Required != 0}

	if leaf.HasDefault != 0 {
		dv := decodeWindowsConfValue(kind, leaf.Default)
		switch kind {
		case LeafString:
			out.Default = &dv.Str
		case LeafInt:
			out.DefaultInt = &dv.Int
		case LeafIntRange:
			out.DefaultFrom, out.DefaultTo = &dv.IntRange[0], &dv.IntRange[1]
		case LeafFloat:
			out.DefaultFloat = &dv.Float
		case LeafFloatRange:
			out.DefaultFloatFrom, out.DefaultFloatTo = &dv.FloatRange[0], &dv.FloatRange[1]
		case LeafJSON:
			out.DefaultJSON = &dv.JSON
		case LeafChoiceList:
			out.DefaultIndex = &dv.ChoiceIdx
		}
	}
	// HasMin/HasMax carry different spec leaves depending on kind: Int
	// and Float leaves have optional gt?/lt? constraints, while IntRange
	// and FloatRange leaves have required min/max bounds (spec.md §3).
	if leaf.HasMin != 0 {
		mv := decodeWindowsConfValue(kind, leaf.Min)
		switch kind {
		case LeafFloat:
			out.GtF = &mv.Float
		case LeafFloatRange:
			out.MinFloat = mv.Float
		case LeafIntRange:
			out.MinInt = mv.Int
		default:
			out.Gt = &mv.Int
		}
	}
	if leaf.HasMax != 0 {
		mv := decodeWindowsConfValue(kind, leaf.Max)
		switch kind {
		case LeafFloat:
			out.LtF = &mv.Float
		case LeafFloatRange:
			out.MaxFloat = mv.Float
		case LeafIntRange:
			out.MaxInt = mv.Int
		default:
			out.Lt = &mv.Int
		}
	}
	if leaf.HasNeq != 0 {
		nv := decodeWindowsConfValue(kind, leaf.Neq)
		if kind == LeafFloat || kind == LeafFloatRange {
			out.NeqF = &nv.Float
		} else {
			out.Neq = &nv.Int
		}
	}
	if leaf.MatchRegex != 0 {
		s := wGoString(leaf.MatchRegex)
		out.MatchRegex = &s
	}
	if leaf.ChoicesLen > 0 {
		ptrs := unsafe.Slice((*uintptr)(unsafe.Pointer(leaf.Choices)), int(leaf.ChoicesLen))
		out.Choices = make([]string, len(ptrs))
		for i, p := range ptrs {
			out.Choices[i] = wGoString(p)
		}
	}
	return out
}

func decodeWindowsConfigNode(n wConfigNode) ConfigInfo {
	info := ConfigInfo{Name: wGoString(n.Name)}
	if n.ChildrenLen > 0 {
		children := unsafe.Slice((*wConfigNode)(unsafe.Pointer(n.Children)), int(n.ChildrenLen))
		info.Section = make([]ConfigInfo, len(children))
		for i, c := range children {
			info.Section[i] = decodeWindowsConfigNode(c)
		}
		return info
	}
	info.Leaf = decodeWindowsConfigLeaf(n.Leaf)
	return info
}

func decodeWindowsConfigTree(p uintptr) []ConfigInfo {
	if p == 0 {
		return nil
	}
	tree := (*wConfigTree)(unsafe.Pointer(p))
	if tree.Len == 0 {
		return nil
	}
	items := unsafe.Slice((*wConfigNode)(unsafe.Pointer(tree.Items)), int(tree.Len))
	out := make([]ConfigInfo, len(items))
	for i, n := range items {
		out[i] = decodeWindowsConfigNode(n)
	}
	return out
}

func decodeWindowsSensorTypeList(p uintptr) []SensorTypeInfo {
	if p == 0 {
		return nil
	}
	list := (*wSensorTypeList)(unsafe.Pointer(p))
	if list.Len == 0 {
		return nil
	}
	items := unsafe.Slice((*wSensorTypeInfo)(unsafe.Pointer(list.Items)), int(list.Len))
	out := make([]SensorTypeInfo, len(items))
	for i, it := range items {
		cols := unsafe.Slice((*wColumn)(unsafe.Pointer(it.Columns)), int(it.ColumnsLen))
		columns := make([]Column, len(cols))
		for j, c := range cols {
			columns[j] = Column{Name: wGoString(c.Name), Type: SensorDataType(c.Type)}
		}
		out[i] = SensorTypeInfo{Name: wGoString(it.Name), Columns: columns}
	}
	return out
}

func decodeWindowsMessage(p uintptr) Message {
	msg := (*wMessage)(unsafe.Pointer(p))
	if msg.Kind == 1 {
		return Message{
			Kind:  MessageCommon,
			Level: CommonLevel(msg.Level),
			Text:  wGoString(msg.Text),
		}
	}
	var data []SensorValue
	if msg.DataLen > 0 {
		raw := unsafe.Slice((*wSensorValue)(unsafe.Pointer(msg.Data)), int(msg.DataLen))
		data = make([]SensorValue, len(raw))
		for i, v := range raw {
			sv := SensorValue{Name: wGoString(v.Name), Type: SensorDataType(v.Type)}
			switch sv.Type {
			case TypeInt16, TypeInt32, TypeInt64:
				sv.Int = v.I64
			case TypeFloat32, TypeFloat64:
				sv.Float = v.F64
			case TypeTimestamp:
				sv.Time = time.Unix(v.UnixSeconds, 0).UTC()
			case TypeString:
				sv.Str = wGoString(v.Str)
			case TypeJSON:
				sv.JSON = wGoString(v.Str)
			}
			data[i] = sv
		}
	}
	return Message{Kind: MessageSensor, SensorName: wGoString(msg.SensorName), Data: data}
}

// encodeWindowsConfList allocates a driver-readable wConfList out of the
// process heap via GlobalAlloc, since this path has no C allocator to
// borrow. The returned func releases every allocation once the call that
// consumed the list returns (spec.md M1/M3).
func encodeWindowsConfList(entries []ConfEntry) (uintptr, func()) {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	globalAlloc := kernel32.NewProc("GlobalAlloc")
	globalFree := kernel32.NewProc("GlobalFree")

	const gptrFixed = 0x0040
	var allocated []uintptr
	alloc := func(size uintptr) uintptr {
		p, _, _ := globalAlloc.Call(gptrFixed, size)
		allocated = append(allocated, p)
		return p
	}
	allocString := func(s string) uintptr {
		b := append([]byte(s), 0)
		p := alloc(uintptr(len(b)))
		copy(unsafe.Slice((*byte)(unsafe.Pointer(p)), len(b)), b)
		return p
	}

	free := func() {
		for _, p := range allocated {
			globalFree.Call(p)
		}
	}

	listPtr := alloc(unsafe.Sizeof(wConfList{}))
	list := (*wConfList)(unsafe.Pointer(listPtr))
	if len(entries) == 0 {
		*list = wConfList{}
		return listPtr, free
	}

	entriesPtr := alloc(uintptr(len(entries)) * unsafe.Sizeof(wConfEntry{}))
	slice := unsafe.Slice((*wConfEntry)(unsafe.Pointer(entriesPtr)), len(entries))

	for i, e := range entries {
		slice[i] = wConfEntry{ID: e.ID}
		if e.Value == nil {
			continue
		}
		slice[i].HasValue = 1
		v := e.Value
		cv := wConfValue{Kind: uint8(v.Kind)}
		switch v.Kind {
		case LeafString:
			cv.Str = allocString(v.Str)
		case LeafInt:
			cv.I64 = v.Int
		case LeafIntRange:
			cv.I64Range = v.IntRange
		case LeafFloat:
			cv.F64 = v.Float
		case LeafFloatRange:
			cv.F64Range = v.FloatRange
		case LeafJSON:
			cv.Str = allocString(v.JSON)
		case LeafChoiceList:
			cv.ChoiceIdx = v.ChoiceIdx
		}
		slice[i].Value = cv
	}

	*list = wConfList{Entries: entriesPtr, Len: uintptr(len(entries))}
	return listPtr, free
}
