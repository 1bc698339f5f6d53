//go:build !windows

package module

/*
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"time"
	"unsafe"
)

// cGoString copies a possibly-NULL, NUL-terminated C string into a Go
// string. Must be called before the callback that produced the pointer
// returns -- the driver's buffer is invalid afterward (spec.md M2).
func cGoString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func decodeConnParamList(list *C.mod_conn_param_list) []ConnParamDescriptor {
	if list == nil || list.len == 0 {
		return nil
	}
	items := unsafe.Slice(list.items, int(list.len))
	out := make([]ConnParamDescriptor, len(items))
	for i, it := range items {
		out[i] = ConnParamDescriptor{Name: cGoString(it.name), Type: SensorDataType(it._type)}
	}
	return out
}

func decodeConfValue(kind LeafKind, v C.mod_conf_value) ConfValue {
	return ConfValue{
		Kind:       kind,
		Int:        int64(v.i64),
		IntRange:   [2]int64{int64(v.i64_range[0]), int64(v.i64_range[1])},
		Float:      float64(v.f64),
		FloatRange: [2]float64{float64(v.f64_range[0]), float64(v.f64_range[1])},
		Str:        cGoString(v.str),
		JSON:       cGoString(v.str),
		ChoiceIdx:  uint32(v.choice_idx),
	}
}

func decodeConfigLeaf(leaf C.mod_config_leaf) *ConfigLeaf {
	kind := LeafKind(leaf.kind)
	out := &ConfigLeaf{ID: uint32(leaf.id), Kind: kind, Required: leaf.required != 0}

	if leaf.has_default != 0 {
		dv := decodeConfValue(kind, leaf.default_value)
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
	// has_min/has_max carry different spec leaves depending on kind: Int
	// and Float leaves have optional gt?/lt? constraints, while IntRange
	// and FloatRange leaves have required min/max bounds (spec.md §3).
	if leaf.has_min != 0 {
		mv := decodeConfValue(kind, leaf.min_value)
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
	if leaf.has_max != 0 {
		mv := decodeConfValue(kind, leaf.max_value)
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
	if leaf.has_neq != 0 {
		nv := decodeConfValue(kind, leaf.neq_value)
		if kind == LeafFloat || kind == LeafFloatRange {
			out.NeqF = &nv.Float
		} else {
			out.Neq = &nv.Int
		}
	}
	if leaf.match_regex != nil {
		s := cGoString(leaf.match_regex)
		out.MatchRegex = &s
	}
	if leaf.choices_len > 0 {
		choices := unsafe.Slice(leaf.choices, int(leaf.choices_len))
		out.Choices = make([]string, len(choices))
		for i, c := range choices {
			out.Choices[i] = cGoString(c)
		}
	}
	return out
}

func decodeConfigNode(n C.mod_config_node) ConfigInfo {
	info := ConfigInfo{Name: cGoString(n.name)}
	if n.children_len > 0 {
		children := unsafe.Slice(n.children, int(n.children_len))
		info.Section = make([]ConfigInfo, len(children))
		for i, c := range children {
			info.Section[i] = decodeConfigNode(c)
		}
		return info
	}
	info.Leaf = decodeConfigLeaf(n.leaf)
	return info
}

func decodeConfigTree(tree *C.mod_config_tree) []ConfigInfo {
	if tree == nil || tree.len == 0 {
		return nil
	}
	items := unsafe.Slice(tree.items, int(tree.len))
	out := make([]ConfigInfo, len(items))
	for i, n := range items {
		out[i] = decodeConfigNode(n)
	}
	return out
}

func decodeSensorTypeList(list *C.mod_sensor_type_list) []SensorTypeInfo {
	if list == nil || list.len == 0 {
		return nil
	}
	items := unsafe.Slice(list.items, int(list.len))
	out := make([]SensorTypeInfo, len(items))
	for i, it := range items {
		cols := unsafe.Slice(it.columns, int(it.columns_len))
		columns := make([]Column, len(cols))
		for j, c := range cols {
			columns[j] = Column{Name: cGoString(c.name), Type: SensorDataType(c._type)}
		}
		out[i] = SensorTypeInfo{Name: cGoString(it.name), Columns: columns}
	}
	return out
}

func decodeMessage(msg *C.mod_message) Message {
	if msg.kind == 1 {
		return Message{
			Kind:  MessageCommon,
			Level: CommonLevel(msg.level),
			Text:  cGoString(msg.text),
		}
	}
	var data []SensorValue
	if msg.data_len > 0 {
		raw := unsafe.Slice(msg.data, int(msg.data_len))
		data = make([]SensorValue, len(raw))
		for i, v := range raw {
			sv := SensorValue{Name: cGoString(v.name), Type: SensorDataType(v._type)}
			switch sv.Type {
			case TypeInt16, TypeInt32, TypeInt64:
				sv.Int = int64(v.i64)
			case TypeFloat32, TypeFloat64:
				sv.Float = float64(v.f64)
			case TypeTimestamp:
				sv.Time = time.Unix(int64(v.unix_seconds), 0).UTC()
			case TypeString:
				sv.Str = cGoString(v.str)
			case TypeJSON:
				sv.JSON = cGoString(v.str)
			}
			data[i] = sv
		}
	}
	return Message{Kind: MessageSensor, SensorName: cGoString(msg.sensor_name), Data: data}
}

// encodeConfList marshals entries into a C array the driver can read for
// the duration of one call (M1/M3: host-owned, freed by the returned func
// only after the call returns).
func encodeConfList(entries []ConfEntry) (*C.mod_conf_list, func()) {
	if len(entries) == 0 {
		list := (*C.mod_conf_list)(C.malloc(C.size_t(unsafe.Sizeof(C.mod_conf_list{}))))
		*list = C.mod_conf_list{}
		return list, func() { C.free(unsafe.Pointer(list)) }
	}

	cEntries := (*C.mod_conf_entry)(C.malloc(C.size_t(len(entries)) * C.size_t(unsafe.Sizeof(C.mod_conf_entry{}))))
	slice := unsafe.Slice(cEntries, len(entries))
	var strs []*C.char

	for i, e := range entries {
		slice[i] = C.mod_conf_entry{id: C.uint32_t(e.ID)}
		if e.Value == nil {
			continue
		}
		slice[i].has_value = 1
		v := e.Value
		cv := C.mod_conf_value{kind: C.uint8_t(v.Kind)}
		switch v.Kind {
		case LeafString:
			cs := C.CString(v.Str)
			strs = append(strs, cs)
			cv.str = cs
		case LeafInt:
			cv.i64 = C.int64_t(v.Int)
		case LeafIntRange:
			cv.i64_range[0] = C.int64_t(v.IntRange[0])
			cv.i64_range[1] = C.int64_t(v.IntRange[1])
		case LeafFloat:
			cv.f64 = C.double(v.Float)
		case LeafFloatRange:
			cv.f64_range[0] = C.double(v.FloatRange[0])
			cv.f64_range[1] = C.double(v.FloatRange[1])
		case LeafJSON:
			cs := C.CString(v.JSON)
			strs = append(strs, cs)
			cv.str = cs
		case LeafChoiceList:
			cv.choice_idx = C.uint32_t(v.ChoiceIdx)
		}
		slice[i].value = cv
	}

	list := (*C.mod_conf_list)(C.malloc(C.size_t(unsafe.Sizeof(C.mod_conf_list{}))))
	*list = C.mod_conf_list{entries: cEntries, len: C.size_t(len(entries))}

	free := func() {
		for _, s := range strs {
			C.free(unsafe.Pointer(s))
		}
		C.free(unsafe.Pointer(cEntries))
		C.free(unsafe.Pointer(list))
	}
	return list, free
}
