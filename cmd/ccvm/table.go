package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"ccvm/datatypes"
	"ccvm/memory"
)

type (
	Table struct {
		columns []ColumnEnum
		data    []TableEntry
	}

	RegisterTableEntry struct {
		reg   datatypes.Register
		value datatypes.Word
	}
	MemoryTableEntry struct {
		record memory.Record
	}
	TableEntry interface {
		GetColumn(ColumnEnum) string
	}

	ColumnEnum = byte
)

const (
	ColumnName = iota
	ColumnAddress
	ColumnType
	ColumnValue
	ColumnBinaryValue
	ColumnBytes
	ColumnGroup
	ColumnMax
)

var tableColumnNames = map[ColumnEnum]string{
	ColumnName:        "Name",
	ColumnAddress:     "Address",
	ColumnType:        "Type",
	ColumnValue:       "Value",
	ColumnBinaryValue: "Binary",
	ColumnBytes:       "Bytes",
	ColumnGroup:       "Group",
}

func (e *MemoryTableEntry) GetColumn(col ColumnEnum) string {
	r := e.record
	switch col {
	case ColumnName:
		return r.Name
	case ColumnAddress:
		return fmt.Sprintf("%04x", r.Addr)
	case ColumnType:
		t := r.Type
		for i := 0; i < r.Pointer; i++ {
			t += "*"
		}
		return t
	case ColumnValue:
		s := ""
		for i, v := range r.Values {
			if i > 0 {
				s += " "
			}
			s += strconv.FormatFloat(v, 'g', -1, 64)
		}
		return s
	case ColumnBytes:
		return fmt.Sprintf("% x", r.Bytes)
	case ColumnGroup:
		return r.Group
	default:
		return "n/a"
	}
}

func (e *RegisterTableEntry) GetColumn(col ColumnEnum) string {
	switch col {
	case ColumnName:
		return e.reg.Name
	case ColumnValue:
		return fmt.Sprintf("0x%08x", e.value)
	case ColumnBinaryValue:
		return fmt.Sprintf("%032b", e.value)
	default:
		return e.reg.Desc
	}
}

func (tbl *Table) Render(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, col := range tbl.columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, tableColumnNames[col])
	}
	fmt.Fprintln(tw)
	for _, entry := range tbl.data {
		for i, col := range tbl.columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, entry.GetColumn(col))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func registerTable(mem *memory.Memory) *Table {
	tbl := &Table{columns: []ColumnEnum{ColumnName, ColumnValue, ColumnBinaryValue}}
	for i, reg := range datatypes.Registers() {
		tbl.data = append(tbl.data, &RegisterTableEntry{
			reg:   reg,
			value: mem.RegWord(datatypes.RegisterID(i)),
		})
	}
	return tbl
}

// memoryTable lists the initialized or named words of a range.
func memoryTable(mem *memory.Memory, start, length datatypes.Address) *Table {
	tbl := &Table{columns: []ColumnEnum{ColumnAddress, ColumnName, ColumnType, ColumnValue, ColumnBytes, ColumnGroup}}
	for _, rec := range mem.DataModel(start, length) {
		if rec.Name == "" && isVirgin(rec.Bytes, mem) {
			continue
		}
		tbl.data = append(tbl.data, &MemoryTableEntry{record: rec})
	}
	return tbl
}

func isVirgin(b []byte, mem *memory.Memory) bool {
	for _, c := range b {
		if c != mem.Virgin() {
			return false
		}
	}
	return true
}
