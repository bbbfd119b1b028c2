// Package record defines the flattened directory entry produced by the
// extractor and the column layout shared by every output format.
package record

import (
	"fmt"
	"sort"
)

// Singleton field names, in export column order.
const (
	ID        = "ID"
	Name      = "Name"
	Address   = "Address"
	City      = "City"
	State     = "State"
	Telephone = "Telephone"
	Mobile    = "Mobile"
	Website   = "Website"
	Email     = "Email"
	KeyIssues = "KeyIssues"
)

// MaxMembers is the number of member rows kept per record.
const MaxMembers = 3

// Fields lists every singleton key a record always carries.
var Fields = []string{ID, Name, Address, City, State, Telephone, Mobile, Website, Email, KeyIssues}

// Record is one flattened directory entry. Records are treated as immutable
// once returned by the extractor.
type Record map[string]string

// MemberKeys returns the name and designation keys for the i-th member row,
// counting from 1.
func MemberKeys(i int) (string, string) {
	return fmt.Sprintf("Name%d", i), fmt.Sprintf("Designation%d", i)
}

// Members returns the number of member name/designation pairs in the record.
func (r Record) Members() int {
	n := 0
	for i := 1; i <= MaxMembers; i++ {
		nk, dk := MemberKeys(i)
		_, hasName := r[nk]
		_, hasDesignation := r[dk]
		if hasName || hasDesignation {
			n++
		}
	}
	return n
}

// Columns returns the column order used for tabular output: the singleton
// fields, then member columns present in any record, then any other keys
// sorted by name.
func Columns(records []Record) []string {
	cols := append([]string(nil), Fields...)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}

	for i := 1; i <= MaxMembers; i++ {
		nk, dk := MemberKeys(i)
		for _, key := range []string{nk, dk} {
			for _, r := range records {
				if _, ok := r[key]; ok {
					cols = append(cols, key)
					seen[key] = true
					break
				}
			}
		}
	}

	var extra []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)

	return append(cols, extra...)
}

// Row returns the record's values in the given column order. Missing keys
// become empty strings.
func (r Record) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = r[c]
	}
	return row
}
