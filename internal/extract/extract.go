// Package extract turns a rendered detail view into a flat record.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/go-scripts/ngocrawl/internal/record"
)

// ErrExtraction is wrapped by every error the extractor returns.
var ErrExtraction = errors.New("extraction failed")

// FieldError reports a required element missing from the detail view.
type FieldError struct {
	Field    string
	Selector string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: no element matches %q", e.Field, e.Selector)
}

func (e *FieldError) Unwrap() error { return ErrExtraction }

// RowError reports a member row without both a name and a designation cell.
type RowError struct {
	Row   int
	Cells int
}

func (e *RowError) Error() string {
	return fmt.Sprintf("member row %d has %d cells, want at least 2", e.Row, e.Cells)
}

func (e *RowError) Unwrap() error { return ErrExtraction }

// field maps a record key to the element holding its value.
type field struct {
	key      string
	selector string
}

var fields = []field{
	{record.ID, "span#UniqueID"},
	{record.Name, "span#ngo_name_title"},
	{record.Address, "td#address"},
	{record.City, "td#city"},
	{record.State, "td#state_p_ngo"},
	{record.Telephone, "td#phone_n"},
	{record.Mobile, "td#mobile_n"},
	{record.Website, "td#ngo_web_url"},
	{record.Email, "td#email_n"},
	{record.KeyIssues, "td#key_issues"},
}

// MemberTableSelector locates the member table of a detail view.
const MemberTableSelector = "table#member_table"

// Extract parses the HTML of a rendered detail view into a record.
func Extract(html string) (record.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return FromDocument(doc)
}

// FromDocument extracts a record from an already parsed document.
func FromDocument(doc *goquery.Document) (record.Record, error) {
	rec := make(record.Record, len(fields)+2*record.MaxMembers)

	for _, f := range fields {
		sel := doc.Find(f.selector).First()
		if sel.Length() == 0 {
			return nil, &FieldError{Field: f.key, Selector: f.selector}
		}
		rec[f.key] = normalize(sel.Text())
	}

	if err := members(doc, rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// members copies at most record.MaxMembers data rows of the member table
// into rec. Row 0 is the header.
func members(doc *goquery.Document, rec record.Record) error {
	table := doc.Find(MemberTableSelector).First()
	if table.Length() == 0 {
		return &FieldError{Field: "Members", Selector: MemberTableSelector}
	}

	// The HTML parser always inserts a tbody; fall back to the table itself
	// for fragments that were built without one.
	body := table.ChildrenFiltered("tbody").First()
	if body.Length() == 0 {
		body = table
	}

	var rowErr error
	body.ChildrenFiltered("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true
		}
		if i > record.MaxMembers {
			return false
		}

		cells := row.Children()
		if cells.Length() < 2 {
			rowErr = &RowError{Row: i, Cells: cells.Length()}
			return false
		}

		nameKey, designationKey := record.MemberKeys(i)
		rec[nameKey] = normalize(cells.Eq(0).Text())
		rec[designationKey] = normalize(cells.Eq(1).Text())
		return true
	})

	return rowErr
}

// normalize collapses runs of whitespace into single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
