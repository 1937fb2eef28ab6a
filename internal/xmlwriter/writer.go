// =============================================================================
// OBS Clinic Migration - XML Writer Module
// =============================================================================
//
// This module renders a converted table as a REDCap flat XML import file:
//
//   <?xml version="1.0" encoding="UTF-8"?>
//   <records>
//     <item>
//       <obs_id><![CDATA[10100001]]></obs_id>
//       <redcap_repeat_instance><![CDATA[1]]></redcap_repeat_instance>
//       <medhx><![CDATA[2]]></medhx>
//     </item>
//   </records>
//
// One <item> per row; one element per column, named after the REDCap
// variable, in column order. Values are written as CDATA so free text needs
// no escaping. A null value is written as an empty element.
//
// =============================================================================

package xmlwriter

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// ErrInvalidElementName is returned for a column name that cannot be an XML
// element name.
var ErrInvalidElementName = errors.New("invalid XML element name")

// validName matches names REDCap accepts for variables and that XML
// accepts for elements.
var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// =============================================================================
// GENERATION OPTIONS
// =============================================================================

// GenerateOptions contains options for XML generation.
type GenerateOptions struct {
	// Indent is the string used for indentation. Empty writes one line.
	Indent string

	// IncludeXMLDeclaration adds the <?xml ...?> declaration at the top.
	IncludeXMLDeclaration bool

	// RootElement is the document element.
	RootElement string

	// RecordElement wraps each row.
	RecordElement string
}

// DefaultGenerateOptions returns the REDCap flat XML layout.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Indent:                "  ",
		IncludeXMLDeclaration: true,
		RootElement:           "records",
		RecordElement:         "item",
	}
}

// =============================================================================
// XML GENERATION
// =============================================================================

// Generate renders t with DefaultGenerateOptions.
func Generate(t *types.Table) ([]byte, error) {
	return GenerateWithOptions(t, DefaultGenerateOptions())
}

// GenerateWithOptions renders t as flat XML.
//
// RETURNS:
//   - The XML document.
//   - ErrInvalidElementName if a column name is not a valid element name.
func GenerateWithOptions(t *types.Table, options GenerateOptions) ([]byte, error) {
	columns := t.Columns()
	for _, col := range columns {
		if !validName.MatchString(col) {
			return nil, fmt.Errorf("%q: %w", col, ErrInvalidElementName)
		}
	}

	doc := document{XMLName: xml.Name{Local: options.RootElement}}
	for r := 0; r < t.Len(); r++ {
		it := item{XMLName: xml.Name{Local: options.RecordElement}}
		for c, v := range t.Row(r) {
			it.Fields = append(it.Fields, variable{
				XMLName: xml.Name{Local: columns[c]},
				Value:   v.Str(),
			})
		}
		doc.Items = append(doc.Items, it)
	}

	var buffer bytes.Buffer
	if options.IncludeXMLDeclaration {
		buffer.WriteString(xml.Header)
	}

	enc := xml.NewEncoder(&buffer)
	enc.Indent("", options.Indent)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to marshal XML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal XML: %w", err)
	}
	buffer.WriteByte('\n')

	return buffer.Bytes(), nil
}

// document is the root element. The element names of document and item
// come from their XMLName values.
type document struct {
	XMLName xml.Name
	Items   []item
}

type item struct {
	XMLName xml.Name
	Fields  []variable
}

type variable struct {
	XMLName xml.Name
	Value   string `xml:",cdata"`
}
