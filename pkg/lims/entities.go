package lims

import (
	"encoding/xml"
	"strconv"

	"github.com/cg-order-portal/internal/domain"
)

// XML namespaces of the LIMS REST API.
const (
	nsProject   = "http://genologics.com/ri/project"
	nsContainer = "http://genologics.com/ri/container"
	nsSample    = "http://genologics.com/ri/sample"
	nsUDF       = "http://genologics.com/ri/userdefined"
)

// Request bodies carry literal prefixes since the LIMS expects prefixed
// root elements. Responses are matched on local names only.

type uriRef struct {
	URI string `xml:"uri,attr"`
}

type udfFieldOut struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type udfFieldIn struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type projectRequest struct {
	XMLName    xml.Name      `xml:"prj:project"`
	PrjNS      string        `xml:"xmlns:prj,attr"`
	UdfNS      string        `xml:"xmlns:udf,attr"`
	URI        string        `xml:"uri,attr,omitempty"`
	LimsID     string        `xml:"limsid,attr,omitempty"`
	Name       string        `xml:"name"`
	Researcher *uriRef       `xml:"researcher,omitempty"`
	Fields     []udfFieldOut `xml:"udf:field"`
}

type projectResponse struct {
	XMLName    xml.Name     `xml:"project"`
	URI        string       `xml:"uri,attr"`
	LimsID     string       `xml:"limsid,attr"`
	Name       string       `xml:"name"`
	Researcher uriRef       `xml:"researcher"`
	Fields     []udfFieldIn `xml:"field"`
}

type containerRequest struct {
	XMLName xml.Name `xml:"con:container"`
	ConNS   string   `xml:"xmlns:con,attr"`
	Name    string   `xml:"name"`
	Type    uriRef   `xml:"type"`
}

type containerResponse struct {
	XMLName xml.Name `xml:"container"`
	URI     string   `xml:"uri,attr"`
	LimsID  string   `xml:"limsid,attr"`
	Name    string   `xml:"name"`
	Type    uriRef   `xml:"type"`
}

type location struct {
	Container uriRef `xml:"container"`
	Value     string `xml:"value"`
}

type sampleCreation struct {
	XMLName  xml.Name      `xml:"smp:samplecreation"`
	SmpNS    string        `xml:"xmlns:smp,attr"`
	UdfNS    string        `xml:"xmlns:udf,attr"`
	Name     string        `xml:"name"`
	Project  uriRef        `xml:"project"`
	Location location      `xml:"location"`
	Fields   []udfFieldOut `xml:"udf:field"`
}

type sampleResponse struct {
	XMLName  xml.Name     `xml:"sample"`
	URI      string       `xml:"uri,attr"`
	LimsID   string       `xml:"limsid,attr"`
	Name     string       `xml:"name"`
	Project  uriRef       `xml:"project"`
	Location location     `xml:"location"`
	Fields   []udfFieldIn `xml:"field"`
}

type sampleLink struct {
	URI    string `xml:"uri,attr"`
	LimsID string `xml:"limsid,attr"`
	Name   string `xml:"name"`
}

type sampleList struct {
	XMLName  xml.Name     `xml:"samples"`
	Samples  []sampleLink `xml:"sample"`
	NextPage *uriRef      `xml:"next-page"`
}

type exception struct {
	XMLName    xml.Name `xml:"exception"`
	Message    string   `xml:"message"`
	Suggestion string   `xml:"suggested-actions"`
}

func udfsOut(udfs domain.UDFList) []udfFieldOut {
	fields := make([]udfFieldOut, 0, len(udfs))
	for _, udf := range udfs {
		fields = append(fields, udfFieldOut{Name: udf.Name, Type: udfType(udf.Value), Value: udf.Value})
	}
	return fields
}

func udfsIn(fields []udfFieldIn) domain.UDFList {
	var udfs domain.UDFList
	for _, field := range fields {
		udfs.Set(field.Name, field.Value)
	}
	return udfs
}

// udfType infers the LIMS field type of a value.
func udfType(value string) string {
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return "Numeric"
	}
	return "String"
}
