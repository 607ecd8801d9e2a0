// Package orderform reads lab order form spreadsheets into project records.
//
// An order form carries one sheet with marker rows: the row after
// <TABLE HEADER> names the columns and every row between <SAMPLE ENTRIES>
// and </SAMPLE ENTRIES> is one sample. Parsing is all-or-nothing.
package orderform

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/cg-order-portal/internal/domain"
)

// DefaultSheet is the name of the sheet holding the sample table.
const DefaultSheet = "order form"

const (
	markerHeader       = "<TABLE HEADER>"
	markerSamples      = "<SAMPLE ENTRIES>"
	markerSamplesClose = "</SAMPLE ENTRIES>"
)

// Column labels of the sample table.
const (
	ColSampleName     = "Sample/Name"
	ColContainerType  = "Container/Type"
	ColContainerName  = "Container/Name"
	ColWellLocation   = "Sample/Well Location"
	ColDataAnalysis   = "UDF/Data Analysis"
	ColGender         = "UDF/Gender"
	ColGeneList       = "UDF/Gene List"
	ColRequireQCOK    = "UDF/Process only if QC OK"
	ColQuantity       = "UDF/Quantity"
	ColApplicationTag = "UDF/Sequencing Analysis"
	ColSource         = "UDF/Source"
	ColStatus         = "UDF/Status"
	ColCustomer       = "UDF/customer"
	ColFamilyID       = "UDF/familyID"
	ColMotherID       = "UDF/motherID"
	ColFatherID       = "UDF/fatherID"
	ColPriority       = "UDF/priority"
	ColCaptureKit     = "UDF/Capture Library version"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{
	ColSampleName, ColContainerType, ColContainerName, ColWellLocation,
	ColDataAnalysis, ColGender, ColGeneList, ColRequireQCOK, ColQuantity,
	ColApplicationTag, ColSource, ColStatus, ColCustomer, ColFamilyID,
	ColMotherID, ColFatherID, ColPriority,
}

// Parser turns order form workbooks into project records.
type Parser struct {
	sheet  string
	logger *logrus.Logger
}

// NewParser creates a parser reading the given sheet. An empty sheet name selects DefaultSheet.
func NewParser(sheet string, logger *logrus.Logger) *Parser {
	if sheet == "" {
		sheet = DefaultSheet
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Parser{sheet: sheet, logger: logger}
}

// ParseFile parses the workbook at path. The project is named after the file stem.
func (p *Parser) ParseFile(path string) (*domain.ProjectRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, parseError(filepath.Base(path), "opening workbook", err)
	}
	defer f.Close()

	return p.parseWorkbook(f, ProjectName(path))
}

// Parse parses a workbook read from r and names the resulting project name.
func (p *Parser) Parse(r io.Reader, name string) (*domain.ProjectRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, parseError(name, "opening workbook", err)
	}
	defer f.Close()

	return p.parseWorkbook(f, name)
}

func (p *Parser) parseWorkbook(f *excelize.File, name string) (*domain.ProjectRecord, error) {
	rows, err := f.GetRows(p.sheet)
	if err != nil {
		return nil, parseError(name, fmt.Sprintf("reading sheet %q", p.sheet), err)
	}

	raws, err := RelevantRows(rows)
	if err != nil {
		return nil, err
	}

	samples := make([]*ParsedSample, 0, len(raws))
	for _, raw := range raws {
		sample, err := ParseSample(raw)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	groups := GroupFamilies(samples)
	families := make([]*domain.FamilyRecord, 0, len(groups))
	for _, group := range groups {
		family, err := ExpandFamily(group)
		if err != nil {
			return nil, err
		}
		families = append(families, family)
	}

	project, err := AssembleProject(name, families)
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"project":  project.Name,
		"customer": project.Customer,
		"families": len(project.Families),
		"samples":  len(samples),
	}).Info("Parsed order form")

	return project, nil
}

// ProjectName derives a project name from an order form path.
func ProjectName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RawSample is one sample row keyed by column label.
type RawSample struct {
	Row    int
	Fields map[string]string
}

// Get returns the trimmed cell value of a column.
func (r RawSample) Get(column string) string {
	return strings.TrimSpace(r.Fields[column])
}

// RelevantRows extracts the sample rows between the marker rows. Rows are
// the sheet rows as returned by the spreadsheet reader; row numbers in
// errors are 1-based sheet rows.
func RelevantRows(rows [][]string) ([]RawSample, error) {
	var (
		header    []string
		inSamples bool
		closed    bool
		samples   []RawSample
	)

	for i := 0; i < len(rows); i++ {
		marker := firstCell(rows[i])
		switch {
		case marker == markerSamplesClose:
			closed = true
		case marker == markerHeader:
			if i+1 >= len(rows) {
				return nil, parseError("", "header row missing after "+markerHeader, nil)
			}
			i++
			header = trimAll(rows[i])
			continue
		case marker == markerSamples:
			if header == nil {
				return nil, parseError("", markerSamples+" before "+markerHeader, nil)
			}
			inSamples = true
			continue
		}
		if closed {
			break
		}
		if !inSamples || isBlank(rows[i]) {
			continue
		}

		fields := make(map[string]string, len(header))
		for col, label := range header {
			if label == "" {
				continue
			}
			if col < len(rows[i]) {
				fields[label] = rows[i][col]
			} else {
				fields[label] = ""
			}
		}
		samples = append(samples, RawSample{Row: i + 1, Fields: fields})
	}

	if header == nil {
		return nil, parseError("", "missing "+markerHeader+" row", nil)
	}
	if err := checkColumns(header); err != nil {
		return nil, err
	}
	if !inSamples {
		return nil, parseError("", "missing "+markerSamples+" row", nil)
	}
	if !closed {
		return nil, parseError("", "missing "+markerSamplesClose+" row", nil)
	}
	if len(samples) == 0 {
		return nil, parseError("", "no sample entries", nil)
	}
	return samples, nil
}

func checkColumns(header []string) error {
	present := make(map[string]bool, len(header))
	for _, label := range header {
		present[label] = true
	}
	var missing []string
	for _, label := range RequiredColumns {
		if !present[label] {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		return parseError("", fmt.Sprintf("missing columns: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}

func firstCell(row []string) string {
	if len(row) == 0 {
		return ""
	}
	return strings.TrimSpace(row[0])
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}

func parseError(name, message string, err error) *domain.PipelineError {
	perr := domain.NewPipelineError(domain.ErrParse, "", "", message)
	if name != "" {
		perr.Entity = domain.EntityOrderForm
		perr.Name = name
	}
	if err != nil {
		perr.Wrap(err)
	}
	return perr
}
