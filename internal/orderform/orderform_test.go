package orderform

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cg-order-portal/internal/domain"
)

var fullHeader = []string{
	ColSampleName, ColContainerType, ColContainerName, ColWellLocation,
	ColDataAnalysis, ColGender, ColGeneList, ColRequireQCOK, ColQuantity,
	ColApplicationTag, ColSource, ColStatus, ColCustomer, ColFamilyID,
	ColMotherID, ColFatherID, ColPriority, ColCaptureKit,
}

type row map[string]string

func sampleRow(name, family string, overrides row) row {
	r := row{
		ColSampleName:     name,
		ColContainerType:  "Tube",
		ColDataAnalysis:   "scout",
		ColGender:         "M",
		ColGeneList:       "PANEL1",
		ColApplicationTag: "WGSPCFC030",
		ColSource:         "Blood",
		ColStatus:         "Affected",
		ColCustomer:       "cust001",
		ColFamilyID:       family,
		ColPriority:       "standard",
	}
	for k, v := range overrides {
		r[k] = v
	}
	return r
}

func sheetRows(header []string, samples []row) [][]string {
	rows := [][]string{
		{"Clinical order form"},
		{markerHeader},
		header,
		{markerSamples},
	}
	for _, sample := range samples {
		cells := make([]string, len(header))
		for i, label := range header {
			cells[i] = sample[label]
		}
		rows = append(rows, cells)
	}
	return append(rows, []string{markerSamplesClose}, []string{"end of form"})
}

func writeWorkbook(t *testing.T, sheet string, rows [][]string) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, cells := range rows {
		values := make([]interface{}, len(cells))
		for j, cell := range cells {
			values[j] = cell
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &values))
	}
	return f
}

func writeOrderForm(t *testing.T, name string, samples []row) string {
	t.Helper()
	f := writeWorkbook(t, DefaultSheet, sheetRows(fullHeader, samples))
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func newTestParser() (*Parser, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewParser("", logger), hook
}

func trioRows() []row {
	return []row{
		sampleRow("child", "fam1", row{ColMotherID: "mom", ColFatherID: "dad", ColGeneList: "PANEL2:PANEL1", ColQuantity: "250"}),
		sampleRow("mom", "fam1", row{ColGender: "F", ColGeneList: "PANEL3; PANEL2", ColRequireQCOK: "yes"}),
		sampleRow("dad", "fam1", row{ColStatus: "unaffected"}),
		sampleRow("single", "fam2", row{ColPriority: "Förtur", ColContainerType: "96 well plate", ColContainerName: "plate1", ColWellLocation: "A:1"}),
	}
}

func TestParseFile(t *testing.T) {
	path := writeOrderForm(t, "order-2024-01.xlsx", trioRows())
	parser, hook := newTestParser()

	project, err := parser.ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, "order-2024-01", project.Name)
	assert.Equal(t, "cust001", project.Customer)
	require.Len(t, project.Families, 2)

	fam1 := project.Families[0]
	assert.Equal(t, "fam1", fam1.Name)
	assert.Equal(t, "scout", fam1.DeliveryType)
	assert.Equal(t, "standard", fam1.Priority)
	assert.True(t, fam1.RequireQCOK)
	assert.Equal(t, []string{"PANEL1", "PANEL2", "PANEL3"}, fam1.Panels)
	require.Len(t, fam1.Samples, 3)

	child := fam1.Samples[0]
	assert.Equal(t, "child", child.Name)
	assert.Equal(t, domain.SexMale, child.Sex)
	assert.Equal(t, "blood", child.Source)
	assert.Equal(t, "affected", child.Status)
	assert.Equal(t, "mom", child.Mother)
	assert.Equal(t, "dad", child.Father)
	require.NotNil(t, child.Quantity)
	assert.Equal(t, 250, *child.Quantity)

	mom, ok := fam1.Sample("mom")
	require.True(t, ok)
	assert.Equal(t, domain.SexFemale, mom.Sex)
	assert.Empty(t, mom.Mother)
	assert.Nil(t, mom.Quantity)

	fam2 := project.Families[1]
	assert.Equal(t, domain.PriorityOverride, fam2.Priority)
	assert.False(t, fam2.RequireQCOK)
	assert.Equal(t, "96 well plate", fam2.Samples[0].Container)
	assert.Equal(t, "plate1", fam2.Samples[0].ContainerName)
	assert.Equal(t, "A:1", fam2.Samples[0].WellPosition)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Parsed order form", hook.LastEntry().Message)
}

func TestParseFileIsIdempotent(t *testing.T) {
	path := writeOrderForm(t, "repeat.xlsx", trioRows())
	parser, _ := newTestParser()

	first, err := parser.ParseFile(path)
	require.NoError(t, err)
	second, err := parser.ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	seen := make(map[string]int)
	for _, family := range first.Families {
		for _, sample := range family.Samples {
			seen[sample.Name]++
		}
	}
	assert.Len(t, seen, 4)
	for name, count := range seen {
		assert.Equal(t, 1, count, "sample %s", name)
	}
}

func TestParseReader(t *testing.T) {
	f := writeWorkbook(t, DefaultSheet, sheetRows(fullHeader, trioRows()))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	parser, _ := newTestParser()
	project, err := parser.Parse(bytes.NewReader(buf.Bytes()), "uploaded")
	require.NoError(t, err)
	assert.Equal(t, "uploaded", project.Name)
	assert.Len(t, project.Samples(), 4)
}

func TestParseFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]string
		sheet   string
		code    string
		message string
	}{
		{
			name:    "Missing sheet",
			rows:    sheetRows(fullHeader, trioRows()),
			sheet:   "Sheet2",
			code:    domain.ErrParse,
			message: "reading sheet",
		},
		{
			name:    "Missing column",
			rows:    sheetRows(fullHeader[1:], trioRows()),
			sheet:   DefaultSheet,
			code:    domain.ErrParse,
			message: "missing columns: Sample/Name",
		},
		{
			name: "Delivery type conflict",
			rows: sheetRows(fullHeader, []row{
				sampleRow("a", "fam1", nil),
				sampleRow("b", "fam1", row{ColDataAnalysis: "external", ColMotherID: "a"}),
			}),
			sheet:   DefaultSheet,
			code:    domain.ErrValidation,
			message: "incorrect delivery types: [external scout]",
		},
		{
			name: "Priority conflict",
			rows: sheetRows(fullHeader, []row{
				sampleRow("a", "fam1", row{ColPriority: "research"}),
				sampleRow("b", "fam1", row{ColPriority: "express"}),
			}),
			sheet:   DefaultSheet,
			code:    domain.ErrValidation,
			message: "conflicting priorities",
		},
		{
			name: "Two customers in a family",
			rows: sheetRows(fullHeader, []row{
				sampleRow("a", "fam1", nil),
				sampleRow("b", "fam1", row{ColCustomer: "cust002"}),
			}),
			sheet:   DefaultSheet,
			code:    domain.ErrValidation,
			message: "invalid customer information",
		},
		{
			name: "Two customers in a project",
			rows: sheetRows(fullHeader, []row{
				sampleRow("a", "fam1", nil),
				sampleRow("b", "fam2", row{ColCustomer: "cust002"}),
			}),
			sheet:   DefaultSheet,
			code:    domain.ErrValidation,
			message: "invalid customer information: [cust001 cust002]",
		},
		{
			name: "Unknown gender",
			rows: sheetRows(fullHeader, []row{
				sampleRow("a", "fam1", row{ColGender: "X"}),
			}),
			sheet:   DefaultSheet,
			code:    domain.ErrParse,
			message: "gender code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := writeWorkbook(t, DefaultSheet, tt.rows)
			path := filepath.Join(t.TempDir(), "form.xlsx")
			require.NoError(t, f.SaveAs(path))

			parser, _ := newTestParser()
			parser.sheet = tt.sheet
			project, err := parser.ParseFile(path)

			require.Error(t, err)
			assert.Nil(t, project)
			assert.Equal(t, tt.code, domain.CodeOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseFileNotAWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a spreadsheet"), 0o600))

	parser, _ := newTestParser()
	_, err := parser.ParseFile(path)
	require.Error(t, err)
	assert.Equal(t, domain.ErrParse, domain.CodeOf(err))
}
