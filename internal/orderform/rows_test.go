package orderform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg-order-portal/internal/domain"
)

func TestRelevantRows(t *testing.T) {
	rows := sheetRows(fullHeader, []row{sampleRow("a", "fam1", nil)})
	// blank row and a short row inside the sample block
	rows = append(rows[:5], append([][]string{{}, {"  ", ""}, {"b"}}, rows[5:]...)...)

	samples, err := RelevantRows(rows)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, 5, samples[0].Row)
	assert.Equal(t, "a", samples[0].Get(ColSampleName))
	assert.Equal(t, "fam1", samples[0].Get(ColFamilyID))

	assert.Equal(t, 8, samples[1].Row)
	assert.Equal(t, "b", samples[1].Get(ColSampleName))
	assert.Equal(t, "", samples[1].Get(ColFamilyID))
}

func TestRelevantRowsStopsAtClosingMarker(t *testing.T) {
	rows := sheetRows(fullHeader, []row{sampleRow("a", "fam1", nil)})
	rows = append(rows, []string{"after", "the", "table"})

	samples, err := RelevantRows(rows)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestRelevantRowsErrors(t *testing.T) {
	complete := sheetRows(fullHeader, []row{sampleRow("a", "fam1", nil)})

	tests := []struct {
		name    string
		rows    [][]string
		message string
	}{
		{"Empty sheet", nil, "missing <TABLE HEADER>"},
		{"No header marker", complete[2:], "<SAMPLE ENTRIES> before <TABLE HEADER>"},
		{"Header at end", [][]string{{markerHeader}}, "header row missing"},
		{"No closing marker", complete[:5], "missing </SAMPLE ENTRIES>"},
		{"No samples", sheetRows(fullHeader, nil), "no sample entries"},
		{"No sample marker", [][]string{{markerHeader}, fullHeader}, "missing <SAMPLE ENTRIES>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RelevantRows(tt.rows)
			require.Error(t, err)
			assert.Equal(t, domain.ErrParse, domain.CodeOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseSample(t *testing.T) {
	raw := RawSample{Row: 7, Fields: map[string]string{
		ColSampleName:     " s1 ",
		ColGender:         "F",
		ColGeneList:       "A:B; ;C",
		ColQuantity:       "250.0",
		ColPriority:       "FÖRTUR",
		ColSource:         "Blood",
		ColStatus:         "AFFECTED",
		ColFamilyID:       "fam1",
		ColRequireQCOK:    "1",
		ColApplicationTag: "WGSPCFC030",
	}}

	sample, err := ParseSample(raw)
	require.NoError(t, err)

	assert.Equal(t, "s1", sample.Name)
	assert.Equal(t, domain.SexFemale, sample.Sex)
	assert.Equal(t, []string{"A", "B", "C"}, sample.Panels)
	require.NotNil(t, sample.Quantity)
	assert.Equal(t, 250, *sample.Quantity)
	assert.Equal(t, domain.PriorityOverride, sample.Priority)
	assert.Equal(t, "blood", sample.Source)
	assert.Equal(t, "affected", sample.Status)
	assert.True(t, sample.RequireQCOK)
	assert.Empty(t, sample.Mother)
	assert.Empty(t, sample.Father)
	assert.Equal(t, 7, sample.Row)
}

func TestParseSampleErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		field  string
	}{
		{"Missing name", map[string]string{ColFamilyID: "fam1"}, ColSampleName},
		{"Bad quantity", map[string]string{ColSampleName: "s1", ColFamilyID: "fam1", ColQuantity: "a lot"}, ColQuantity},
		{"Fractional quantity", map[string]string{ColSampleName: "s1", ColFamilyID: "fam1", ColQuantity: "2.5"}, ColQuantity},
		{"Unknown gender", map[string]string{ColSampleName: "s1", ColFamilyID: "fam1", ColGender: "male"}, ColGender},
		{"Missing family", map[string]string{ColSampleName: "s1"}, ColFamilyID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSample(RawSample{Row: 3, Fields: tt.fields})
			require.Error(t, err)

			var perr *domain.PipelineError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, domain.ErrParse, perr.Code)
			assert.Equal(t, tt.field, perr.Field)
			assert.Contains(t, perr.Message, "row 3")
		})
	}
}

func TestParseFlag(t *testing.T) {
	for value, expected := range map[string]bool{
		"": false, "0": false, "false": false, "No": false,
		"1": true, "yes": true, "X": true, "TRUE": true,
	} {
		assert.Equal(t, expected, parseFlag(value), "value %q", value)
	}
}

func TestExpandFamilyPriorityOverride(t *testing.T) {
	group := &SampleGroup{Family: "fam1", Samples: []*ParsedSample{
		{SampleRecord: domain.SampleRecord{Name: "a"}, Customer: "c", DeliveryType: "scout", Priority: "standard"},
		{SampleRecord: domain.SampleRecord{Name: "b"}, Customer: "c", DeliveryType: "scout", Priority: "express"},
		{SampleRecord: domain.SampleRecord{Name: "c"}, Customer: "c", DeliveryType: "scout", Priority: domain.PriorityOverride},
	}}

	family, err := ExpandFamily(group)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityOverride, family.Priority)
	assert.Equal(t, "c", family.Customer)
	assert.Len(t, family.Samples, 3)
}

func TestGroupFamilies(t *testing.T) {
	samples := []*ParsedSample{
		{SampleRecord: domain.SampleRecord{Name: "a"}, Family: "f2"},
		{SampleRecord: domain.SampleRecord{Name: "b"}, Family: "f1"},
		{SampleRecord: domain.SampleRecord{Name: "c"}, Family: "f2"},
	}

	groups := GroupFamilies(samples)
	require.Len(t, groups, 2)
	assert.Equal(t, "f2", groups[0].Family)
	assert.Equal(t, "a", groups[0].Samples[0].Name)
	assert.Equal(t, "c", groups[0].Samples[1].Name)
	assert.Equal(t, "f1", groups[1].Family)
}
