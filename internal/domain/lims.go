package domain

// UDF is a user-defined field on a LIMS resource.
type UDF struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UDFList keeps user-defined fields in insertion order.
type UDFList []UDF

// Set replaces the value of an existing field or appends a new one.
func (l *UDFList) Set(name, value string) {
	for i := range *l {
		if (*l)[i].Name == name {
			(*l)[i].Value = value
			return
		}
	}
	*l = append(*l, UDF{Name: name, Value: value})
}

// Get returns the value of the named field.
func (l UDFList) Get(name string) (string, bool) {
	for _, udf := range l {
		if udf.Name == name {
			return udf.Value, true
		}
	}
	return "", false
}

// LimsProject is a project resource in the LIMS.
type LimsProject struct {
	ID            string  `json:"id"`
	URI           string  `json:"uri"`
	Name          string  `json:"name"`
	ResearcherURI string  `json:"researcher_uri,omitempty"`
	UDFs          UDFList `json:"udfs,omitempty"`
}

// LimsContainer is a physical container resource in the LIMS.
type LimsContainer struct {
	ID      string `json:"id"`
	URI     string `json:"uri"`
	Name    string `json:"name"`
	TypeURI string `json:"type_uri,omitempty"`
}

// LimsSample is a sample resource in the LIMS.
type LimsSample struct {
	ID           string  `json:"id"`
	URI          string  `json:"uri"`
	Name         string  `json:"name"`
	ProjectURI   string  `json:"project_uri,omitempty"`
	ContainerURI string  `json:"container_uri,omitempty"`
	Position     string  `json:"position,omitempty"`
	UDFs         UDFList `json:"udfs,omitempty"`
}

// LimsSampleQuery filters LIMS samples by name and user-defined field values.
type LimsSampleQuery struct {
	Name string
	UDFs map[string]string
}

// Names of the user-defined fields written by the order portal.
const (
	UDFCustomerReference = "Customer project reference"

	UDFPriority          = "priority"
	UDFDataAnalysis      = "Data Analysis"
	UDFGeneList          = "Gene List"
	UDFGender            = "Gender"
	UDFStatus            = "Status"
	UDFSequencing        = "Sequencing Analysis"
	UDFTagVersion        = "Application Tag Version"
	UDFSource            = "Source"
	UDFFamilyID          = "familyID"
	UDFCustomer          = "customer"
	UDFMotherID          = "motherID"
	UDFFatherID          = "fatherID"
	UDFReadsMissing      = "Reads missing (M)"
	UDFCaptureKit        = "Capture Library version"
	UDFRequireQCOK       = "Process only if QC OK"
	UDFQuantity          = "Quantity"
	UDFConcentration     = "Concentration (nM)"
	UDFVolume            = "Volume (uL)"
	UDFStrain            = "Strain"
	UDFIndexType         = "Index type"
	UDFIndexNumber       = "Index number"
	UDFSampleBuffer      = "Sample Buffer"
	UDFReferenceMicrobes = "Reference Genome Microbial"
)

// PlaceholderUDFs are written as NotApplicable on every new sample.
var PlaceholderUDFs = []string{
	UDFConcentration,
	UDFVolume,
	UDFStrain,
	UDFIndexType,
	UDFIndexNumber,
	UDFSampleBuffer,
	UDFReferenceMicrobes,
}
