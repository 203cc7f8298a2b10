package domain

// Metadata is the typed view over the material product schema. Every field is
// optional; absence is the zero Value.
type Metadata struct {
	Name           Value `json:"name,omitempty"`
	Brand          Value `json:"brand,omitempty"`
	Category       Value `json:"category,omitempty"`
	Dimensions     Value `json:"dimensions,omitempty"`
	Summary        Value `json:"summary,omitempty"`
	Description    Value `json:"description,omitempty"`
	Material       Value `json:"material,omitempty"`
	Color          Value `json:"color,omitempty"`
	Finish         Value `json:"finish,omitempty"`
	Certifications Value `json:"certifications,omitempty"`
	Performance    Value `json:"performance,omitempty"`
	Keywords       Value `json:"keywords,omitempty"`
}

// Schema field names.
const (
	FieldName           = "name"
	FieldBrand          = "brand"
	FieldCategory       = "category"
	FieldDimensions     = "dimensions"
	FieldSummary        = "summary"
	FieldDescription    = "description"
	FieldMaterial       = "material"
	FieldColor          = "color"
	FieldFinish         = "finish"
	FieldCertifications = "certifications"
	FieldPerformance    = "performance"
	FieldKeywords       = "keywords"
)

type metadataField struct {
	name string
	ref  func(*Metadata) *Value
}

// metadataFields is the schema order used for products and attachments.
var metadataFields = []metadataField{
	{FieldName, func(m *Metadata) *Value { return &m.Name }},
	{FieldBrand, func(m *Metadata) *Value { return &m.Brand }},
	{FieldCategory, func(m *Metadata) *Value { return &m.Category }},
	{FieldDimensions, func(m *Metadata) *Value { return &m.Dimensions }},
	{FieldSummary, func(m *Metadata) *Value { return &m.Summary }},
	{FieldDescription, func(m *Metadata) *Value { return &m.Description }},
	{FieldMaterial, func(m *Metadata) *Value { return &m.Material }},
	{FieldColor, func(m *Metadata) *Value { return &m.Color }},
	{FieldFinish, func(m *Metadata) *Value { return &m.Finish }},
	{FieldCertifications, func(m *Metadata) *Value { return &m.Certifications }},
	{FieldPerformance, func(m *Metadata) *Value { return &m.Performance }},
	{FieldKeywords, func(m *Metadata) *Value { return &m.Keywords }},
}

// RequiredFields must be present for a product to be valid.
var RequiredFields = []string{FieldName, FieldBrand, FieldCategory, FieldDimensions}

// MVSFields is the minimum viable schema.
var MVSFields = []string{FieldName, FieldBrand, FieldDimensions, FieldSummary}

// MetadataFieldNames returns schema field names in schema order.
func MetadataFieldNames() []string {
	names := make([]string, len(metadataFields))
	for i, f := range metadataFields {
		names[i] = f.name
	}
	return names
}

// IsSchemaField reports whether name belongs to the product schema.
func IsSchemaField(name string) bool {
	for _, f := range metadataFields {
		if f.name == name {
			return true
		}
	}
	return false
}

// Get returns the value of a schema field.
func (m *Metadata) Get(name string) (Value, bool) {
	for _, f := range metadataFields {
		if f.name == name {
			return *f.ref(m), true
		}
	}
	return nil, false
}

// Set assigns a schema field. It returns false for names outside the schema.
func (m *Metadata) Set(name string, v Value) bool {
	for _, f := range metadataFields {
		if f.name == name {
			*f.ref(m) = v
			return true
		}
	}
	return false
}

// Has reports whether a schema field is present.
func (m *Metadata) Has(name string) bool {
	v, ok := m.Get(name)
	return ok && v.Present()
}

// PresentFields lists the present schema fields in schema order.
func (m *Metadata) PresentFields() []string {
	var out []string
	for _, f := range metadataFields {
		if f.ref(m).Present() {
			out = append(out, f.name)
		}
	}
	return out
}

// Reduce keeps only the named fields.
func (m Metadata) Reduce(names []string) Metadata {
	var out Metadata
	for _, n := range names {
		if v, ok := m.Get(n); ok {
			out.Set(n, v)
		}
	}
	return out
}
