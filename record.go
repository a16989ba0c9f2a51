package cpufeatures

// Features is the record produced by one parse of a cpuinfo dump.
// Empty strings and a zero cache size mean the field was not found.
type Features struct {
	// Vendor is the verbatim vendor_id value (GenuineIntel, AuthenticAMD).
	Vendor string
	// Model is the distilled model designator with spaces as underscores.
	Model string
	// CacheKB is the reported cache size in kilobytes.
	CacheKB uint64
	// ISA holds the extensions of Table found on the last flags line.
	ISA ISAMask
	// Table is the ISA table ISA was detected against.
	Table *ISATable
}

// NewFeatures returns an empty record bound to table, or to
// [DefaultISATable] if table is nil.
func NewFeatures(table *ISATable) *Features {
	if table == nil {
		table = DefaultISATable
	}
	return &Features{Table: table}
}

// Reset clears every field, keeping the ISA table.
func (f *Features) Reset() {
	*f = Features{Table: f.Table}
}

// Empty reports whether no field was populated.
func (f *Features) Empty() bool {
	return f.Vendor == "" && f.Model == "" && f.CacheKB == 0 && f.ISA == 0
}

// ISANames returns the names of the detected ISA extensions in table order.
func (f *Features) ISANames() []string {
	if f.Table == nil {
		return nil
	}
	return f.Table.Expand(f.ISA)
}

// Field selects a string field of [Features].
type Field int

const (
	// FieldVendor selects Features.Vendor.
	FieldVendor Field = iota
	// FieldModel selects Features.Model.
	FieldModel
)

func (f *Features) set(field Field, value string) {
	switch field {
	case FieldVendor:
		f.Vendor = value
	case FieldModel:
		f.Model = value
	}
}
