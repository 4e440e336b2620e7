package domain

// EntityType classifies what an audit (and a health score) targets.
type EntityType string

const (
	// EntityOutlet is a retail outlet.
	EntityOutlet EntityType = "outlet"
	// EntityCentralKitchen is a central-kitchen production facility (BCK)
	// supplying retail outlets.
	EntityCentralKitchen EntityType = "central_kitchen"
	// EntitySupplier is an external goods supplier.
	EntitySupplier EntityType = "supplier"
)

// IsValid checks if the entity type is one of the supported enum values.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityOutlet, EntityCentralKitchen, EntitySupplier:
		return true
	}
	return false
}

// String returns the string representation.
func (t EntityType) String() string { return string(t) }

// EntityRef pairs an entity type with its identifier.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   EntityID   `json:"id"`
}

// Severity ranks findings and CAPA priorities. The two enums mirror each
// other one-to-one, so a single type serves both.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity is one of the supported enum values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

func (s Severity) String() string { return string(s) }

// Rank orders severities for sorting, critical first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}
