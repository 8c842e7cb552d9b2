// Package model holds the core data types of spec.md §3. Types here are
// plain structs; persistence, classification, scoring and dynamics all
// operate on these through the repository interfaces in internal/persistence.
package model

// Sector is the cognitive category of a memory, driving decay rate and
// scoring weight (spec §2 GLOSSARY).
type Sector string

const (
	SectorEpisodic   Sector = "episodic"
	SectorSemantic   Sector = "semantic"
	SectorProcedural Sector = "procedural"
	SectorEmotional  Sector = "emotional"
	SectorReflective Sector = "reflective"
)

// AllSectors lists every sector in a deterministic order, used wherever a
// full sector sweep is needed (e.g. per-sector embedding, decay lambdas).
var AllSectors = []Sector{SectorEpisodic, SectorSemantic, SectorProcedural, SectorEmotional, SectorReflective}

func (s Sector) Valid() bool {
	switch s {
	case SectorEpisodic, SectorSemantic, SectorProcedural, SectorEmotional, SectorReflective:
		return true
	}
	return false
}

// Memory is spec.md §3.1.
type Memory struct {
	ID                   string
	UserID               *string
	Segment              int32
	Content              string // an encryption envelope when encryption is enabled; repositories return it as stored, without decrypting
	Simhash              string // 64-bit fingerprint, hex
	PrimarySector        Sector
	Tags                 []string
	Metadata             map[string]any
	CreatedAt            int64 // ms epoch
	UpdatedAt            int64
	LastSeenAt           int64
	Salience             float64
	DecayLambda          float64
	Version              int64
	MeanDim              int
	MeanVec              []float32
	CompressedVec        []byte
	FeedbackScore        float64
	GeneratedSummary     string
	Coactivations        int64
	EncryptionKeyVersion int
}

// Vector is spec.md §3.2.
type Vector struct {
	MemoryID string
	Sector   Sector
	UserID   *string
	Values   []float32
	Dim      int
	Metadata map[string]any
}

// Waypoint is spec.md §3.3 — stored as a directed pair but meaning is
// undirected; traversal must consider both (Src,Dst) and (Dst,Src).
type Waypoint struct {
	SrcID     string
	DstID     string
	UserID    *string
	Weight    float64
	CreatedAt int64
	UpdatedAt int64
}

// TemporalFact is spec.md §3.4.
type TemporalFact struct {
	ID          string
	UserID      *string
	Subject     string
	Predicate   string
	Object      string
	ValidFrom   int64
	ValidTo     *int64 // nil => still valid
	Confidence  float64
	LastUpdated int64
	Metadata    map[string]any
}

func (f TemporalFact) Open() bool { return f.ValidTo == nil }

// TemporalEdge is spec.md §3.5.
type TemporalEdge struct {
	ID           string
	UserID       *string
	SourceID     string
	TargetID     string
	RelationType string
	ValidFrom    int64
	ValidTo      *int64
	Weight       float64
	LastUpdated  int64
	Metadata     map[string]any
}

func (e TemporalEdge) Open() bool { return e.ValidTo == nil }

// UserSummary is spec.md §3.6.
type UserSummary struct {
	UserID          string
	Summary         string
	ReflectionCount int64
	CreatedAt       int64
	UpdatedAt       int64
}
