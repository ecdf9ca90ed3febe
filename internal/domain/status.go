package domain

import "slices"

const (
	StageNotStarted = "not_started"
	StageInProgress = "in_progress"
	StageCompleted  = "completed"
	StageSkipped    = "skipped"
)

var StageStatuses = []string{StageNotStarted, StageInProgress, StageCompleted, StageSkipped}

var OpportunityStatuses = []string{"active", "parked", "closed_won", "closed_lost", "archived"}

var OpportunityHealths = []string{"green", "yellow", "red"}

func ValidStageStatus(s string) bool { return slices.Contains(StageStatuses, s) }

func ValidOpportunityStatus(s string) bool { return slices.Contains(OpportunityStatuses, s) }

func ValidOpportunityHealth(s string) bool { return slices.Contains(OpportunityHealths, s) }

// DictionaryKind names one taxonomy table. The set is closed; ParseDictionaryKind
// rejects anything else.
type DictionaryKind string

const (
	DictOfferings    DictionaryKind = "offerings"
	DictTechnologies DictionaryKind = "technologies"
	DictStages       DictionaryKind = "stages"
	DictSectors      DictionaryKind = "sectors"
	DictGeos         DictionaryKind = "geos"
	DictTags         DictionaryKind = "tags"
)

var DictionaryKinds = []DictionaryKind{DictOfferings, DictTechnologies, DictStages, DictSectors, DictGeos, DictTags}

func ParseDictionaryKind(s string) (DictionaryKind, bool) {
	k := DictionaryKind(s)
	return k, slices.Contains(DictionaryKinds, k)
}

// Table returns the backing table name. Values come from the closed set
// above, so the result is safe to interpolate into SQL.
func (k DictionaryKind) Table() string { return string(k) }
