package domain

// StageDefinition is one stage of a play template.
type StageDefinition struct {
	Key            string   `json:"key" yaml:"key"`
	Label          string   `json:"label" yaml:"label"`
	Objective      string   `json:"objective" yaml:"objective"`
	Guidance       string   `json:"guidance" yaml:"guidance"`
	ChecklistItems []string `json:"checklist_items" yaml:"checklist_items"`
}

type Play struct {
	ID                 int64             `json:"id"`
	Title              string            `json:"title"`
	Summary            string            `json:"summary,omitempty"`
	Offering           string            `json:"offering,omitempty"`
	Sector             string            `json:"sector,omitempty"`
	Geo                string            `json:"geo,omitempty"`
	SalesStage         string            `json:"sales_stage,omitempty"`
	StageScope         []string          `json:"stage_scope"`
	Stages             []StageDefinition `json:"stages"`
	Tags               []string          `json:"tags"`
	Technologies       []string          `json:"technologies"`
	Owners             []string          `json:"owners"`
	Collections        []string          `json:"collections"`
	DefaultTeamMembers []string          `json:"default_team_members"`
	CreatedAt          string            `json:"created_at" format:"date-time"`
	UpdatedAt          string            `json:"updated_at" format:"date-time"`
}

// StageKeys lists the keys of the play's stage definitions in stored order.
func (p Play) StageKeys() []string {
	keys := make([]string, 0, len(p.Stages))
	for _, s := range p.Stages {
		keys = append(keys, s.Key)
	}
	return keys
}

type Opportunity struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	AccountName      string             `json:"account_name"`
	AccountID        string             `json:"account_id,omitempty"`
	SalesStage       string             `json:"sales_stage,omitempty"`
	Region           string             `json:"region,omitempty"`
	Industry         string             `json:"industry,omitempty"`
	Offering         string             `json:"offering,omitempty"`
	ProblemStatement string             `json:"problem_statement,omitempty"`
	Status           string             `json:"status" enum:"active,parked,closed_won,closed_lost,archived"`
	Health           string             `json:"health" enum:"green,yellow,red"`
	Tags             []string           `json:"tags"`
	Technologies     []string           `json:"technologies"`
	TeamMemberIDs    []string           `json:"team_member_user_ids"`
	PrimaryPlayID    *int64             `json:"primary_play_id,omitempty"`
	OpportunityPlays []OpportunityPlay  `json:"opportunity_plays"`
	CreatedAt        string             `json:"created_at" format:"date-time"`
	UpdatedAt        string             `json:"updated_at" format:"date-time"`
}

// OpportunityPlay is the attachment of one play to one opportunity.
type OpportunityPlay struct {
	ID                    string          `json:"id"`
	OpportunityID         string          `json:"opportunity_id"`
	PlayID                int64           `json:"play_id"`
	AliasName             string          `json:"alias_name,omitempty"`
	IsPrimary             bool            `json:"is_primary"`
	IsActive              bool            `json:"is_active"`
	SelectedTechnologyIDs []string        `json:"selected_technology_ids"`
	StageInstances        []StageInstance `json:"stage_instances"`
	CreatedAt             string          `json:"created_at" format:"date-time"`
}

// StageInstance is the per-opportunity progress record for one play stage.
type StageInstance struct {
	ID                    string            `json:"id"`
	OpportunityPlayID     string            `json:"opportunity_play_id"`
	PlayStageKey          string            `json:"play_stage_key"`
	Position              int               `json:"position"`
	Status                string            `json:"status" enum:"not_started,in_progress,completed,skipped"`
	StartDate             *string           `json:"start_date,omitempty" format:"date-time"`
	TargetDate            *string           `json:"target_date,omitempty" format:"date-time"`
	CompletedDate         *string           `json:"completed_date,omitempty" format:"date-time"`
	SummaryNote           *string           `json:"summary_note,omitempty"`
	ChecklistItemStatuses map[string]string `json:"checklist_item_statuses"`
	CustomChecklistItems  []map[string]any  `json:"custom_checklist_items"`
	RiskFlags             []string          `json:"risk_flags"`
	Version               int64             `json:"version"`
	UpdatedAt             string            `json:"updated_at" format:"date-time"`
}

type StageNote struct {
	ID              string `json:"id"`
	StageInstanceID string `json:"stage_instance_id"`
	Content         string `json:"content"`
	IsPrivate       bool   `json:"is_private"`
	AuthorID        string `json:"author_id,omitempty"`
	CreatedAt       string `json:"created_at" format:"date-time"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Dictionary is the full taxonomy snapshot.
type Dictionary struct {
	Offerings              []string            `json:"offerings"`
	Technologies           []string            `json:"technologies"`
	Stages                 []string            `json:"stages"`
	Sectors                []string            `json:"sectors"`
	Geos                   []string            `json:"geos"`
	Tags                   []string            `json:"tags"`
	OfferingToTechnologies map[string][]string `json:"offering_to_technologies"`
	TechnologyCategories   map[string]string   `json:"technology_categories"`
}
