package server

import (
	"playbook/internal/domain"
	"playbook/internal/engine"
	"playbook/internal/playmatch"
)

// Request payloads

type StageDefinitionRequest struct {
	Key            string   `json:"key"`
	Label          string   `json:"label,omitempty"`
	Objective      string   `json:"objective,omitempty"`
	Guidance       string   `json:"guidance,omitempty"`
	ChecklistItems []string `json:"checklist_items,omitempty"`
}

type PlayRequest struct {
	Title              string                   `json:"title"`
	Summary            string                   `json:"summary,omitempty"`
	Offering           string                   `json:"offering,omitempty"`
	Sector             string                   `json:"sector,omitempty"`
	Geo                string                   `json:"geo,omitempty"`
	SalesStage         string                   `json:"sales_stage,omitempty"`
	StageScope         []string                 `json:"stage_scope,omitempty"`
	Stages             []StageDefinitionRequest `json:"stages,omitempty"`
	Tags               []string                 `json:"tags,omitempty"`
	Technologies       []string                 `json:"technologies,omitempty"`
	Owners             []string                 `json:"owners,omitempty"`
	Collections        []string                 `json:"collections,omitempty"`
	DefaultTeamMembers []string                 `json:"default_team_members,omitempty"`
}

type PatchPlayRequest struct {
	Title              *string                   `json:"title,omitempty"`
	Summary            *string                   `json:"summary,omitempty"`
	Offering           *string                   `json:"offering,omitempty"`
	Sector             *string                   `json:"sector,omitempty"`
	Geo                *string                   `json:"geo,omitempty"`
	SalesStage         *string                   `json:"sales_stage,omitempty"`
	StageScope         *[]string                 `json:"stage_scope,omitempty"`
	Stages             *[]StageDefinitionRequest `json:"stages,omitempty"`
	Tags               *[]string                 `json:"tags,omitempty"`
	Technologies       *[]string                 `json:"technologies,omitempty"`
	Owners             *[]string                 `json:"owners,omitempty"`
	Collections        *[]string                 `json:"collections,omitempty"`
	DefaultTeamMembers *[]string                 `json:"default_team_members,omitempty"`
}

type CreateOpportunityRequest struct {
	Name             string   `json:"name,omitempty"`
	AccountName      string   `json:"account_name,omitempty"`
	AccountID        string   `json:"account_id,omitempty"`
	SalesStage       string   `json:"sales_stage,omitempty"`
	Region           string   `json:"region,omitempty"`
	Industry         string   `json:"industry,omitempty"`
	Offering         string   `json:"offering,omitempty"`
	ProblemStatement string   `json:"problem_statement,omitempty"`
	Status           string   `json:"status,omitempty" enum:"active,parked,closed_won,closed_lost,archived"`
	Health           string   `json:"health,omitempty" enum:"green,yellow,red"`
	Tags             []string `json:"tags,omitempty"`
	Technologies     []string `json:"technologies,omitempty"`
	TeamMemberIDs    []string `json:"team_member_user_ids,omitempty"`
	PlayIDs          []string `json:"play_ids,omitempty"`
}

type UpdateOpportunityRequest struct {
	Name             *string   `json:"name,omitempty"`
	AccountName      *string   `json:"account_name,omitempty"`
	AccountID        *string   `json:"account_id,omitempty"`
	SalesStage       *string   `json:"sales_stage,omitempty"`
	Region           *string   `json:"region,omitempty"`
	Industry         *string   `json:"industry,omitempty"`
	Offering         *string   `json:"offering,omitempty"`
	ProblemStatement *string   `json:"problem_statement,omitempty"`
	Status           *string   `json:"status,omitempty" enum:"active,parked,closed_won,closed_lost,archived"`
	Health           *string   `json:"health,omitempty" enum:"green,yellow,red"`
	Tags             *[]string `json:"tags,omitempty"`
	Technologies     *[]string `json:"technologies,omitempty"`
	TeamMemberIDs    *[]string `json:"team_member_user_ids,omitempty"`
	// PlayIDs are attached additively; nothing is detached.
	PlayIDs *[]string `json:"play_ids,omitempty"`
}

type OpportunityPlayRequest struct {
	AliasName             *string   `json:"alias_name,omitempty"`
	IsActive              *bool     `json:"is_active,omitempty"`
	IsPrimary             *bool     `json:"is_primary,omitempty"`
	SelectedTechnologyIDs *[]string `json:"selected_technology_ids,omitempty"`
}

type StageUpdateRequest struct {
	Status                *string           `json:"status,omitempty" enum:"not_started,in_progress,completed,skipped"`
	StartDate             *string           `json:"start_date,omitempty"`
	TargetDate            *string           `json:"target_date,omitempty"`
	CompletedDate         *string           `json:"completed_date,omitempty"`
	SummaryNote           *string           `json:"summary_note,omitempty"`
	ChecklistItemStatuses map[string]string `json:"checklist_item_statuses,omitempty"`
	CustomChecklistItems  []map[string]any  `json:"custom_checklist_items,omitempty"`
	RiskFlags             []string          `json:"risk_flags,omitempty"`
	ExpectedVersion       *int64            `json:"expected_version,omitempty"`
}

type NoteRequest struct {
	Content   string `json:"content"`
	IsPrivate bool   `json:"is_private,omitempty"`
}

type UpdateNoteRequest struct {
	Content   *string `json:"content,omitempty"`
	IsPrivate *bool   `json:"is_private,omitempty"`
}

type DictionaryValueRequest struct {
	Value string `json:"value"`
}

type DictionaryRenameRequest struct {
	NewValue string `json:"new_value"`
}

type OfferingTechnologyRequest struct {
	Offering   string `json:"offering"`
	Technology string `json:"technology"`
	Action     string `json:"action" enum:"add,remove"`
}

// Response payloads

type PlayList struct {
	Items []domain.Play `json:"items"`
}

type MatchList struct {
	Items []playmatch.Result `json:"items"`
}

type OpportunityPage struct {
	Items      []domain.Opportunity `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type NoteList struct {
	Items []domain.StageNote `json:"items"`
}

type EventPage struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func stageDefinitions(in []StageDefinitionRequest) []domain.StageDefinition {
	if in == nil {
		return nil
	}
	out := make([]domain.StageDefinition, 0, len(in))
	for _, s := range in {
		out = append(out, domain.StageDefinition{
			Key:            s.Key,
			Label:          s.Label,
			Objective:      s.Objective,
			Guidance:       s.Guidance,
			ChecklistItems: s.ChecklistItems,
		})
	}
	return out
}

func (r PlayRequest) options(actorID string) engine.PlayCreateOptions {
	return engine.PlayCreateOptions{
		Title:              r.Title,
		Summary:            r.Summary,
		Offering:           r.Offering,
		Sector:             r.Sector,
		Geo:                r.Geo,
		SalesStage:         r.SalesStage,
		StageScope:         r.StageScope,
		Stages:             stageDefinitions(r.Stages),
		Tags:               r.Tags,
		Technologies:       r.Technologies,
		Owners:             r.Owners,
		Collections:        r.Collections,
		DefaultTeamMembers: r.DefaultTeamMembers,
		ActorID:            actorID,
	}
}

func (r PatchPlayRequest) patch(actorID string) engine.PlayPatch {
	p := engine.PlayPatch{
		Title:              r.Title,
		Summary:            r.Summary,
		Offering:           r.Offering,
		Sector:             r.Sector,
		Geo:                r.Geo,
		SalesStage:         r.SalesStage,
		StageScope:         r.StageScope,
		Tags:               r.Tags,
		Technologies:       r.Technologies,
		Owners:             r.Owners,
		Collections:        r.Collections,
		DefaultTeamMembers: r.DefaultTeamMembers,
		ActorID:            actorID,
	}
	if r.Stages != nil {
		defs := stageDefinitions(*r.Stages)
		p.Stages = &defs
	}
	return p
}

func (r CreateOpportunityRequest) options(actorID string) engine.OpportunityCreateOptions {
	return engine.OpportunityCreateOptions{
		Name:             r.Name,
		AccountName:      r.AccountName,
		AccountID:        r.AccountID,
		SalesStage:       r.SalesStage,
		Region:           r.Region,
		Industry:         r.Industry,
		Offering:         r.Offering,
		ProblemStatement: r.ProblemStatement,
		Status:           r.Status,
		Health:           r.Health,
		Tags:             r.Tags,
		Technologies:     r.Technologies,
		TeamMemberIDs:    r.TeamMemberIDs,
		PlayIDs:          r.PlayIDs,
		ActorID:          actorID,
	}
}

func (r UpdateOpportunityRequest) options(actorID string) engine.OpportunityUpdateOptions {
	return engine.OpportunityUpdateOptions{
		Name:             r.Name,
		AccountName:      r.AccountName,
		AccountID:        r.AccountID,
		SalesStage:       r.SalesStage,
		Region:           r.Region,
		Industry:         r.Industry,
		Offering:         r.Offering,
		ProblemStatement: r.ProblemStatement,
		Status:           r.Status,
		Health:           r.Health,
		Tags:             r.Tags,
		Technologies:     r.Technologies,
		TeamMemberIDs:    r.TeamMemberIDs,
		PlayIDs:          r.PlayIDs,
		ActorID:          actorID,
	}
}

func (r StageUpdateRequest) patch(actorID string) engine.StagePatch {
	return engine.StagePatch{
		Status:                r.Status,
		StartDate:             r.StartDate,
		TargetDate:            r.TargetDate,
		CompletedDate:         r.CompletedDate,
		SummaryNote:           r.SummaryNote,
		ChecklistItemStatuses: r.ChecklistItemStatuses,
		CustomChecklistItems:  r.CustomChecklistItems,
		RiskFlags:             r.RiskFlags,
		ExpectedVersion:       r.ExpectedVersion,
		ActorID:               actorID,
	}
}
