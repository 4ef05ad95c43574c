// Package pipeline holds the stage vocabularies for clients and intakes.
//
// Stages are labels on a complete graph: any stage may move to any other,
// always by staff. Nothing here advances a stage automatically.
package pipeline

import "strings"

type ClientStage string

const (
	ClientLead      ClientStage = "lead"
	ClientQualified ClientStage = "qualified"
	ClientProposal  ClientStage = "proposal"
	ClientBuild     ClientStage = "build"
	ClientLaunched  ClientStage = "launched"
	ClientCarePlan  ClientStage = "care_plan"
	ClientLost      ClientStage = "lost"
)

var ClientStages = []ClientStage{
	ClientLead, ClientQualified, ClientProposal, ClientBuild, ClientLaunched, ClientCarePlan, ClientLost,
}

type KanbanStage string

const (
	KanbanNew             KanbanStage = "new"
	KanbanQualified       KanbanStage = "qualified"
	KanbanNeedsContent    KanbanStage = "needs_content"
	KanbanReadyToBuild    KanbanStage = "ready_to_build"
	KanbanInBuild         KanbanStage = "in_build"
	KanbanWaitingOnClient KanbanStage = "waiting_on_client"
	KanbanDone            KanbanStage = "done"
)

var KanbanStages = []KanbanStage{
	KanbanNew, KanbanQualified, KanbanNeedsContent, KanbanReadyToBuild, KanbanInBuild, KanbanWaitingOnClient, KanbanDone,
}

func normalize(value string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
}

func ParseClientStage(value string) (ClientStage, bool) {
	candidate := ClientStage(normalize(value))
	for _, stage := range ClientStages {
		if stage == candidate {
			return stage, true
		}
	}
	return "", false
}

func ParseKanbanStage(value string) (KanbanStage, bool) {
	candidate := KanbanStage(normalize(value))
	for _, stage := range KanbanStages {
		if stage == candidate {
			return stage, true
		}
	}
	return "", false
}

// Transition is the result of a committed stage move.
type Transition struct {
	EntityID      string `json:"entityId"`
	PreviousStage string `json:"previousStage"`
	NewStage      string `json:"newStage"`
}

// Changed is false for a retried or repeated move to the current stage.
func (t Transition) Changed() bool {
	return t.PreviousStage != t.NewStage
}
