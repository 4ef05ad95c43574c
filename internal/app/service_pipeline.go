package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadflow/internal/events"
	"leadflow/internal/pipeline"
	"leadflow/internal/store"
)

const (
	entityClient = "client"
	entityIntake = "intake"
)

// MoveClientStage sets a client's pipeline stage. Any stage may follow any
// other; repeating the current stage is a no-op that emits nothing.
func (s *Service) MoveClientStage(ctx context.Context, clientID, stage string) (pipeline.Transition, error) {
	target, ok := pipeline.ParseClientStage(stage)
	if !ok {
		return pipeline.Transition{}, validationError("Unknown pipeline stage", map[string]string{"stage": stageList(pipeline.ClientStages)})
	}
	previous, err := s.store.UpdateClientStage(ctx, clientID, string(target))
	if err != nil {
		return pipeline.Transition{}, s.staleStage(entityClient, clientID, string(target), err)
	}
	transition := pipeline.Transition{EntityID: clientID, PreviousStage: previous, NewStage: string(target)}
	if transition.Changed() {
		s.stageChanged(entityClient, transition)
		if client, err := s.store.GetClient(ctx, clientID); err == nil {
			s.indexClient(client)
		}
	}
	return transition, nil
}

// MoveIntakeStage sets the kanban column of an intake.
func (s *Service) MoveIntakeStage(ctx context.Context, intakeID, stage string) (pipeline.Transition, error) {
	target, ok := pipeline.ParseKanbanStage(stage)
	if !ok {
		return pipeline.Transition{}, validationError("Unknown kanban stage", map[string]string{"stage": stageList(pipeline.KanbanStages)})
	}
	previous, err := s.store.UpdateIntakeStage(ctx, intakeID, string(target))
	if err != nil {
		return pipeline.Transition{}, s.staleStage(entityIntake, intakeID, string(target), err)
	}
	transition := pipeline.Transition{EntityID: intakeID, PreviousStage: previous, NewStage: string(target)}
	if transition.Changed() {
		s.stageChanged(entityIntake, transition)
	}
	return transition, nil
}

func (s *Service) stageChanged(entity string, transition pipeline.Transition) {
	s.logger.Info("stage changed",
		zap.String("entity", entity),
		zap.String("entity_id", transition.EntityID),
		zap.String("from", transition.PreviousStage),
		zap.String("to", transition.NewStage),
	)
	s.emit(events.StageChanged, transition.EntityID, map[string]any{
		"entity":        entity,
		"previousStage": transition.PreviousStage,
		"newStage":      transition.NewStage,
	})
}

// staleStage reports a failed stage write. The caller's optimistic view is
// no longer trustworthy and should be reverted to the confirmed stage.
func (s *Service) staleStage(entity, entityID, stage string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		if entity == entityClient {
			return notFound("Client")
		}
		return notFound("Intake")
	}
	s.logger.Warn("stage write failed",
		zap.String("entity", entity),
		zap.String("entity_id", entityID),
		zap.String("stage", stage),
		zap.Error(err),
	)
	return domainError(http.StatusConflict, CodeStaleStage, "Stage change was not saved", map[string]any{
		"entity":   entity,
		"entityId": entityID,
		"stage":    stage,
	})
}

func stageList[T ~string](stages []T) string {
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = string(stage)
	}
	return "must be one of " + strings.Join(names, ", ")
}

func (s *Service) GetClient(ctx context.Context, clientID string) (store.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Client{}, notFound("Client")
	}
	return client, err
}

func (s *Service) ListClients(ctx context.Context) ([]store.Client, error) {
	return s.store.ListClients(ctx)
}

// UpdateClient applies staff edits to the engagement fields.
func (s *Service) UpdateClient(ctx context.Context, clientID string, patch store.ClientPatch) (store.Client, error) {
	fields := map[string]string{}
	if patch.PlanType != nil && *patch.PlanType != store.PlanBuildOnly && *patch.PlanType != store.PlanCarePlan {
		fields["planType"] = "must be build_only or care_plan"
	}
	if patch.MonthlyFeeCents != nil && *patch.MonthlyFeeCents < 0 {
		fields["monthlyFeeCents"] = "must not be negative"
	}
	if patch.SetupFeeCents != nil && *patch.SetupFeeCents < 0 {
		fields["setupFeeCents"] = "must not be negative"
	}
	if patch.MonthlyIncludedMinutes != nil && *patch.MonthlyIncludedMinutes < 0 {
		fields["monthlyIncludedMinutes"] = "must not be negative"
	}
	if len(fields) > 0 {
		return store.Client{}, validationError("Invalid client update", fields)
	}

	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, err
	}
	updated := patch.Apply(client)
	if err := s.store.UpdateClient(ctx, updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Client{}, notFound("Client")
		}
		return store.Client{}, err
	}
	client, err = s.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, err
	}
	s.indexClient(client)
	return client, nil
}

// Board is the staff pipeline view grouped by stage. Every known stage is
// present even when empty.
type Board struct {
	Clients      map[string][]store.Client        `json:"clients"`
	Intakes      map[string][]store.ProjectIntake `json:"intakes"`
	OpenRequests []store.UpdateRequest            `json:"openRequests"`
	ClientStages []string                         `json:"clientStages"`
	IntakeStages []string                         `json:"intakeStages"`
}

const boardIntakeLimit = 500

func (s *Service) Board(ctx context.Context) (Board, error) {
	var (
		clients  []store.Client
		intakes  []store.ProjectIntake
		requests []store.UpdateRequest
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		clients, err = s.store.ListClients(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		intakes, err = s.store.ListIntakes(groupCtx, boardIntakeLimit)
		return err
	})
	group.Go(func() error {
		var err error
		requests, err = s.store.ListRequests(groupCtx, "")
		return err
	})
	if err := group.Wait(); err != nil {
		return Board{}, err
	}

	board := Board{
		Clients:      make(map[string][]store.Client, len(pipeline.ClientStages)),
		Intakes:      make(map[string][]store.ProjectIntake, len(pipeline.KanbanStages)),
		OpenRequests: requests,
	}
	if board.OpenRequests == nil {
		board.OpenRequests = []store.UpdateRequest{}
	}
	for _, stage := range pipeline.ClientStages {
		board.Clients[string(stage)] = []store.Client{}
		board.ClientStages = append(board.ClientStages, string(stage))
	}
	for _, stage := range pipeline.KanbanStages {
		board.Intakes[string(stage)] = []store.ProjectIntake{}
		board.IntakeStages = append(board.IntakeStages, string(stage))
	}
	for _, client := range clients {
		board.Clients[client.PipelineStage] = append(board.Clients[client.PipelineStage], client)
	}
	for _, projectIntake := range intakes {
		board.Intakes[projectIntake.KanbanStage] = append(board.Intakes[projectIntake.KanbanStage], projectIntake)
	}
	return board, nil
}
