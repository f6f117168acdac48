package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/SendSign/SendSign-sub000/internal/models"
)

// WorkflowScheduler hands sealing off to a Cloud Workflow: the signer's
// submission returns as soon as the execution is created, and the workflow
// invokes the envelope-sealer function independently.
type WorkflowScheduler struct {
	client           *executions.Client
	projectID        string
	workflowLocation string
	workflowID       string
}

// NewWorkflowScheduler creates a scheduler targeting the given workflow.
func NewWorkflowScheduler(ctx context.Context, projectID, location, workflowID string) (*WorkflowScheduler, error) {
	if projectID == "" || workflowID == "" {
		return nil, fmt.Errorf("projectID and workflowID must be provided to create a workflow scheduler")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowScheduler{
		client:           client,
		projectID:        projectID,
		workflowLocation: location,
		workflowID:       workflowID,
	}, nil
}

// Schedule creates one workflow execution carrying the envelope ID.
func (s *WorkflowScheduler) Schedule(ctx context.Context, envelopeID string) error {
	payload, err := json.Marshal(models.SealRequest{EnvelopeID: envelopeID})
	if err != nil {
		return fmt.Errorf("failed to marshal seal payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", s.projectID, s.workflowLocation, s.workflowID),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	exec, err := s.client.CreateExecution(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to trigger sealing workflow: %w", err)
	}
	slog.Info("Sealing workflow triggered.", "envelopeId", envelopeID, "execution", exec.GetName())
	return nil
}
