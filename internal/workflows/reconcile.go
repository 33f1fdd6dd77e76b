package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ReconcileInput names the user whose pending routes should be pushed to the
// remote store.
type ReconcileInput struct {
	UserID string
}

// ReconcileResult reports how the sweep went.
type ReconcileResult struct {
	Pushed    int
	Remaining int
}

// ReconcileWorkflow drains a user's pending queue: routes that were saved
// locally but whose remote write failed. Each route is pushed and only then
// marked synced, so a crash between the two steps re-pushes rather than
// loses the route. Pushes are idempotent on the remote side.
func ReconcileWorkflow(ctx workflow.Context, input ReconcileInput) (ReconcileResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting reconcile sweep", "user", input.UserID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var pending []string
	if err := workflow.ExecuteActivity(ctx, "ListPendingRouteIDs", input.UserID).Get(ctx, &pending); err != nil {
		return ReconcileResult{}, err
	}
	if len(pending) == 0 {
		return ReconcileResult{}, nil
	}

	result := ReconcileResult{Remaining: len(pending)}
	for _, routeID := range pending {
		if err := workflow.ExecuteActivity(ctx, "PushRoute", input.UserID, routeID).Get(ctx, nil); err != nil {
			// Leave the rest of the queue for the next sweep.
			logger.Warn("push failed, stopping sweep", "route", routeID, "error", err)
			return result, err
		}
		if err := workflow.ExecuteActivity(ctx, "MarkRouteSynced", input.UserID, routeID).Get(ctx, nil); err != nil {
			return result, err
		}
		result.Pushed++
		result.Remaining--
	}

	logger.Info("Reconcile sweep complete", "pushed", result.Pushed)
	return result, nil
}
