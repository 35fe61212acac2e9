package actions

import (
	"context"
	"fmt"

	"github.com/abd3rr/workflow-api/internal/metrics"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/sirupsen/logrus"
)

// Result classifies what happened to one execution during a pass.
type Result string

const (
	// ResultRejected means a supplied parameter name is not declared by the
	// method. The execution was not touched.
	ResultRejected Result = "rejected"
	// ResultSucceeded and ResultFailed mean the action ran (or could not be
	// found) and the execution reached a terminal status.
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
	// ResultSkipped means the execution was already done or had no
	// parameters supplied.
	ResultSkipped Result = "skipped"
)

// Outcome reports one execution's fate.
type Outcome struct {
	ExecutionID string                 `json:"execution_id"`
	Method      string                 `json:"method"`
	Result      Result                 `json:"result"`
	Status      models.ExecutionStatus `json:"status"`
	Unmatched   []string               `json:"unmatched,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ExecutionStore persists execution status changes.
type ExecutionStore interface {
	UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus, errMsg *string) error
}

// Dispatcher validates caller parameters against the catalog and invokes
// the matching registered action.
type Dispatcher struct {
	registry *Registry
	catalog  *Catalog
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

func NewDispatcher(reg *Registry, catalog *Catalog, log logrus.FieldLogger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{registry: reg, catalog: catalog, log: log, metrics: m}
}

// Catalog returns the catalog the dispatcher validates against.
func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// Dispatch runs exec with params. Every supplied name must be a declared
// parameter of the method; otherwise the outcome is ResultRejected and the
// execution is left as it was. Values are passed to the action in the
// order the caller supplied them. Errors and panics raised by the action
// mark the execution FAILURE. The returned error is reserved for store
// failures.
func (d *Dispatcher) Dispatch(ctx context.Context, store ExecutionStore, exec *models.MethodExecution, params []models.UserParameter) (Outcome, error) {
	out := Outcome{ExecutionID: exec.ID, Method: exec.MethodName, Status: exec.Status}
	log := d.log.WithFields(logrus.Fields{
		"task_id":      exec.TaskID,
		"execution_id": exec.ID,
		"action":       exec.MethodName,
	})

	method, inCatalog := d.catalog.ByName(exec.MethodName)
	action, registered := d.registry.Lookup(exec.MethodName)
	if exec.MethodID == nil || !inCatalog || !registered {
		return d.finish(ctx, store, exec, out, log, fmt.Errorf("method %q is not registered", exec.MethodName))
	}

	for _, p := range params {
		if !method.HasParameter(p.Name) {
			out.Unmatched = append(out.Unmatched, p.Name)
		}
	}
	if len(out.Unmatched) > 0 {
		out.Result = ResultRejected
		log.WithField("unmatched", out.Unmatched).Warn("parameters do not match method")
		d.metrics.Dispatch(exec.MethodName, string(ResultRejected))
		return out, nil
	}

	if err := store.UpdateExecutionStatus(ctx, exec.ID, models.ExecutionStatusInProgress, nil); err != nil {
		return out, err
	}
	exec.Status = models.ExecutionStatusInProgress

	args := make(Args, len(params))
	for i, p := range params {
		args[i] = p.Value
	}

	var err error
	if want := len(action.Parameters()); len(args) != want {
		err = fmt.Errorf("%s expects %d arguments, got %d", exec.MethodName, want, len(args))
	} else {
		err = invoke(ctx, action, args)
	}
	return d.finish(ctx, store, exec, out, log, err)
}

func (d *Dispatcher) finish(ctx context.Context, store ExecutionStore, exec *models.MethodExecution, out Outcome, log logrus.FieldLogger, invokeErr error) (Outcome, error) {
	status := models.ExecutionStatusSuccess
	out.Result = ResultSucceeded
	var errMsg *string
	if invokeErr != nil {
		status = models.ExecutionStatusFailure
		out.Result = ResultFailed
		msg := invokeErr.Error()
		errMsg = &msg
		out.Error = msg
		log.WithError(invokeErr).Error("action failed")
	} else {
		log.Info("action succeeded")
	}

	if err := store.UpdateExecutionStatus(ctx, exec.ID, status, errMsg); err != nil {
		return out, err
	}
	exec.Status = status
	exec.Error = errMsg
	out.Status = status

	d.metrics.Dispatch(exec.MethodName, string(out.Result))
	return out, nil
}

func invoke(ctx context.Context, a Action, args Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", a.Name(), r)
		}
	}()
	return a.Invoke(ctx, args)
}
