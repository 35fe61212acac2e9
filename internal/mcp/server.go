package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abd3rr/workflow-api/internal/engine"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"
)

// NewServer exposes the engine's operations as MCP tools.
func NewServer(eng *engine.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer("Workflow", version)

	// Hierarchy and people
	s.AddTool(mcp.NewTool("create_project",
		mcp.WithDescription("Create a project."),
		mcp.WithString("name", mcp.Description("Project name"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Project description")),
	), createProjectHandler(eng))

	s.AddTool(mcp.NewTool("create_phase",
		mcp.WithDescription("Create a phase, optionally inside a project."),
		mcp.WithString("name", mcp.Description("Phase name"), mcp.Required()),
		mcp.WithString("project_id", mcp.Description("Owning project ID")),
		mcp.WithString("description", mcp.Description("Phase description")),
	), createPhaseHandler(eng))

	s.AddTool(mcp.NewTool("create_step",
		mcp.WithDescription("Create a step, optionally inside a phase."),
		mcp.WithString("name", mcp.Description("Step name"), mcp.Required()),
		mcp.WithString("phase_id", mcp.Description("Owning phase ID")),
		mcp.WithString("description", mcp.Description("Step description")),
	), createStepHandler(eng))

	s.AddTool(mcp.NewTool("create_user",
		mcp.WithDescription("Create a user."),
		mcp.WithString("name", mcp.Description("User name"), mcp.Required()),
		mcp.WithString("email", mcp.Description("Email address")),
	), createUserHandler(eng))

	s.AddTool(mcp.NewTool("create_job",
		mcp.WithDescription("Create a job (a role held by users). Tasks are assigned to jobs."),
		mcp.WithString("title", mcp.Description("Job title"), mcp.Required()),
		mcp.WithArray("user_ids", mcp.Description("Member user IDs, in order"), mcp.WithStringItems()),
	), createJobHandler(eng))

	s.AddTool(mcp.NewTool("add_job_member",
		mcp.WithDescription("Append a user to the members of a job."),
		mcp.WithString("job_id", mcp.Description("Job ID"), mcp.Required()),
		mcp.WithString("user_id", mcp.Description("User ID"), mcp.Required()),
	), addJobMemberHandler(eng))

	s.AddTool(mcp.NewTool("delete_job",
		mcp.WithDescription("Delete a job. Tasks assigned to it keep their other jobs."),
		mcp.WithString("job_id", mcp.Description("Job ID"), mcp.Required()),
	), deleteJobHandler(eng))

	s.AddTool(mcp.NewTool("register_file",
		mcp.WithDescription("Record metadata for a file tasks can reference."),
		mcp.WithString("name", mcp.Description("File name"), mcp.Required()),
		mcp.WithString("path", mcp.Description("Storage path or URL"), mcp.Required()),
		mcp.WithString("content_type", mcp.Description("MIME type")),
		mcp.WithNumber("size", mcp.Description("Size in bytes")),
	), registerFileHandler(eng))

	// Tasks
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a PENDING task. Each method gets a PENDING execution; the task becomes a child of every parent."),
		mcp.WithString("name", mcp.Description("Task name"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("step_id", mcp.Description("Owning step ID")),
		mcp.WithArray("parent_ids", mcp.Description("IDs of tasks this task depends on"), mcp.WithStringItems()),
		mcp.WithArray("method_ids", mcp.Description("Catalog method IDs (see list_methods)"), mcp.WithStringItems()),
		mcp.WithArray("assigned_job_ids", mcp.Description("Job IDs whose members are notified"), mcp.WithStringItems()),
		mcp.WithArray("file_ids", mcp.Description("Referenced file IDs"), mcp.WithStringItems()),
		mcp.WithBoolean("required_verification", mcp.Description("Wait for validation before children start")),
	), createTaskHandler(eng))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a task with its edges, executions and feedback."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), getTaskHandler(eng))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, optionally limited to a step or a project."),
		mcp.WithString("step_id", mcp.Description("Filter by step")),
		mcp.WithString("project_id", mcp.Description("Filter by project")),
	), listTasksHandler(eng))

	s.AddTool(mcp.NewTool("find_tasks",
		mcp.WithDescription("Find tasks assigned to any of the jobs and in any of the statuses, optionally within a project, phase and step."),
		mcp.WithArray("job_ids", mcp.Description("Job IDs"), mcp.Required(), mcp.WithStringItems()),
		mcp.WithArray("statuses", mcp.Description("PENDING, STARTING, WAITING_FOR_VALIDATION or FINISHED"), mcp.Required(), mcp.WithStringItems()),
		mcp.WithString("project_id", mcp.Description("Project scope")),
		mcp.WithString("phase_id", mcp.Description("Phase scope")),
		mcp.WithString("step_id", mcp.Description("Step scope")),
	), findTasksHandler(eng))

	s.AddTool(mcp.NewTool("list_tasks_waiting_for_validation",
		mcp.WithDescription("List tasks waiting for validation that have a child assigned to the job."),
		mcp.WithString("job_id", mcp.Description("Job ID"), mcp.Required()),
		mcp.WithString("project_id", mcp.Description("Project scope")),
		mcp.WithString("phase_id", mcp.Description("Phase scope")),
		mcp.WithString("step_id", mcp.Description("Step scope")),
	), waitingForValidationHandler(eng))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Change the name, description, step or verification flag of a task. Omitted fields are kept."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("step_id", mcp.Description("New owning step ID")),
		mcp.WithBoolean("required_verification", mcp.Description("Only while the task is PENDING or STARTING")),
	), updateTaskHandler(eng))

	s.AddTool(mcp.NewTool("add_dependency",
		mcp.WithDescription("Make a PENDING task depend on another task."),
		mcp.WithString("parent_id", mcp.Description("Task to depend on"), mcp.Required()),
		mcp.WithString("child_id", mcp.Description("PENDING dependent task"), mcp.Required()),
	), addDependencyHandler(eng))

	s.AddTool(mcp.NewTool("remove_dependency",
		mcp.WithDescription("Remove the dependency of a task on another."),
		mcp.WithString("parent_id", mcp.Description("Parent task ID"), mcp.Required()),
		mcp.WithString("child_id", mcp.Description("Child task ID"), mcp.Required()),
	), removeDependencyHandler(eng))

	s.AddTool(mcp.NewTool("get_parents",
		mcp.WithDescription("List the tasks a task depends on, in order."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), getParentsHandler(eng))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task. Its children lose it as a parent."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(eng))

	s.AddTool(mcp.NewTool("add_feedback",
		mcp.WithDescription("Add feedback from a user to a task."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("user_id", mcp.Description("Author user ID"), mcp.Required()),
		mcp.WithString("content", mcp.Description("Feedback text"), mcp.Required()),
	), addFeedbackHandler(eng))

	// Lifecycle
	s.AddTool(mcp.NewTool("start_initial_tasks",
		mcp.WithDescription("Start every PENDING task of the project that has no parents."),
		mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
	), startInitialTasksHandler(eng))

	s.AddTool(mcp.NewTool("start_next_task",
		mcp.WithDescription("Start the first PENDING child of a finished task."),
		mcp.WithString("task_id", mcp.Description("Finished task ID"), mcp.Required()),
	), startNextTaskHandler(eng))

	s.AddTool(mcp.NewTool("execute_methods",
		mcp.WithDescription("Dispatch the task's method executions, then finish the task, request validation, or start its children."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithObject("params", mcp.Description(`Map of execution ID to an ordered list of {"name": ..., "value": ...}`)),
	), executeMethodsHandler(eng))

	s.AddTool(mcp.NewTool("validate_task",
		mcp.WithDescription("Validate a task waiting for validation and start its PENDING children."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), validateTaskHandler(eng))

	s.AddTool(mcp.NewTool("invalidate_task",
		mcp.WithDescription("Send a task waiting for validation back for rework."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), invalidateTaskHandler(eng))

	s.AddTool(mcp.NewTool("update_task_status",
		mcp.WithDescription("Move a task to a new status. Reaching FINISHED starts the first PENDING child."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("status", mcp.Description("New status"), mcp.Required(),
			mcp.Enum(string(models.TaskStatusPending), string(models.TaskStatusStarting), string(models.TaskStatusWaitingForValidation), string(models.TaskStatusFinished))),
	), updateTaskStatusHandler(eng))

	s.AddTool(mcp.NewTool("get_method_executions",
		mcp.WithDescription("List the method executions of a task."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), getMethodExecutionsHandler(eng))

	// Catalog, graph and notifications
	s.AddTool(mcp.NewTool("list_methods",
		mcp.WithDescription("List the method catalog."),
	), listMethodsHandler(eng))

	s.AddTool(mcp.NewTool("get_graph_json",
		mcp.WithDescription("Get the complete task graph as JSON."),
	), getGraphJSONHandler(eng))

	s.AddTool(mcp.NewTool("list_notifications",
		mcp.WithDescription("List a user's notifications."),
		mcp.WithString("user_id", mcp.Description("User ID"), mcp.Required()),
		mcp.WithBoolean("unread_only", mcp.Description("Only unread notifications")),
	), listNotificationsHandler(eng))

	s.AddTool(mcp.NewTool("mark_notification_read",
		mcp.WithDescription("Mark a notification as read."),
		mcp.WithString("notification_id", mcp.Description("Notification ID"), mcp.Required()),
	), markNotificationReadHandler(eng))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func errorResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

// optString returns nil when key is absent or empty.
func optString(request mcp.CallToolRequest, key string) *string {
	v := mcp.ParseString(request, key, "")
	if v == "" {
		return nil
	}
	return &v
}

// argString returns nil when key is absent. Unlike optString an empty value
// is kept.
func argString(request mcp.CallToolRequest, key string) (*string, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := cast.ToStringE(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &v, nil
}

func argBool(request mcp.CallToolRequest, key string) (*bool, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &v, nil
}

func stringList(request mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return list, nil
}

func createProjectHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := eng.CreateProject(ctx, mcp.ParseString(request, "name", ""), mcp.ParseString(request, "description", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(p)
	}
}

func createPhaseHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := eng.CreatePhase(ctx, optString(request, "project_id"),
			mcp.ParseString(request, "name", ""), mcp.ParseString(request, "description", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(p)
	}
}

func createStepHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, err := eng.CreateStep(ctx, optString(request, "phase_id"),
			mcp.ParseString(request, "name", ""), mcp.ParseString(request, "description", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(s)
	}
}

func createUserHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		u, err := eng.CreateUser(ctx, mcp.ParseString(request, "name", ""), mcp.ParseString(request, "email", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(u)
	}
}

func createJobHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userIDs, err := stringList(request, "user_ids")
		if err != nil {
			return errorResult(err)
		}
		j, err := eng.CreateJob(ctx, mcp.ParseString(request, "title", ""), userIDs)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(j)
	}
}

func addJobMemberHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		j, err := eng.AddJobMember(ctx, mcp.ParseString(request, "job_id", ""), mcp.ParseString(request, "user_id", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(j)
	}
}

func deleteJobHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "job_id", "")
		if err := eng.DeleteJob(ctx, id); err != nil {
			return errorResult(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Job %s deleted.", id)), nil
	}
}

func registerFileHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := &models.File{
			Name:        mcp.ParseString(request, "name", ""),
			Path:        mcp.ParseString(request, "path", ""),
			ContentType: mcp.ParseString(request, "content_type", ""),
			Size:        mcp.ParseInt64(request, "size", 0),
		}
		if err := eng.RegisterFile(ctx, f); err != nil {
			return errorResult(err)
		}
		return jsonResult(f)
	}
}

func createTaskHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := engine.CreateTaskRequest{
			Name:                 mcp.ParseString(request, "name", ""),
			Description:          mcp.ParseString(request, "description", ""),
			StepID:               optString(request, "step_id"),
			RequiredVerification: mcp.ParseBoolean(request, "required_verification", false),
		}

		var err error
		for key, dst := range map[string]*[]string{
			"parent_ids":       &req.ParentIDs,
			"method_ids":       &req.MethodIDs,
			"assigned_job_ids": &req.AssignedJobIDs,
			"file_ids":         &req.FileIDs,
		} {
			if *dst, err = stringList(request, key); err != nil {
				return errorResult(err)
			}
		}

		task, err := eng.CreateTask(ctx, req)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(task)
	}
}

func getTaskHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := eng.GetTask(ctx, mcp.ParseString(request, "task_id", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(task)
	}
}

func listTasksHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			tasks []*models.Task
			err   error
		)
		switch {
		case optString(request, "step_id") != nil:
			tasks, err = eng.GetTasksByStep(ctx, mcp.ParseString(request, "step_id", ""))
		case optString(request, "project_id") != nil:
			tasks, err = eng.GetTasksByProject(ctx, mcp.ParseString(request, "project_id", ""))
		default:
			tasks, err = eng.ListTasks(ctx)
		}
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func findTasksHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobIDs, err := stringList(request, "job_ids")
		if err != nil {
			return errorResult(err)
		}
		raw, err := stringList(request, "statuses")
		if err != nil {
			return errorResult(err)
		}
		statuses := make([]models.TaskStatus, len(raw))
		for i, s := range raw {
			statuses[i] = models.TaskStatus(s)
		}

		tasks, err := eng.GetTasksByJobsStatusProjectPhaseStep(ctx, jobIDs, statuses,
			optString(request, "project_id"), optString(request, "phase_id"), optString(request, "step_id"))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func waitingForValidationHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := eng.GetTasksWaitingForValidation(ctx, mcp.ParseString(request, "job_id", ""),
			optString(request, "project_id"), optString(request, "phase_id"), optString(request, "step_id"))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func updateTaskHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := engine.UpdateTaskRequest{ID: mcp.ParseString(request, "task_id", "")}

		var err error
		for key, dst := range map[string]**string{
			"name":        &req.Name,
			"description": &req.Description,
			"step_id":     &req.StepID,
		} {
			if *dst, err = argString(request, key); err != nil {
				return errorResult(err)
			}
		}
		if req.RequiredVerification, err = argBool(request, "required_verification"); err != nil {
			return errorResult(err)
		}

		task, err := eng.UpdateTask(ctx, req)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(task)
	}
}

func addDependencyHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		child, err := eng.AddDependency(ctx, mcp.ParseString(request, "parent_id", ""), mcp.ParseString(request, "child_id", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(child)
	}
}

func removeDependencyHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		parentID, childID := mcp.ParseString(request, "parent_id", ""), mcp.ParseString(request, "child_id", "")
		if err := eng.RemoveDependency(ctx, parentID, childID); err != nil {
			return errorResult(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %s no longer depends on %s.", childID, parentID)), nil
	}
}

func getParentsHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		parents, err := eng.GetParents(ctx, mcp.ParseString(request, "task_id", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(parents)
	}
}

func deleteTaskHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "task_id", "")
		if err := eng.DeleteTask(ctx, id); err != nil {
			return errorResult(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %s deleted.", id)), nil
	}
}

func addFeedbackHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := eng.AddFeedback(ctx,
			mcp.ParseString(request, "task_id", ""),
			mcp.ParseString(request, "user_id", ""),
			mcp.ParseString(request, "content", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(task)
	}
}

func startInitialTasksHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started, err := eng.StartInitialTasks(ctx, mcp.ParseString(request, "project_id", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"started": started})
	}
}

func startNextTaskHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started, err := eng.StartNextTask(ctx, mcp.ParseString(request, "task_id", ""))
		if err != nil {
			return errorResult(err)
		}
		if started == nil {
			return mcp.NewToolResultText("No PENDING child to start."), nil
		}
		return jsonResult(started)
	}
}

func executeMethodsHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := map[string][]models.UserParameter{}
		if raw, ok := request.GetArguments()["params"]; ok && raw != nil {
			data, err := json.Marshal(raw)
			if err != nil {
				return errorResult(err)
			}
			if err := json.Unmarshal(data, &params); err != nil {
				return errorResult(fmt.Errorf("params: %w", err))
			}
		}

		outcomes, err := eng.ExecuteMethodsForTask(ctx, mcp.ParseString(request, "task_id", ""), params)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"outcomes": outcomes})
	}
}

func validateTaskHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started, err := eng.ValidateAndStartChildTasks(ctx, mcp.ParseString(request, "task_id", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"started": started})
	}
}

func invalidateTaskHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := eng.InvalidateTask(ctx, mcp.ParseString(request, "task_id", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(task)
	}
}

func updateTaskStatusHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := models.TaskStatus(mcp.ParseString(request, "status", ""))
		task, err := eng.UpdateTaskStatus(ctx, mcp.ParseString(request, "task_id", ""), status)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(task)
	}
}

func getMethodExecutionsHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		execs, err := eng.GetMethodExecutions(ctx, mcp.ParseString(request, "task_id", ""))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"executions": execs})
	}
}

func listMethodsHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{"methods": eng.Catalog().Methods()})
	}
}

func getGraphJSONHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		graph, err := eng.GetGraph(ctx)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(graph)
	}
}

func listNotificationsHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := eng.ListNotifications(ctx, mcp.ParseString(request, "user_id", ""), mcp.ParseBoolean(request, "unread_only", false))
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(map[string]any{"notifications": list})
	}
}

func markNotificationReadHandler(eng *engine.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "notification_id", "")
		if err := eng.MarkNotificationRead(ctx, id); err != nil {
			return errorResult(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Notification %s marked as read.", id)), nil
	}
}
