package queryrun

const (
	WorkflowName    = "query_run"
	ActivityProcess = "query_run_process"

	workflowIDPrefix = "query_run:"
)

// WorkflowID keys the workflow on the query id so a record is started at most once.
func WorkflowID(queryID string) string {
	return workflowIDPrefix + queryID
}
