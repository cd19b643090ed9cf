package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldUserID      = "user_id"
	FieldAccountID   = "account_id"
	FieldCategoryID  = "category_id"
	FieldBudgetID    = "budget_id"
	FieldGoalID      = "goal_id"
	FieldBillID      = "bill_id"
	FieldRecurringID = "recurring_id"
	FieldTxID        = "transaction_id"
	FieldAmountCents = "amount_cents"
	FieldDueDate     = "due_date"
	FieldStatus      = "status"
	FieldEvent       = "event"
	FieldDuration    = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentStorage     = "storage"
	ComponentTransaction = "transaction"
	ComponentAccount     = "account"
	ComponentBudget      = "budget"
	ComponentGoal        = "goal"
	ComponentRecurring   = "recurring"
	ComponentBill        = "bill"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
	ComponentSheets      = "sheets"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpSplit     = "split"
	OpTransfer  = "transfer"
	OpGenerate  = "generate"
	OpPay       = "pay"
	OpReconcile = "reconcile"
	OpExport    = "export"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
