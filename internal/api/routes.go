package api

const (
	HealthCheckRoute = "/healthz"
	ReadyCheckRoute  = "/readyz"
	AboutRoute       = "/v1/about"
	MetricsRoute     = "/metrics"

	StatusParent          = "/v1/status/"
	CredentialStatusRoute = StatusParent + "credentials"
	ListTasksRoute        = StatusParent + "tasks"
	TriggerTaskRoute      = StatusParent + "tasks/{name}/trigger"
	LogsForTaskRoute      = StatusParent + "tasks/{name}/logs"

	TilesParent = "/tiles/"
	TileRoute   = TilesParent + "{key...}"
)
