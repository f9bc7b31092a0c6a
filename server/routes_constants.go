package server

const (
	RouteHealth     = "/healthz"
	RouteAuthVerify = "/auth/verify"

	RouteAPIMe        = "/api/me"
	RouteAPIItems     = "/api/items"
	RouteAPIItem      = "/api/items/{id}"
	RouteAPIAdminItem = "/api/admin/items"
)
