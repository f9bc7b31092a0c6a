package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// credential check used by the direct provider's remote checker
	s.RegisterRouteHandler("POST "+RouteAuthVerify, ChainMiddleware(s.VerifyCredentialsHandler(), s.APIMiddleware()...))

	// bearer-protected resources
	s.RegisterRouteHandler("GET "+RouteAPIMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteAPIItems, ChainMiddleware(s.ListItemsHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteAPIItems, ChainMiddleware(s.CreateItemHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteAPIItem, ChainMiddleware(s.GetItemHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("PUT "+RouteAPIItem, ChainMiddleware(s.UpdateItemHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("DELETE "+RouteAPIItem, ChainMiddleware(s.DeleteItemHandler(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteHandler("GET "+RouteAPIAdminItem, ChainMiddleware(s.ListAllItemsHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireRole("admin"))...))
}
