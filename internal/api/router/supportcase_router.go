package router

import (
	"net/http"
	"strings"

	"support-desk-backend/internal/api"
	"support-desk-backend/internal/api/endpoints"
	"support-desk-backend/internal/api/middleware"
	supportcaseservice "support-desk-backend/internal/service/supportcase"
)

func SupportCaseRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		service := supportcaseservice.New(s.Database())
		base := strings.TrimRight(prefix, "/")
		paths := endpoints.SupportCasePaths{
			CasesPath:       base + "/cases",
			CasePrefix:      base + "/cases/",
			UnseenCountPath: base + "/notifications/unseen",
			UnseenCasesPath: base + "/notifications/cases",
		}
		caseEndpoints := endpoints.NewSupportCaseEndpointsWithPaths(service, s.Handler(), paths)

		mux.HandleFunc(prefix+"/cases", s.MakeHTTPHandleFunc(caseEndpoints.Cases, middleware.ValidateViewerJWT))
		mux.HandleFunc(prefix+"/cases/", s.MakeHTTPHandleFunc(caseEndpoints.CaseActions, middleware.ValidateViewerJWT))
		mux.HandleFunc(prefix+"/notifications/unseen", s.MakeHTTPHandleFunc(caseEndpoints.UnseenCount, middleware.ValidateViewerJWT))
		mux.HandleFunc(prefix+"/notifications/cases", s.MakeHTTPHandleFunc(caseEndpoints.UnseenCases, middleware.ValidateViewerJWT))
	}
}

func SupportCaseWebsocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		service := supportcaseservice.New(s.Database())
		base := strings.TrimRight(prefix, "/")
		paths := endpoints.SupportCasePaths{
			WebsocketPrefix:           base + "/cases/",
			NotificationWebsocketPath: base + "/notifications",
		}
		caseEndpoints := endpoints.NewSupportCaseEndpointsWithPaths(service, s.Handler(), paths)

		mux.HandleFunc(prefix+"/cases/", s.MakeHTTPHandleFunc(caseEndpoints.Websocket))
		mux.HandleFunc(prefix+"/notifications", s.MakeHTTPHandleFunc(caseEndpoints.NotificationsWebsocket))
		mux.HandleFunc(prefix+"/rooms", s.Handler().GetRooms)
	}
}
