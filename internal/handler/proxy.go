package handler

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"blog-web/internal/cache"

	"go.uber.org/zap"
)

// NewAPIProxy проксирует /api/* на бэкенд. На каждый ответ срабатывает
// инвалидация кэша профилей по URL.
func NewAPIProxy(target *url.URL, queryCache cache.QueryCache, logger *zap.Logger) *httputil.ReverseProxy {
	log := logger.Named("APIProxy")
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			cache.InvalidateForURL(resp.Request.Context(), queryCache, resp.Request.URL.String(), log)
			return nil
		},
		ErrorHandler: proxyErrorHandler(log, "backend"),
	}
}

// NewPageProxy проксирует страницы на рендерер UI.
func NewPageProxy(target *url.URL, logger *zap.Logger) *httputil.ReverseProxy {
	log := logger.Named("PageProxy")
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			r.Out.Host = r.In.Host
		},
		ErrorHandler: proxyErrorHandler(log, "page renderer"),
	}
}

func proxyErrorHandler(log *zap.Logger, upstream string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("Proxy request failed", zap.String("upstream", upstream), zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"success":false,"message":"upstream unavailable"}`))
	}
}
