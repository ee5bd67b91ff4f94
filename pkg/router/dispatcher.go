// Package router 按声明顺序把请求路径匹配到处理器，第一个匹配的规则胜出
package router

import (
	"context"
	"net/http"
	"regexp"
)

type paramsKey struct{}

type route struct {
	pattern *regexp.Regexp
	handler http.Handler
}

// Dispatcher 是有序的 (正则, 处理器) 列表
// 它只做路径匹配，不包含任何业务逻辑，也不关心 HTTP 方法
type Dispatcher struct {
	routes   []route
	notFound http.Handler
}

func New() *Dispatcher {
	return &Dispatcher{notFound: http.HandlerFunc(NotFound)}
}

// Handle 追加一条规则，pattern 非法时 panic (路由表在启动时声明)
func (d *Dispatcher) Handle(pattern string, h http.Handler) {
	d.routes = append(d.routes, route{
		pattern: regexp.MustCompile(pattern),
		handler: h,
	})
}

func (d *Dispatcher) HandleFunc(pattern string, fn http.HandlerFunc) {
	d.Handle(pattern, fn)
}

// NotFoundHandler 替换兜底处理器
func (d *Dispatcher) NotFoundHandler(h http.Handler) {
	d.notFound = h
}

// Patterns 按声明顺序返回所有规则
func (d *Dispatcher) Patterns() []string {
	out := make([]string, len(d.routes))
	for i, r := range d.routes {
		out[i] = r.pattern.String()
	}
	return out
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, rt := range d.routes {
		m := rt.pattern.FindStringSubmatch(r.URL.Path)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			r = r.WithContext(context.WithValue(r.Context(), paramsKey{}, m[1:]))
		}
		rt.handler.ServeHTTP(w, r)
		return
	}
	d.notFound.ServeHTTP(w, r)
}

// Param 返回第 i 个 (从 0 开始) 捕获组，不存在时返回空串
func Param(r *http.Request, i int) string {
	params, _ := r.Context().Value(paramsKey{}).([]string)
	if i < 0 || i >= len(params) {
		return ""
	}
	return params[i]
}

// NotFound 是默认的兜底处理器
func NotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not Found", http.StatusNotFound)
}
