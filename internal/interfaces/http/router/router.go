package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouteRegistrar mounts a set of routes on a router group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouteInfo describes one registered endpoint
type RouteInfo struct {
	Method   string
	Path     string
	Operator bool
}

// RouteLister is implemented by registrars that can describe their routes
type RouteLister interface {
	Routes() []RouteInfo
}

// Router owns route registration for the funnel API
type Router struct {
	engine     *gin.Engine
	basePath   string
	logger     *zap.Logger
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithBasePath mounts every group under prefix. The funnel frontend and the
// Stripe dashboard call root paths, so the default is empty.
func WithBasePath(prefix string) RouterOption {
	return func(r *Router) {
		r.basePath = prefix
	}
}

// WithLogger logs the route table on Setup
func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues registrars for Setup
func (r *Router) Register(registrars ...RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrars...)
	return r
}

// Setup mounts every registrar under the base path
func (r *Router) Setup() {
	root := r.engine.Group(r.basePath)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(root)

		lister, ok := registrar.(RouteLister)
		if !ok {
			continue
		}
		for _, route := range lister.Routes() {
			r.logger.Debug("Route registered",
				zap.String("method", route.Method),
				zap.String("path", path.Join("/", r.basePath, route.Path)),
				zap.Bool("operator", route.Operator),
			)
		}
	}
}

// DomainGroup collects the routes of one functional area. Operator routes
// additionally run the group's guard before their handlers.
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	middleware []gin.HandlerFunc
	guard      gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	operator bool
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to every route of this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// Guard sets the handler run before operator routes; nil leaves them open
func (dg *DomainGroup) Guard(guard gin.HandlerFunc) *DomainGroup {
	dg.guard = guard
	return dg
}

// Handle registers a public route for method
func (dg *DomainGroup) Handle(method, path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// Operator registers a route behind the group's guard
func (dg *DomainGroup) Operator(method, path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, operator: true, handlers: handlers})
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodGet, path, handlers...)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodPost, path, handlers...)
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		handlers := route.handlers
		if route.operator && dg.guard != nil {
			handlers = append([]gin.HandlerFunc{dg.guard}, handlers...)
		}
		group.Handle(route.method, route.path, handlers...)
	}
}

// Routes implements RouteLister
func (dg *DomainGroup) Routes() []RouteInfo {
	out := make([]RouteInfo, 0, len(dg.routes))
	for _, route := range dg.routes {
		out = append(out, RouteInfo{
			Method:   route.method,
			Path:     path.Join("/", dg.prefix, route.path),
			Operator: route.operator,
		})
	}
	return out
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}
