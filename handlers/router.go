package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"studentparent-server-go/auth"
	"studentparent-server-go/charts"
	"studentparent-server-go/dataflow"
	"studentparent-server-go/jolt"
	"studentparent-server-go/models"
	"studentparent-server-go/query"
)

// Deps are the services the router wires into handlers.
type Deps struct {
	Engine   *query.Engine
	Store    Store
	Registry *jolt.Registry
	Dataflow *dataflow.Service
	Auth     *auth.Service
	Log      *logrus.Logger
}

// reservedJolt are /jolt routes that a registered transform cannot shadow.
var reservedJolt = map[string]bool{"transform": true, "info": true, "test": true}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), CORS(), Auth(d.Auth, log), AccessLog(log))
	router.HandleMethodNotAllowed = true

	apiHandler := NewAPIHandler(d.Engine, d.Store, log)
	for _, m := range models.Methods {
		router.POST("/"+strings.ToLower(string(m)), apiHandler.Query(m))
	}
	router.POST("/import/students", apiHandler.ImportStudents)
	router.GET("/export/:table", apiHandler.ExportTable)
	router.GET("/ping", apiHandler.Ping)

	authHandler := NewAuthHandler(d.Auth, log)
	router.POST("/login", authHandler.Login)
	router.POST("/logout", authHandler.Logout)

	joltHandler := NewJoltHandler(d.Registry, log)
	jg := router.Group("/jolt")
	{
		jg.POST("/transform", joltHandler.Transform)
		jg.GET("/info", joltHandler.Info)
		jg.GET("/test", joltHandler.Test)
		for _, name := range d.Registry.Names() {
			if reservedJolt[name] {
				log.WithField("transform", name).Warn("transform name collides with a built-in route, skipped")
				continue
			}
			jg.POST("/"+name, joltHandler.Named(name))
		}
	}

	dataflowHandler := NewDataflowHandler(d.Dataflow, log)
	dg := router.Group("/dataflow")
	{
		for _, kind := range charts.Kinds {
			if !dataflow.IsFlow(kind) {
				continue
			}
			dg.GET("/"+string(kind), dataflowHandler.Flow(kind))
		}
		dg.POST("/test-jolt-transform", dataflowHandler.TestTransform)
		dg.GET("/status", dataflowHandler.Status)
	}

	return router
}
