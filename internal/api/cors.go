package api

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// originList is swapped atomically on config reload.
type originList struct {
	v atomic.Pointer[[]string]
}

func (o *originList) set(origins []string) {
	cp := slices.Clone(origins)
	o.v.Store(&cp)
}

// allowed reports whether origin may call the API with credentials. An
// empty list denies every cross-origin request; "*" must be listed
// explicitly.
func (o *originList) allowed(origin string) bool {
	p := o.v.Load()
	if p == nil || len(*p) == 0 {
		return false
	}
	return slices.Contains(*p, "*") || slices.Contains(*p, origin)
}

func corsMiddleware(origins *originList, methods []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  origins.allowed,
		AllowMethods:     methods,
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Correlation-ID"},
		ExposeHeaders:    []string{"X-Correlation-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
