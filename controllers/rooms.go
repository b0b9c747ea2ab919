package controllers

import (
	"Gamebuddies/models"
	"Gamebuddies/services/proxy"
	"Gamebuddies/services/rooms"
	"Gamebuddies/utils"
	"Gamebuddies/utils/apperr"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomReader is the persistence API used when a room is no longer live
type RoomReader interface {
	GetRoom(ctx context.Context, code string) (models.RoomSummary, error)
}

type ProxyHealth interface {
	Health() []proxy.TargetHealth
}

type RoomController struct {
	Registry *rooms.Registry
	Store    RoomReader
	Proxy    ProxyHealth
}

func fail(c *gin.Context, err error) {
	e := apperr.As(err)
	status := apperr.HTTPStatus(e)
	if status >= http.StatusInternalServerError || e.Kind == apperr.KindTransient {
		logrus.WithField("component", "http").WithError(err).Warn("request failed")
	}
	c.JSON(status, utils.ErrorBody(e))
}

// @Summary Lists public rooms
// @Description Joinable public rooms that are not full, oldest first. Streamer mode rooms are never listed.
// @Tags rooms
// @Produce json
// @Success 200 {object} object{rooms=[]models.RoomSummary}
// @Router /api/rooms/public [get]
func (rc *RoomController) PublicRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": rc.Registry.PublicRooms()})
}

// @Summary Gets a room
// @Description Returns the live room, or the last persisted snapshot with live=false once the room is gone
// @Tags rooms
// @Produce json
// @Param Authorization header string true "Bearer JWT token"
// @Param code path string true "Room code"
// @Success 200 {object} object{room=models.RoomSummary,live=bool}
// @Failure 400 {object} object{code=string,message=string}
// @Failure 404 {object} object{code=string,message=string}
// @Router /api/rooms/{code} [get]
// @Security ApiKeyAuth
func (rc *RoomController) GetRoom(c *gin.Context) {
	code, err := rooms.NormalizeCode(c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}

	summary, err := rc.Registry.Summary(code)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"room": summary, "live": true})
		return
	}
	if apperr.KindOf(err) != apperr.KindNotFound || rc.Store == nil {
		fail(c, err)
		return
	}

	summary, err = rc.Store.GetRoom(c.Request.Context(), code)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": summary, "live": false})
}

// @Summary Game service health
// @Description Cached health of every proxied game service. Services never checked are reported unhealthy.
// @Tags proxy
// @Produce json
// @Success 200 {object} object{services=[]proxy.TargetHealth}
// @Router /api/proxy/health [get]
func (rc *RoomController) ProxyHealth(c *gin.Context) {
	services := []proxy.TargetHealth{}
	if rc.Proxy != nil {
		services = rc.Proxy.Health()
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}
