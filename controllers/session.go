package controllers

import (
	"Gamebuddies/middleware"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// @Summary Opens a cookie session
// @Description Exchanges a bearer token for a session cookie, so browser pages can call the API without the header
// @Tags session
// @Produce json
// @Param Authorization header string true "Bearer JWT token"
// @Success 200 {object} object{user_id=string,role=string}
// @Failure 401 {object} object{code=string,message=string}
// @Router /api/session [post]
func CreateSession(resolver middleware.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolver.Resolve(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "NOT_IDENTIFIED", "message": "a valid bearer token is required"})
			return
		}
		if err := middleware.SaveSession(c, id); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "role": id.Role})
	}
}

// @Summary Closes the cookie session
// @Tags session
// @Success 204
// @Router /api/session [delete]
func DeleteSession(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
