package proxy

import (
	"Gamebuddies/utils/apperr"
	"net/http"

	"github.com/gin-gonic/gin/render"
)

// writeJSONError is used from the reverse proxy error path, which hands us a
// bare ResponseWriter instead of a gin context
func writeJSONError(w http.ResponseWriter, status int, e *apperr.Error) {
	body := render.JSON{Data: errorBody(e)}
	body.WriteContentType(w)
	w.WriteHeader(status)
	_ = body.Render(w)
}
